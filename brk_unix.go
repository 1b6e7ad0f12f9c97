// Copyright 2026 The Collam Authors.

//go:build darwin || dragonfly || freebsd || linux || openbsd || netbsd || solaris

package collam

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// newProgramBreak reserves reserve bytes of address space with no backing
// memory (PROT_NONE), establishing the stable base address the program
// break will grow from. Nothing is committed yet: committed starts at 0.
func newProgramBreak(reserve int) (*programBreak, error) {
	reserve = roundupPage(reserve)
	b, err := unix.Mmap(-1, 0, reserve, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &programBreak{
		base:     uintptr(unsafe.Pointer(&b[0])),
		reserved: reserve,
	}, nil
}

// grow extends the break by at least n bytes, committing whole pages as
// read/write, and returns the address the break stood at before growing
// (the address a freshly carved block starts at) together with the actual
// number of bytes committed — always a multiple of the page size, and so
// usually larger than n. The caller folds that slack into the block it
// carves rather than losing it, the same way any page-granular sbrk does.
func (pb *programBreak) grow(n int) (unsafe.Pointer, int, error) {
	n = roundupPage(n)
	if pb.committed+n > pb.reserved {
		return nil, 0, errOOM
	}

	addr := pb.base + uintptr(pb.committed)
	region := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, 0, err
	}

	old := unsafe.Pointer(addr)
	pb.committed += n
	return old, n, nil
}

// shrink decommits n bytes (rounded up to a page) from the tail of the
// break, returning the underlying physical pages to the OS via
// MADV_DONTNEED before marking them inaccessible again.
func (pb *programBreak) shrink(n int) error {
	n = roundupPage(n)
	if n > pb.committed {
		n = pb.committed
	}
	if n == 0 {
		return nil
	}

	addr := pb.base + uintptr(pb.committed-n)
	region := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	if err := unix.Madvise(region, unix.MADV_DONTNEED); err != nil {
		return err
	}
	if err := unix.Mprotect(region, unix.PROT_NONE); err != nil {
		return err
	}

	pb.committed -= n
	return nil
}

// end returns the current top of the committed break.
func (pb *programBreak) end() unsafe.Pointer {
	return unsafe.Pointer(pb.base + uintptr(pb.committed))
}

// close releases the entire reserved region back to the OS.
func (pb *programBreak) close() error {
	if pb.base == 0 {
		return nil
	}
	region := unsafe.Slice((*byte)(unsafe.Pointer(pb.base)), pb.reserved)
	err := unix.Munmap(region)
	*pb = programBreak{}
	return err
}
