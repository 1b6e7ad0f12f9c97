// Copyright 2026 The Collam Authors.

//go:build windows

package collam

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// newProgramBreak reserves reserve bytes of address space (MEM_RESERVE,
// PAGE_NOACCESS) without committing any of it, mirroring the unix
// implementation's PROT_NONE mmap.
func newProgramBreak(reserve int) (*programBreak, error) {
	reserve = roundupPage(reserve)
	addr, err := windows.VirtualAlloc(0, uintptr(reserve), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, err
	}
	return &programBreak{
		base:     addr,
		reserved: reserve,
	}, nil
}

// grow commits at least n bytes (rounded to a page) at the tail of the
// reserved region and returns the break's previous top together with the
// actual number of bytes committed (always a page multiple, and so
// usually larger than n — the caller folds that slack into the block it
// carves rather than losing it).
func (pb *programBreak) grow(n int) (unsafe.Pointer, int, error) {
	n = roundupPage(n)
	if pb.committed+n > pb.reserved {
		return nil, 0, errOOM
	}

	addr := pb.base + uintptr(pb.committed)
	if _, err := windows.VirtualAlloc(addr, uintptr(n), windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return nil, 0, err
	}

	old := unsafe.Pointer(addr)
	pb.committed += n
	return old, n, nil
}

// shrink decommits n bytes (rounded to a page) from the tail of the break.
func (pb *programBreak) shrink(n int) error {
	n = roundupPage(n)
	if n > pb.committed {
		n = pb.committed
	}
	if n == 0 {
		return nil
	}

	addr := pb.base + uintptr(pb.committed-n)
	if err := windows.VirtualFree(addr, uintptr(n), windows.MEM_DECOMMIT); err != nil {
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
	err := windows.VirtualFree(pb.base, 0, windows.MEM_RELEASE)
	*pb = programBreak{}
	return err
}
