// Copyright 2026 The Collam Authors.

// Package libc wraps a collam.Allocator behind a single process-wide lock
// and exposes the C allocation entry points (malloc, calloc, realloc,
// free) in the shapes a cgo export shim would bind them to. It owns
// everything collam.Allocator deliberately does not: null-pointer
// handling, size-zero aliasing, calloc's overflow check, and serializing
// every call behind one mutex.
package libc

import (
	"errors"
	"math/bits"
	"sync"
	"unsafe"

	"github.com/cznic/collam"
)

// ErrOverflow is returned by Calloc when nobj*size overflows uintptr.
var ErrOverflow = errors.New("libc: calloc size overflow")

// ErrNotImplemented is returned by Mallopt.
var ErrNotImplemented = errors.New("libc: mallopt not implemented")

var (
	mu    sync.Mutex
	alloc = collam.New()
)

// Malloc allocates size bytes and returns a pointer to them, or nil on
// out-of-memory. size == 0 returns a unique, non-null pointer.
func Malloc(size uintptr) unsafe.Pointer {
	mu.Lock()
	defer mu.Unlock()

	p, err := alloc.UnsafeMalloc(int(size))
	if err != nil {
		return nil
	}
	return p
}

// Calloc allocates nobj*size bytes, zeroed. It returns ErrOverflow if the
// product overflows a uintptr, without touching the allocator.
func Calloc(nobj, size uintptr) (unsafe.Pointer, error) {
	hi, total := bits.Mul(uint(nobj), uint(size))
	if hi != 0 {
		return nil, ErrOverflow
	}

	mu.Lock()
	defer mu.Unlock()

	return alloc.UnsafeCalloc(int(total))
}

// Realloc resizes the allocation at p to size bytes, preserving its
// content up to the smaller of the two sizes. p == nil behaves as Malloc;
// size == 0 behaves as Free and returns nil.
func Realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	mu.Lock()
	defer mu.Unlock()

	np, err := alloc.UnsafeRealloc(p, int(size))
	if err != nil {
		return nil
	}
	return np
}

// Free deallocates memory acquired from Malloc, Calloc or Realloc. A nil,
// already-freed, or unrecognized pointer is a silent no-op, matching the
// undefined-but-harmless behavior expected of libc's free on a bad
// pointer.
func Free(p unsafe.Pointer) {
	mu.Lock()
	defer mu.Unlock()

	_ = alloc.UnsafeFree(p)
}

// UsableSize reports the usable size of the block at p.
func UsableSize(p unsafe.Pointer) uintptr {
	mu.Lock()
	defer mu.Unlock()

	return alloc.UsableSize(p)
}

// Mallopt is a documented stub: this allocator has no tunable parameters.
func Mallopt(param, value int) error {
	return ErrNotImplemented
}
