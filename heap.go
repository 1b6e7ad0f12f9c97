// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Modifications (c) 2026 The Collam Authors.

// Package collam implements a malloc/calloc/realloc/free-style dynamic
// memory allocator. It carves memory out of a simulated program break,
// maintains a free-block pool between requests, coalesces adjacent free
// blocks, and splits oversized free blocks to satisfy smaller requests.
//
// The package is not internally synchronized: spec.md's concurrency model
// assumes every public entry is called under a single process-wide lock
// held by the caller (see package libc for one that provides it). Holding
// that lock is the caller's responsibility, exactly as it is the teacher's
// (github.com/cznic/memory)'s Allocator's.
//
// The zero value of Allocator is ready to use.
package collam

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// Stats reports a snapshot of an Allocator's bookkeeping counters.
type Stats struct {
	NumAllocs     int64 // outstanding Malloc/Calloc/Realloc calls not yet Free'd
	BreakBytes    int64 // bytes currently committed from the program break
	FreeListBytes int64 // payload bytes currently sitting in the free list
}

// Allocator allocates and frees memory backed by a simulated program
// break. Its zero value is ready for use.
type Allocator struct {
	cfg  Config
	brk  *programBreak
	list freeList

	allocs    int64
	freeBytes int64
}

// New returns an Allocator configured by opts. Calling New is optional:
// the zero value of Allocator behaves identically to New() with no
// options.
func New(opts ...Option) *Allocator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Allocator{cfg: *cfg}
}

func (a *Allocator) ensureBreak() error {
	if a.brk != nil {
		return nil
	}
	reserve := a.cfg.Reserve
	if reserve == 0 {
		reserve = defaultReserve
	}
	pb, err := newProgramBreak(reserve)
	if err != nil {
		return err
	}
	a.brk = pb
	return nil
}

func (a *Allocator) traceEnabled() bool { return trace || a.cfg.Trace }

// roundRequest rounds a requested payload size up to scalar alignment with
// a floor of minPayload, per spec.md §6 ("size == 0 ... this spec chooses
// to treat size == 0 after alignment as MIN_PAYLOAD").
func roundRequest(size int) uintptr {
	r := roundup(size, mallocAlign)
	return uintptr(mathutil.Max(r, minPayload))
}

// Malloc allocates size bytes and returns a byte slice over the allocated
// memory. The memory is not initialized. Malloc returns an error only on
// OOM; size == 0 is satisfied by the minimum payload, never an error.
func (a *Allocator) Malloc(size int) (r []byte, err error) {
	if a.traceEnabled() {
		defer func() { tracef("Malloc(%#x) len=%d err=%v\n", size, len(r), err) }()
	}
	if size < 0 {
		panic("collam: negative size")
	}

	p, req, err := a.alloc(size)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), int(req))[:size], nil
}

// Calloc is like Malloc except the allocated memory is zeroed.
func (a *Allocator) Calloc(size int) ([]byte, error) {
	b, err := a.Malloc(size)
	if err != nil {
		return nil, err
	}
	for i := range b {
		b[i] = 0
	}
	return b, nil
}

// Realloc changes the size of the backing allocation of b to size bytes.
// Content is preserved up to min(old size, size). If b's backing array is
// of zero size, the call is equivalent to Malloc(size); if size is zero
// and b is not, the call is equivalent to Free(b).
func (a *Allocator) Realloc(b []byte, size int) ([]byte, error) {
	switch {
	case cap(b) == 0:
		return a.Malloc(size)
	case size == 0:
		return nil, a.Free(b)
	}

	p, err := a.UnsafeRealloc(unsafe.Pointer(&b[:1][0]), size)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(p), size), nil
}

// Free deallocates memory previously returned by Malloc, Calloc or
// Realloc. Freeing a nil or already-freed slice is a silent no-op.
func (a *Allocator) Free(b []byte) error {
	if len(b) == 0 && cap(b) == 0 {
		return nil
	}
	return a.UnsafeFree(unsafe.Pointer(&b[:1][0]))
}

// UsableSize reports the size, in bytes, of the memory block allocated at
// p, which must point to the start of a slice or pointer returned by this
// Allocator and not yet freed. The size may be larger than originally
// requested.
func (a *Allocator) UsableSize(p unsafe.Pointer) uintptr {
	b := blockFromPayload(p)
	if b == nil {
		return 0
	}
	return b.size
}

// Stats returns a snapshot of the allocator's bookkeeping counters.
func (a *Allocator) Stats() Stats {
	s := Stats{NumAllocs: a.allocs, FreeListBytes: a.freeBytes}
	if a.brk != nil {
		s.BreakBytes = int64(a.brk.committed)
	}
	return s
}

// Close releases the OS resources backing the allocator's program break
// and resets it to its zero value. It is not necessary to Close an
// Allocator when exiting a process.
func (a *Allocator) Close() error {
	if a.brk == nil {
		return nil
	}
	err := a.brk.close()
	*a = Allocator{}
	return err
}

// UnsafeMalloc is like Malloc except it works with unsafe.Pointer instead
// of a byte slice, for callers (such as package libc) that must hand out
// raw pointers.
func (a *Allocator) UnsafeMalloc(size int) (unsafe.Pointer, error) {
	p, _, err := a.alloc(size)
	return p, err
}

// UnsafeCalloc is like UnsafeMalloc except the allocated memory is zeroed.
func (a *Allocator) UnsafeCalloc(size int) (unsafe.Pointer, error) {
	p, req, err := a.alloc(size)
	if err != nil {
		return nil, err
	}
	zero(p, int(req))
	return p, nil
}

// UnsafeFree is like Free except its argument is an unsafe.Pointer which
// must have been acquired from UnsafeCalloc, UnsafeMalloc or
// UnsafeRealloc (or the matching []byte-returning variants).
func (a *Allocator) UnsafeFree(p unsafe.Pointer) error {
	if a.traceEnabled() {
		defer func() { tracef("Free(%p)\n", p) }()
	}
	if p == nil {
		return nil
	}

	b := blockFromPayload(p)
	if b == nil {
		tracef("Free(%p): misaligned pointer, ignored\n", p)
		return nil
	}
	if !b.verify() {
		tracef("Free(%p): corrupted header or double free, ignored\n", p)
		return nil
	}

	if err := a.insert(b); err != nil {
		tracef("Free(%p): %v, ignored\n", p, err)
		return nil
	}
	a.allocs--
	a.maybeShrink()
	a.debugCheck("Free")
	return nil
}

// UnsafeRealloc is like Realloc except its first argument and result are
// unsafe.Pointer.
func (a *Allocator) UnsafeRealloc(p unsafe.Pointer, size int) (unsafe.Pointer, error) {
	switch {
	case p == nil:
		return a.UnsafeMalloc(size)
	case size == 0:
		return nil, a.UnsafeFree(p)
	}

	b := blockFromPayload(p)
	if b == nil || !b.verify() {
		return nil, errCorrupted
	}

	req := roundRequest(size)
	if req <= b.size {
		if rem := b.split(req); rem != nil {
			if err := a.insert(rem); err != nil {
				tracef("Realloc(%p): %v, ignored\n", p, err)
			}
		}
		a.debugCheck("Realloc")
		return p, nil
	}

	np, err := a.UnsafeMalloc(size)
	if err != nil {
		return nil, err
	}

	copySize := b.size
	src := unsafe.Slice((*byte)(p), int(copySize))
	dst := unsafe.Slice((*byte)(np), int(copySize))
	copy(dst, src)

	if err := a.UnsafeFree(p); err != nil {
		return nil, err
	}
	return np, nil
}

// alloc is the heap manager's core allocation path (spec.md §4.3): round
// the request, try the free list first, else grow the program break,
// split the result if worthwhile, and hand back the payload pointer. It
// returns the block's actual usable payload size alongside the pointer so
// Malloc can build a correctly-capacitied slice.
func (a *Allocator) alloc(size int) (unsafe.Pointer, uintptr, error) {
	if size < 0 {
		panic("collam: negative size")
	}
	req := roundRequest(size)

	if b := a.list.pop(req); b != nil {
		a.freeBytes -= int64(b.size)
		a.allocs++
		a.splitAndReturn(b, req)
		a.debugCheck("alloc")
		return b.payload(), b.size, nil
	}

	if err := a.ensureBreak(); err != nil {
		return nil, 0, err
	}

	old, committed, err := a.brk.grow(blockMetaSize + int(req))
	if err != nil {
		return nil, 0, err
	}

	b := initBlock(old, uintptr(committed)-uintptr(blockMetaSize))
	a.allocs++
	a.splitAndReturn(b, req)
	a.debugCheck("alloc")
	return b.payload(), b.size, nil
}

// debugCheck runs the free list's invariant walk (freeList.debugVerify)
// when tracing is enabled, reporting any failure through the trace
// facility rather than returning it — this is a development aid, not a
// hot-path cost, and never runs with tracing off.
func (a *Allocator) debugCheck(op string) {
	if !a.traceEnabled() {
		return
	}
	if err := a.list.debugVerify(); err != nil {
		tracef("%s: free list invariant check failed: %v\n", op, err)
	}
}

// splitAndReturn carves b down to req payload bytes in place if a
// worthwhile remainder would result, inserting that remainder into the
// free list. b itself is left ready to hand to the caller either way.
func (a *Allocator) splitAndReturn(b *header, req uintptr) {
	rem := b.split(req)
	if rem == nil {
		return
	}
	if err := a.insert(rem); err != nil {
		// A block fresh out of split cannot already be in the list, so
		// this can only mean list corruption — nothing safe to do but
		// drop it; it cannot be recovered without walking raw memory.
		tracef("splitAndReturn: unexpected %v inserting remainder\n", err)
	}
}

// insert hands b to the free list, updating freeBytes bookkeeping. It is
// also the entry point realloc's shrink path uses to give back a split
// remainder (spec.md §4.3, "split-on-shrink").
func (a *Allocator) insert(b *header) error {
	size := int64(b.size)
	// Every neighbor b coalesces with turns one header into free payload.
	higher, err := a.list.findHigher(b)
	if err != nil {
		return err
	}
	lower := a.list.tail
	if higher != nil {
		lower = higher.prev()
	}
	if lower != nil && lower.nextPotentialHeader() == unsafe.Pointer(b) {
		size += int64(blockMetaSize)
	}
	if higher != nil && b.nextPotentialHeader() == unsafe.Pointer(higher) {
		size += int64(blockMetaSize)
	}
	if err := a.list.insert(b); err != nil {
		return err
	}
	a.freeBytes += size
	return nil
}

// maybeShrink examines the free list's tail and, if its end address
// coincides with the current program break, releases whole pages back to
// the OS. At least blockMetaSize+minPayload bytes at the start of the tail
// block stay committed and go back into the free list as a residual block,
// so the tail block's own header remains readable.
func (a *Allocator) maybeShrink() {
	if a.brk == nil {
		return
	}
	tail := a.list.tail
	if tail == nil {
		return
	}
	if tail.nextPotentialHeader() != a.brk.end() {
		return
	}

	total := int(tail.blockSize())
	releasable := ((total - blockMetaSize - minPayload) / osPageSize) * osPageSize
	if releasable == 0 {
		return
	}

	a.freeBytes -= int64(tail.size)
	a.list.remove(tail)

	if releasable < total {
		// A residual of blockMetaSize or fewer bytes cannot host a valid
		// header (size must be > 0), so it is not worth representing as a
		// free block; let those few bytes stay committed but untracked
		// rather than reinsert a corrupt zero/negative-size block (I1).
		if resid := total - releasable; resid > blockMetaSize {
			residBlock := initBlock(unsafe.Pointer(tail), uintptr(resid)-uintptr(blockMetaSize))
			if err := a.insert(residBlock); err != nil {
				tracef("maybeShrink: unexpected %v re-inserting residual\n", err)
			}
		}
	}

	if err := a.brk.shrink(releasable); err != nil {
		tracef("maybeShrink: shrink(%d): %v\n", releasable, err)
	}
}
