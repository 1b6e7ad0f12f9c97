// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Modifications (c) 2026 The Collam Authors.

package collam

import "unsafe"

// magicFree is the sentinel initBlock writes into every header. It stays
// in place while the block is handed out and while it sits in the free
// list. Any other value found where the invariant expects magicFree means
// the header was zeroed when its block was coalesced into a neighbor (so a
// pointer to its payload is stale) or has been corrupted.
const magicFree = 0xDEAD

// initBlock writes a fresh header at raw for a payload of the given size
// and returns it. raw must point to at least blockMetaSize+size bytes and
// size must already be rounded up to mallocAlign.
func initBlock(raw unsafe.Pointer, size uintptr) *header {
	h := (*header)(raw)
	h.size = size
	h.magic = magicFree
	links := h.links()
	links.prev = nil
	links.next = nil
	return h
}

// blockFromPayload recovers the header owning a payload pointer previously
// returned by payload(). It does not verify magic; callers that need the
// block to be well-formed must call verify() themselves.
func blockFromPayload(p unsafe.Pointer) *header {
	if p == nil {
		return nil
	}
	if uintptr(p)&uintptr(mallocAlign-1) != 0 {
		return nil
	}
	return (*header)(unsafe.Pointer(uintptr(p) - uintptr(blockMetaSize)))
}

// payload returns the address immediately following h's header.
func (h *header) payload() unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + uintptr(blockMetaSize))
}

// blockSize returns the size, in bytes, of the whole region h occupies,
// header included.
func (h *header) blockSize() uintptr {
	return uintptr(blockMetaSize) + h.size
}

// nextPotentialHeader returns the address a physically adjacent block
// would start at. It is the sole primitive used to test physical adjacency.
func (h *header) nextPotentialHeader() unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + h.blockSize())
}

// verify reports whether h's magic still matches the free-list sentinel.
func (h *header) verify() bool {
	return h.magic == magicFree
}

// links returns the in-band free-list link slots overlaid on h's payload.
// Only meaningful while h is free; an allocated block's payload bytes are
// user data and must not be interpreted this way.
func (h *header) links() *freeLinks {
	return (*freeLinks)(h.payload())
}

func (h *header) prev() *header { return h.links().prev }
func (h *header) next() *header { return h.links().next }

func (h *header) setPrev(p *header) { h.links().prev = p }
func (h *header) setNext(n *header) { h.links().next = n }

// split carves a block of req payload bytes off the front of h, provided
// the remainder would be at least splitMin bytes. req must already be
// rounded up to mallocAlign. On success it shrinks h in place and returns
// the new, unlinked remainder block; it returns nil when the block is not
// splittable by req.
func (h *header) split(req uintptr) *header {
	if h.size < req+uintptr(blockMetaSize) {
		return nil
	}
	rem := h.size - req - uintptr(blockMetaSize)
	if rem < uintptr(splitMin) {
		return nil
	}

	h.size = req
	remRaw := unsafe.Pointer(uintptr(h.payload()) + req)
	return initBlock(remRaw, rem)
}

// mergeWithNext fuses h with its free-list successor if the two are
// physically adjacent, unlinking the successor from the forward chain and
// zeroing its header bytes so a later verify() on that address fails (the
// mechanism by which a stale payload pointer is detected as a double free).
// It returns h on success, nil if there is no mergeable successor.
func (h *header) mergeWithNext() *header {
	n := h.next()
	if n == nil {
		return nil
	}
	if h.nextPotentialHeader() != unsafe.Pointer(n) {
		return nil
	}

	h.setNext(n.next())
	if nn := n.next(); nn != nil {
		nn.setPrev(h)
	}
	h.size += uintptr(blockMetaSize) + n.size

	zero(unsafe.Pointer(n), blockMetaSize)
	return h
}

// zero overwrites n bytes at p with zero, one byte at a time, so the
// compiler cannot elide the write the way it might a bulk-zeroing loop
// whose result is never read back by Go code.
func zero(p unsafe.Pointer, n int) {
	b := (*[1 << 30]byte)(p)[:n:n]
	for i := range b {
		b[i] = 0
	}
}
