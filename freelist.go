// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Modifications (c) 2026 The Collam Authors.

package collam

import (
	"errors"
	"unsafe"
)

// errDoubleFree is returned by freeList.insert when the block being
// inserted is already present in the list — the signature of freeing a
// pointer twice.
var errDoubleFree = errors.New("collam: double free")

// errCorrupted is returned by debugVerify when a header fails verify()
// where the free-list invariant requires it to hold.
var errCorrupted = errors.New("collam: corrupted free-list header")

// freeList is an address-ordered, doubly linked, intrusive list of free
// blocks. Its zero value is an empty list.
type freeList struct {
	head, tail *header
}

// insert adds b, which must not currently be linked (b.prev == b.next ==
// nil), to the list in address order, coalescing with physically adjacent
// neighbors. It returns errDoubleFree if b's header address is already
// present in the list.
func (l *freeList) insert(b *header) error {
	if l.head == nil {
		l.head, l.tail = b, b
		return nil
	}

	higher, err := l.findHigher(b)
	if err != nil {
		return err
	}

	if higher != nil {
		l.insertBefore(higher, b)
	} else {
		l.insertAfter(l.tail, b)
	}

	merged := b
	if p := merged.prev(); p != nil {
		if m := p.mergeWithNext(); m != nil {
			merged = m
		}
	}
	if m := merged.mergeWithNext(); m != nil {
		merged = m
	}

	l.updateEnds(merged)
	return nil
}

// pop removes and returns the first free block that is an exact fit for
// req, or the first one of at least req+splitMin bytes. It returns nil if
// no block satisfies either rule. A block taken by the second rule is not
// always splittable by req: split also needs room for the remainder's
// header, so a block smaller than req+blockMetaSize+splitMin stays whole.
func (l *freeList) pop(req uintptr) *header {
	for b := l.head; b != nil; b = b.next() {
		switch {
		case b.size == req:
			return l.remove(b)
		case b.size >= req+uintptr(splitMin):
			return l.remove(b)
		}
	}
	return nil
}

// remove unlinks b from the list, updating head/tail as needed, clears
// b's links, and returns b.
func (l *freeList) remove(b *header) *header {
	if l.head == b {
		l.head = b.next()
	}
	if l.tail == b {
		l.tail = b.prev()
	}
	if p := b.prev(); p != nil {
		p.setNext(b.next())
	}
	if n := b.next(); n != nil {
		n.setPrev(b.prev())
	}
	b.setPrev(nil)
	b.setNext(nil)
	return b
}

// findHigher scans from head for the first block at a higher header
// address than toInsert. It returns errDoubleFree if toInsert's own
// address is already in the list.
func (l *freeList) findHigher(toInsert *header) (*header, error) {
	for b := l.head; b != nil; b = b.next() {
		if b == toInsert {
			return nil, errDoubleFree
		}
		if uintptr(unsafe.Pointer(b)) > uintptr(unsafe.Pointer(toInsert)) {
			return b, nil
		}
	}
	return nil, nil
}

func (l *freeList) insertBefore(anchor, b *header) {
	b.setPrev(anchor.prev())
	b.setNext(anchor)
	anchor.setPrev(b)
	if p := b.prev(); p != nil {
		p.setNext(b)
	}
}

func (l *freeList) insertAfter(anchor, b *header) {
	b.setNext(anchor.next())
	b.setPrev(anchor)
	anchor.setNext(b)
	if n := b.next(); n != nil {
		n.setPrev(b)
	}
}

func (l *freeList) updateEnds(b *header) {
	if b.prev() == nil {
		l.head = b
	}
	if b.next() == nil {
		l.tail = b
	}
}

// debugVerify walks the list checking invariants I1-I4: every block
// verifies, sibling back-references agree, no physically adjacent pair
// survives uncoalesced, and addresses strictly increase. It is called from
// tests and, when tracing is enabled, from the heap manager after mutating
// calls; it is never on the hot path when tracing is off.
func (l *freeList) debugVerify() error {
	var prev *header
	for b := l.head; b != nil; b = b.next() {
		if !b.verify() {
			return errCorrupted
		}
		if b.prev() != prev {
			return errCorrupted
		}
		if prev != nil {
			if uintptr(unsafe.Pointer(prev)) >= uintptr(unsafe.Pointer(b)) {
				return errCorrupted
			}
			if prev.nextPotentialHeader() == unsafe.Pointer(b) {
				return errCorrupted
			}
		}
		prev = b
	}
	if l.tail != prev {
		return errCorrupted
	}
	return nil
}
