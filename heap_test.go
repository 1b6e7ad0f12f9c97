// Copyright 2026 The Collam Authors.

package collam

import (
	"math"
	"testing"

	"github.com/cznic/mathutil"
)

func quiescent(t *testing.T, a *Allocator) {
	t.Helper()
	s := a.Stats()
	if s.NumAllocs != 0 {
		t.Fatalf("allocs = %d, want 0 after a fully quiescent cycle", s.NumAllocs)
	}
	if a.list.head != nil && a.list.head != a.list.tail {
		t.Fatalf("free list has more than one block after a quiescent cycle: head=%v tail=%v", a.list.head, a.list.tail)
	}
	if err := a.list.debugVerify(); err != nil {
		t.Fatal(err)
	}
}

// TestAllocateFreeAllocateSameSize mirrors spec.md §8 scenario 1.
func TestAllocateFreeAllocateSameSize(t *testing.T) {
	a := New()
	defer a.Close()

	p1, err := a.Malloc(64)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(p1); err != nil {
		t.Fatal(err)
	}
	p2, err := a.Malloc(64)
	if err != nil {
		t.Fatal(err)
	}
	if &p1[:1][0] != &p2[:1][0] {
		t.Fatal("reusing a just-freed same-size block should return the identical address")
	}
	if a.list.head != nil {
		t.Fatal("free list must be empty once the reused block is handed back out")
	}
	if err := a.Free(p2); err != nil {
		t.Fatal(err)
	}
	quiescent(t, a)
}

// TestSplitOnAlloc mirrors spec.md §8 scenario 2: a single fresh region in
// the free list gets split by a smaller request, leaving one remainder.
func TestSplitOnAlloc(t *testing.T) {
	a := New()
	defer a.Close()

	raw := rawRegion(t, 4096)
	region := initBlock(raw, 4096-uintptr(blockMetaSize))
	if err := a.insert(region); err != nil {
		t.Fatal(err)
	}

	p, err := a.Malloc(256)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 256 {
		t.Fatalf("len(p) = %d, want 256", len(p))
	}
	if a.list.head == nil {
		t.Fatal("expected one remainder block in the free list")
	}
	want := (4096 - uintptr(blockMetaSize)) - 256 - uintptr(blockMetaSize)
	if a.list.head.size != want {
		t.Fatalf("remainder size = %d, want %d", a.list.head.size, want)
	}
}

// TestNoSplitWhenRemainderTooSmall mirrors spec.md §8 scenario 3: handing
// out nearly all of a block rather than leaving an unusably small sliver.
func TestNoSplitWhenRemainderTooSmall(t *testing.T) {
	a := New()
	defer a.Close()

	raw := rawRegion(t, blockMetaSize+256)
	block := initBlock(raw, 256)
	if err := a.insert(block); err != nil {
		t.Fatal(err)
	}

	req := uintptr(256) - uintptr(blockMetaSize) - uintptr(splitMin) + 1
	p, err := a.Malloc(int(req))
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != int(req) {
		t.Fatalf("len(p) = %d, want %d", len(p), req)
	}
	if a.list.head != nil {
		t.Fatal("remainder was too small to split off; the whole block should be handed out")
	}
}

// TestCoalesceForwardAndBackward mirrors spec.md §8 scenario 4 at the
// heap-manager level (allocate three adjacent blocks, free middle-out).
func TestCoalesceForwardAndBackward(t *testing.T) {
	a := New()
	defer a.Close()

	raw := rawRegion(t, 3*(blockMetaSize+64))
	region := initBlock(raw, 3*(blockMetaSize+64)-uintptr(blockMetaSize))
	if err := a.insert(region); err != nil {
		t.Fatal(err)
	}

	pa, err := a.Malloc(64)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := a.Malloc(64)
	if err != nil {
		t.Fatal(err)
	}
	pc, err := a.Malloc(64)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Free(pb); err != nil {
		t.Fatal(err)
	}
	if a.list.head.size != 64 {
		t.Fatalf("after freeing b, size = %d, want 64", a.list.head.size)
	}

	if err := a.Free(pa); err != nil {
		t.Fatal(err)
	}
	if got, want := a.list.head.size, uintptr(64+blockMetaSize+64); got != want {
		t.Fatalf("after freeing a, size = %d, want %d", got, want)
	}

	if err := a.Free(pc); err != nil {
		t.Fatal(err)
	}
	if got, want := a.list.head.size, uintptr(64+blockMetaSize+64+blockMetaSize+64); got != want {
		t.Fatalf("after freeing c, size = %d, want %d", got, want)
	}
}

// TestDoubleFreeIsANoop mirrors spec.md §8 scenario 5.
func TestDoubleFreeIsANoop(t *testing.T) {
	a := New()
	defer a.Close()

	p, err := a.Malloc(128)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Free(p); err != nil {
		t.Fatal(err)
	}
	before := a.list.head
	if err := a.Free(p); err != nil {
		t.Fatal(err)
	}
	if a.list.head != before {
		t.Fatal("a second free of the same pointer must leave the free list unchanged")
	}
	if a.list.head != nil && a.list.head != a.list.tail {
		t.Fatal("double free must not introduce a duplicate list entry")
	}
}

// TestReallocGrowCopiesBytes mirrors spec.md §8 scenario 6.
func TestReallocGrowCopiesBytes(t *testing.T) {
	a := New()
	defer a.Close()

	p, err := a.Malloc(32)
	if err != nil {
		t.Fatal(err)
	}
	for i := range p {
		p[i] = byte(i)
	}

	q, err := a.Realloc(p, 128)
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 128 {
		t.Fatalf("len(q) = %d, want 128", len(q))
	}
	for i := 0; i < 32; i++ {
		if q[i] != byte(i) {
			t.Fatalf("q[%d] = %#x, want %#x", i, q[i], byte(i))
		}
	}

	if err := a.Free(q); err != nil {
		t.Fatal(err)
	}
	quiescent(t, a)
}

func TestReallocShrinkSplitsInsteadOfMoving(t *testing.T) {
	a := New()
	defer a.Close()

	big := 4 * splitMin
	p, err := a.Malloc(big)
	if err != nil {
		t.Fatal(err)
	}
	orig := &p[:1][0]

	q, err := a.Realloc(p, 32)
	if err != nil {
		t.Fatal(err)
	}
	if &q[:1][0] != orig {
		t.Fatal("shrinking realloc must split in place, not relocate")
	}
	if a.list.head == nil {
		t.Fatal("shrinking realloc must insert the carved-off remainder")
	}

	if err := a.Free(q); err != nil {
		t.Fatal(err)
	}
	quiescent(t, a)
}

func TestMallocZeroFloorsToMinPayload(t *testing.T) {
	a := New()
	defer a.Close()

	p, err := a.Malloc(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 0 {
		t.Fatalf("len(p) = %d, want 0", len(p))
	}
	if err := a.Free(p); err != nil {
		t.Fatal(err)
	}
	quiescent(t, a)
}

func TestUsableSize(t *testing.T) {
	a := New()
	defer a.Close()

	p, err := a.Malloc(3)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.UsableSize(&p[:1][0]); got < 3 {
		t.Fatalf("UsableSize = %d, want >= 3 (I4)", got)
	}
	a.Free(p)
}

func TestStatsAndClose(t *testing.T) {
	a := New()
	p, err := a.Malloc(64)
	if err != nil {
		t.Fatal(err)
	}
	if s := a.Stats(); s.NumAllocs != 1 {
		t.Fatalf("NumAllocs = %d, want 1", s.NumAllocs)
	}
	if err := a.Free(p); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if s := a.Stats(); s.NumAllocs != 0 || s.BreakBytes != 0 {
		t.Fatalf("Stats after Close = %+v, want zero value", s)
	}
}

// TestRandomizedAllocFreeSequenceStaysQuiescent exercises many rounds of
// alloc/free with a full-cycle PRNG, the same fuzzing technique the
// teacher's test suite uses, to check I1-I4 hold after a long run that
// ends fully freed.
func TestRandomizedAllocFreeSequenceStaysQuiescent(t *testing.T) {
	a := New()
	defer a.Close()

	rng, err := mathutil.NewFC32(1, 4096, true)
	if err != nil {
		t.Fatal(err)
	}

	var live [][]byte
	for i := 0; i < 2000; i++ {
		if len(live) == 0 || rng.Next()%2 == 0 {
			size := rng.Next()
			b, err := a.Malloc(size)
			if err != nil {
				t.Fatalf("round %d: Malloc(%d): %v", i, size, err)
			}
			if len(b) != size {
				t.Fatalf("round %d: len = %d, want %d", i, len(b), size)
			}
			live = append(live, b)
			continue
		}

		j := rng.Next() % len(live)
		if err := a.Free(live[j]); err != nil {
			t.Fatalf("round %d: Free: %v", i, err)
		}
		live[j] = live[len(live)-1]
		live = live[:len(live)-1]
	}

	for _, b := range live {
		if err := a.Free(b); err != nil {
			t.Fatal(err)
		}
	}
	quiescent(t, a)
}

func TestMallocRejectsNegativeSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Malloc(-1) should panic")
		}
	}()
	a := New()
	defer a.Close()
	_, _ = a.Malloc(-1)
}

func TestOOMReturnsError(t *testing.T) {
	a := New(WithReserve(osPageSize))
	defer a.Close()

	if _, err := a.Malloc(math.MaxInt32); err == nil {
		t.Fatal("a request far larger than the reserved address space must fail")
	}
}
