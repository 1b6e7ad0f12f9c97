// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Modifications (c) 2026 The Collam Authors.

package collam

import (
	"unsafe"

	"github.com/cznic/mathutil"
)

// mallocAlign is the minimum alignment guaranteed for every payload pointer
// returned to a caller. It must be >= alignment of max_align_t on every
// platform this package targets.
const mallocAlign = 16

type header struct {
	size  uintptr
	magic uint16
}

type freeLinks struct {
	prev, next *header
}

var (
	// blockMetaSize is BLOCK_META_SIZE: the alignment-padded size of a
	// header, computed once so the payload that follows it starts at
	// scalar alignment.
	blockMetaSize = roundup(int(unsafe.Sizeof(header{})), mallocAlign)

	// minPayload is MIN_PAYLOAD: the smallest payload that can hold the
	// two in-band free-list links.
	minPayload = roundup(int(unsafe.Sizeof(freeLinks{})), mallocAlign)

	// splitMin is SPLIT_MIN: the minimum remainder below which split
	// declines to carve a new block.
	splitMin = blockMetaSize + mathutil.Max(minPayload, mallocAlign) + mallocAlign
)

// roundup rounds n up to the next multiple of m. m must be a power of 2.
func roundup(n, m int) int { return (n + m - 1) &^ (m - 1) }
