// Copyright 2026 The Collam Authors.

package collam

import (
	"errors"
	"os"
)

// errOOM is returned when the OS refuses to grow the program break.
var errOOM = errors.New("collam: out of memory")

// osPageSize is the OS allocation granularity, cached once like the
// teacher caches osPageSize/osPageMask in memory.go.
var (
	osPageSize = os.Getpagesize()
	osPageMask = osPageSize - 1
)

// programBreak simulates the process program break: a single region of
// address space with a stable base and a monotonically adjustable high
// water mark (the "break"). Real brk(2)/sbrk(2) cannot be shared safely
// with a Go process's own memory manager, so the break is realized over a
// virtual region reserved once with PROT_NONE/MEM_RESERVE and grown or
// shrunk by committing or decommitting pages at its tail — see
// brk_unix.go and brk_windows.go for the platform-specific primitives.
type programBreak struct {
	base      uintptr // stable for the lifetime of the Allocator
	reserved  int     // total reserved address space, in bytes
	committed int     // bytes currently backed by real memory, from base
}

// roundupPage rounds n up to a multiple of the OS page size.
func roundupPage(n int) int { return roundup(n, osPageSize) }
