// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Modifications (c) 2026 The Collam Authors.

package collam

import (
	"fmt"
	"os"
)

// trace gates the debug logging sprinkled through the allocation and free
// paths. It defaults from COLLAM_TRACE so a caller can turn it on without
// rebuilding, the same "read once at init, cache in a package var" shape
// this package uses for every other process-wide setting.
var trace = os.Getenv("COLLAM_TRACE") != ""

func tracef(format string, args ...interface{}) {
	if !trace {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}
