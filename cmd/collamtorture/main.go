// Copyright 2026 The Collam Authors.

// Collamtorture drives the allocator through randomized alloc/free
// sequences and reports its final bookkeeping counters, the allocator
// equivalent of lldb's db_bench load generator.
package main

import (
	"flag"
	"log"

	"github.com/cznic/mathutil"

	"github.com/cznic/collam"
)

var (
	oRounds  = flag.Int("rounds", 200000, "number of malloc/free rounds to run")
	oMaxSize = flag.Int("max", 4096, "maximum payload size requested, in bytes")
)

func main() {
	flag.Parse()

	rng, err := mathutil.NewFC32(1, *oMaxSize, true)
	if err != nil {
		log.Fatal(err)
	}

	a := collam.New()
	defer a.Close()

	live := make([][]byte, 0, 1024)
	for i := 0; i < *oRounds; i++ {
		if len(live) == 0 || rng.Next()%2 == 0 {
			size := rng.Next()
			b, err := a.Malloc(size)
			if err != nil {
				log.Printf("round %d: malloc(%d): %v", i, size, err)
				continue
			}
			live = append(live, b)
			continue
		}

		j := rng.Next() % len(live)
		if err := a.Free(live[j]); err != nil {
			log.Printf("round %d: free: %v", i, err)
		}
		live[j] = live[len(live)-1]
		live = live[:len(live)-1]
	}

	for _, b := range live {
		if err := a.Free(b); err != nil {
			log.Printf("final free: %v", err)
		}
	}

	stats := a.Stats()
	log.Printf("done: allocs=%d breakBytes=%d freeListBytes=%d", stats.NumAllocs, stats.BreakBytes, stats.FreeListBytes)
}
