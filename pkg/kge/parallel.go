package kge

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForEachRow calls fn for every row in [0, n) on at most workers goroutines.
// workers <= 0 means GOMAXPROCS. The first error encountered is returned.
func ForEachRow(n, workers int, fn func(i int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return fn(i)
		})
	}
	return g.Wait()
}
