package workpool

import (
	"context"
	"sync"
)

// minChunk keeps per-task overhead small relative to per-element work.
const minChunk = 256

// ParallelFor calls fn over contiguous sub-ranges [lo, hi) covering [0, n)
// on the pool's workers and waits for all of them.
//
// Callers write results by index, so completion order never affects output.
func ParallelFor(ctx context.Context, p *Pool, n int, fn func(lo, hi int)) error {
	if n <= 0 {
		return nil
	}

	chunk := n / (p.Workers() * 4)
	if chunk < minChunk {
		chunk = minChunk
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		start, end := lo, hi
		if err := p.Submit(ctx, func() {
			defer wg.Done()
			fn(start, end)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()

	return ctx.Err()
}
