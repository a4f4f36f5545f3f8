// Package forward generates one batch of records for every table layer.
package forward

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/plotgen/internal/matching"
	"github.com/hupe1980/plotgen/internal/record"
	"github.com/hupe1980/plotgen/internal/workpool"
)

// ErrNonceSpace is returned when a batch would run past the 4-byte nonce space.
var ErrNonceSpace = errors.New("forward: batch exceeds nonce space")

// Engine runs the per-element hashing of a batch on a shared worker pool.
type Engine struct {
	pool *workpool.Pool
}

// New returns an Engine backed by pool.
func New(pool *workpool.Pool) *Engine {
	return &Engine{pool: pool}
}

// Seed builds table 0 of batch number batch, holding n records.
//
// The nonce of element i is batch*n + i, so consecutive batches never reuse a
// nonce. Position and Offset are the batch-local index i.
func (e *Engine) Seed(ctx context.Context, batch uint64, n int) ([]record.Record, error) {
	if n < 0 {
		return nil, fmt.Errorf("forward: negative batch size %d", n)
	}
	base := batch * uint64(n)
	if n > 0 && base+uint64(n)-1 > math.MaxUint32 {
		return nil, fmt.Errorf("%w: batch %d of %d entries", ErrNonceSpace, batch, n)
	}

	out := make([]record.Record, n)
	err := workpool.ParallelFor(ctx, e.pool, n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			nonce := record.NonceFromIndex(uint32(base + uint64(i)))
			out[i] = record.Record{
				Nonce:    nonce,
				Hash:     matching.Compute(nonce),
				Position: uint64(i),
				Offset:   uint64(i),
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Derive builds the next layer from parent. Element j keeps the parent's nonce,
// recomputes the hash from that nonce and links back with Position = Offset = j.
func (e *Engine) Derive(ctx context.Context, parent []record.Record) ([]record.Record, error) {
	out := make([]record.Record, len(parent))
	err := workpool.ParallelFor(ctx, e.pool, len(parent), func(lo, hi int) {
		for j := lo; j < hi; j++ {
			nonce := parent[j].Nonce
			out[j] = record.Record{
				Nonce:    nonce,
				Hash:     matching.Compute(nonce),
				Position: uint64(j),
				Offset:   uint64(j),
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Propagate builds every layer of one batch. Layer t is derived from layer t-1
// of the same batch; the result is indexed by table id.
func (e *Engine) Propagate(ctx context.Context, batch uint64, n, tableCount int) ([][]record.Record, error) {
	if tableCount < 1 {
		return nil, fmt.Errorf("forward: table count %d", tableCount)
	}

	layers := make([][]record.Record, tableCount)
	seed, err := e.Seed(ctx, batch, n)
	if err != nil {
		return nil, err
	}
	layers[0] = seed

	for t := 1; t < tableCount; t++ {
		layer, err := e.Derive(ctx, layers[t-1])
		if err != nil {
			return nil, fmt.Errorf("forward: table %d: %w", t, err)
		}
		layers[t] = layer
	}
	return layers, nil
}
