package workpool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_SubmitRunsAll(t *testing.T) {
	p := New(4)
	var n atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(t.Context(), func() { n.Add(1) }))
	}
	p.Close()
	assert.Equal(t, int64(100), n.Load())
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close() // idempotent
	assert.ErrorIs(t, p.Submit(t.Context(), func() {}), ErrClosed)
}

func TestPool_DefaultWorkers(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.Positive(t, p.Workers())
}

func TestPool_SubmitCancelled(t *testing.T) {
	p := New(1)
	defer p.Close()

	block := make(chan struct{})
	// occupy the worker and fill the queue
	require.NoError(t, p.Submit(t.Context(), func() { <-block }))
	require.NoError(t, p.Submit(t.Context(), func() {}))
	require.NoError(t, p.Submit(t.Context(), func() {}))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.Canceled)
	close(block)
}

func TestParallelFor_CoversRangeOnce(t *testing.T) {
	p := New(3)
	defer p.Close()

	for _, n := range []int{0, 1, 255, 256, 1000, 10007} {
		hits := make([]int32, n)
		err := ParallelFor(t.Context(), p, n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		require.NoError(t, err)
		for i := range hits {
			require.Equal(t, int32(1), hits[i], "index %d", i)
		}
	}
}

func TestParallelFor_ClosedPool(t *testing.T) {
	p := New(1)
	p.Close()
	err := ParallelFor(t.Context(), p, 10, func(lo, hi int) {})
	assert.ErrorIs(t, err, ErrClosed)
}
