package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(t.Context(), 50))
	assert.Equal(t, int64(50), c.memoryUsage())

	require.NoError(t, c.AcquireMemory(t.Context(), 40))
	assert.Equal(t, int64(90), c.memoryUsage())

	// 20 more would exceed the limit until something is released
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireMemory(ctx, 20), context.DeadlineExceeded)
	assert.Equal(t, int64(90), c.memoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.memoryUsage())

	require.NoError(t, c.AcquireMemory(t.Context(), 20))
	assert.Equal(t, int64(60), c.memoryUsage())
	assert.Equal(t, int64(90), c.MemoryPeak())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_AcquireBlocksUntilCancelled(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	require.NoError(t, c.AcquireMemory(t.Context(), 10))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_OversizedRequest(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	assert.ErrorIs(t, c.AcquireMemory(t.Context(), 11), ErrMemoryLimitExceeded)
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireMemory(t.Context(), 1000))
	assert.Equal(t, int64(1000), c.memoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.memoryUsage())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireMemory(t.Context(), 10))
	c.ReleaseMemory(10)
	assert.Zero(t, c.memoryUsage())
	assert.False(t, c.IOLimited())
	require.NoError(t, c.AcquireIO(t.Context(), 1<<20))
}

func TestLimitWriter(t *testing.T) {
	var buf bytes.Buffer
	w := LimitWriter(t.Context(), &buf, NewController(Config{}))
	assert.Same(t, &buf, w)

	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	w = LimitWriter(t.Context(), &buf, c)
	assert.IsType(t, &rateLimitedWriter{}, w)
	n, err := w.Write(make([]byte, 3<<20/2))
	require.NoError(t, err)
	assert.Equal(t, 3<<20/2, n)
}
