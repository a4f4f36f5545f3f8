// Package resource implements the Controller that governs a plot run's
// memory ceiling and optional IO throttling.
//
//	┌───────────────────────────────┬─────────────────────────┐
//	│          Controller           │                         │
//	├───────────────────────────────┼─────────────────────────┤
//	│  Memory ceiling (semaphore)   │  IO Rate Limiter        │
//	│  AcquireMemory (blocking)     │  (token bucket)         │
//	│  ReleaseMemory                │  AcquireIO              │
//	│  MemoryPeak                   │  LimitWriter            │
//	└───────────────────────────────┴─────────────────────────┘
//
// # Memory Management
//
// The external sort reserves every chunk and merge buffer before allocating it,
// so the bytes it holds never exceed the configured ceiling:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 512 << 20,
//	})
//
//	if err := rc.AcquireMemory(ctx, chunkBytes); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(chunkBytes)
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//	w := resource.LimitWriter(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
