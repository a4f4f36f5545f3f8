package plotgen

import (
	"log/slog"

	"github.com/hupe1980/plotgen/blobstore"
	"github.com/hupe1980/plotgen/internal/extsort"
	"github.com/hupe1980/plotgen/internal/fs"
)

// Compression selects how sort runs are stored on disk.
type Compression = extsort.Compression

const (
	CompressionNone = extsort.CompressionNone
	CompressionLZ4  = extsort.CompressionLZ4
	CompressionZSTD = extsort.CompressionZSTD
)

// ParseCompression maps "none", "lz4" or "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	return extsort.ParseCompression(s)
}

type options struct {
	metricsCollector   MetricsCollector
	logger             *Logger
	workers            int
	spillCompression   Compression
	ioLimit            int64
	fs                 fs.FileSystem
	publisher          blobstore.Publisher
	publishConcurrency int
}

// Option configures a Plotter.
type Option func(*options)

// WithWorkers sets the size of the shared worker pool.
// If workers <= 0, runtime.GOMAXPROCS(0) is used.
func WithWorkers(workers int) Option {
	return func(o *options) {
		o.workers = workers
	}
}

// WithSpillCompression compresses the sort stage's temporary runs.
// LZ4 trades little CPU for less scratch disk; zstd shrinks runs further.
func WithSpillCompression(c Compression) Option {
	return func(o *options) {
		o.spillCompression = c
	}
}

// WithIOLimit caps the write throughput of stream, run and table files in
// bytes per second. Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithFileSystem replaces the file system used for writes. Mainly for tests.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fs = fsys
	}
}

// WithPublisher uploads the finished table files to p at the end of a run.
// concurrency bounds parallel uploads; <= 0 uses blobstore.DefaultConcurrency.
//
// Example with MinIO:
//
//	client, _ := minio.New("localhost:9000", &minio.Options{...})
//	p, _ := plotgen.New(cfg, plotgen.WithPublisher(minioblob.NewStore(client, "plots", ""), 4))
func WithPublisher(p blobstore.Publisher, concurrency int) Option {
	return func(o *options) {
		o.publisher = p
		o.publishConcurrency = concurrency
	}
}

// WithMetricsCollector configures metrics collection for a run.
// If nil is passed, metrics collection is disabled.
//
// Example:
//
//	metrics := &plotgen.BasicMetricsCollector{}
//	p, _ := plotgen.New(cfg, plotgen.WithMetricsCollector(metrics))
//	// ... p.Run(ctx) ...
//	stats := metrics.GetStats()
//	fmt.Printf("Sorted: %d, Kept: %d\n", stats.SortRecords, stats.CollationKept)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for a run.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := plotgen.NewJSONLogger(slog.LevelInfo)
//	p, _ := plotgen.New(cfg, plotgen.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		fs:               fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
