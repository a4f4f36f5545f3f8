package extsort

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/plotgen/internal/resource"
)

// Compression selects how spilled runs are stored.
type Compression uint8

const (
	// CompressionNone stores runs as raw table units.
	CompressionNone Compression = iota
	// CompressionLZ4 stores runs as LZ4 frames (fast, modest ratio).
	CompressionLZ4
	// CompressionZSTD stores runs as zstd streams (slower, better ratio).
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression maps a name ("none", "lz4", "zstd") to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("extsort: unknown compression %q", s)
	}
}

const (
	// codecWindow is the LZ4 block size and the zstd window of spilled runs.
	codecWindow = 64 << 10

	// lz4 block compressor: 64K-entry uint16 hash table plus its in-use bitmap.
	lz4CompressorMem = 136 << 10
)

// encoderMem is the memory one run encoder holds while it is alive.
func (c Compression) encoderMem() int64 {
	switch c {
	case CompressionLZ4:
		// pending block, compressed block, block compressor
		return 2*codecWindow + lz4CompressorMem
	case CompressionZSTD:
		// 32K-entry match table, window plus one block of history, block buffers
		return 1 << 20
	default:
		return 0
	}
}

// decoderMem is the memory one run decoder holds while it is alive.
func (c Compression) decoderMem() int64 {
	switch c {
	case CompressionLZ4:
		// compressed block, decoded block
		return 2 * codecWindow
	case CompressionZSTD:
		// window plus one block of history, block and literal buffers
		return 512 << 10
	default:
		return 0
	}
}

type encoder interface {
	io.WriteCloser
	Reset(w io.Writer)
}

type decoder interface {
	io.Reader
	Reset(r io.Reader) error
	Close()
}

type lz4Decoder struct{ *lz4.Reader }

func (d lz4Decoder) Reset(r io.Reader) error {
	d.Reader.Reset(r)
	return nil
}

// Close hands the block buffers back to the lz4 pools.
func (d lz4Decoder) Close() { d.Reader.Reset(nil) }

func newEncoder(w io.Writer, c Compression) (encoder, error) {
	switch c {
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.BlockSizeOption(lz4.Block64Kb), lz4.ConcurrencyOption(1)); err != nil {
			return nil, err
		}
		return zw, nil
	case CompressionZSTD:
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithWindowSize(codecWindow),
			zstd.WithLowerEncoderMem(true),
			zstd.WithEncoderConcurrency(1),
		)
	default:
		return nil, fmt.Errorf("extsort: no encoder for %s", c)
	}
}

func newDecoder(r io.Reader, c Compression) (decoder, error) {
	switch c {
	case CompressionLZ4:
		zr := lz4.NewReader(r)
		if err := zr.Apply(lz4.ConcurrencyOption(1)); err != nil {
			return nil, err
		}
		return lz4Decoder{zr}, nil
	case CompressionZSTD:
		return zstd.NewReader(r,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
			zstd.WithDecoderMaxWindow(codecWindow),
		)
	default:
		return nil, fmt.Errorf("extsort: no decoder for %s", c)
	}
}

// codecPool hands out run encoders and decoders and keeps them for reuse.
//
// The memory of every codec the pool may create is reserved against the
// controller by grow before the codec exists, and stays reserved until
// release. Callers grow the pool to the number of codecs they hold at once.
type codecPool struct {
	c  Compression
	rc *resource.Controller

	encSlots, decSlots int
	encs               []encoder
	decs               []decoder
}

func newCodecPool(c Compression, rc *resource.Controller) *codecPool {
	return &codecPool{c: c, rc: rc}
}

// grow reserves memory for at least encoders and decoders live codecs.
func (p *codecPool) grow(ctx context.Context, encoders, decoders int) error {
	addEnc := max(encoders-p.encSlots, 0)
	addDec := max(decoders-p.decSlots, 0)
	need := int64(addEnc)*p.c.encoderMem() + int64(addDec)*p.c.decoderMem()
	if need > 0 {
		if err := p.rc.AcquireMemory(ctx, need); err != nil {
			return fmt.Errorf("reserve %s codecs: %w", p.c, err)
		}
	}
	p.encSlots += addEnc
	p.decSlots += addDec
	return nil
}

// reserved is the codec memory currently held against the controller.
func (p *codecPool) reserved() int64 {
	return int64(p.encSlots)*p.c.encoderMem() + int64(p.decSlots)*p.c.decoderMem()
}

// writer wraps w in a compressing writer. Closing the result flushes the
// codec and returns it to the pool but leaves w open.
func (p *codecPool) writer(w io.Writer) (io.WriteCloser, error) {
	if p.c == CompressionNone {
		return nopWriteCloser{w}, nil
	}
	if n := len(p.encs); n > 0 {
		enc := p.encs[n-1]
		p.encs = p.encs[:n-1]
		enc.Reset(w)
		return &pooledEncoder{encoder: enc, pool: p}, nil
	}
	enc, err := newEncoder(w, p.c)
	if err != nil {
		return nil, err
	}
	return &pooledEncoder{encoder: enc, pool: p}, nil
}

// reader wraps r in a decompressing reader. Closing the result returns the
// codec to the pool but does not close r.
func (p *codecPool) reader(r io.Reader) (io.ReadCloser, error) {
	if p.c == CompressionNone {
		return io.NopCloser(r), nil
	}
	if n := len(p.decs); n > 0 {
		dec := p.decs[n-1]
		p.decs = p.decs[:n-1]
		if err := dec.Reset(r); err != nil {
			dec.Close()
			return nil, err
		}
		return &pooledDecoder{decoder: dec, pool: p}, nil
	}
	dec, err := newDecoder(r, p.c)
	if err != nil {
		return nil, err
	}
	return &pooledDecoder{decoder: dec, pool: p}, nil
}

// release closes idle codecs and returns the pool's reservation.
func (p *codecPool) release() {
	for _, d := range p.decs {
		d.Close()
	}
	p.encs, p.decs = nil, nil
	p.rc.ReleaseMemory(p.reserved())
	p.encSlots, p.decSlots = 0, 0
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type pooledEncoder struct {
	encoder
	pool *codecPool
}

func (e *pooledEncoder) Close() error {
	if e.pool == nil {
		return nil
	}
	err := e.encoder.Close()
	e.pool.encs = append(e.pool.encs, e.encoder)
	e.pool = nil
	return err
}

type pooledDecoder struct {
	decoder
	pool *codecPool
}

func (d *pooledDecoder) Close() error {
	if d.pool != nil {
		d.pool.decs = append(d.pool.decs, d.decoder)
		d.pool = nil
	}
	return nil
}
