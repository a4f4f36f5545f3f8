package record

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(i uint32) Record {
	var h Hash
	for j := range h {
		h[j] = byte(int(i)*7 + j)
	}
	return Record{Nonce: NonceFromIndex(i), Hash: h, Position: uint64(i) * 3, Offset: uint64(i) + 11}
}

func TestNonceIndex(t *testing.T) {
	n := NonceFromIndex(0x01020304)
	assert.Equal(t, Nonce{0x04, 0x03, 0x02, 0x01}, n)
	assert.Equal(t, uint32(0x01020304), n.Index())
}

func TestTableRoundTrip(t *testing.T) {
	r := sample(42)
	buf := make([]byte, TableSize)
	require.NoError(t, r.PutTable(buf))

	// field order is nonce, hash, position, offset
	assert.Equal(t, r.Nonce[:], buf[:NonceSize])
	assert.Equal(t, r.Hash[:], buf[NonceSize:StreamSize])

	got, err := DecodeTable(buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestStreamRoundTrip(t *testing.T) {
	r := sample(7)
	buf := make([]byte, StreamSize)
	require.NoError(t, r.PutStream(buf))

	got, err := DecodeStream(buf)
	require.NoError(t, err)
	assert.Equal(t, r.Nonce, got.Nonce)
	assert.Equal(t, r.Hash, got.Hash)
	assert.Zero(t, got.Position)
	assert.Zero(t, got.Offset)
}

func TestShortBuffer(t *testing.T) {
	r := sample(1)
	assert.ErrorIs(t, r.PutTable(make([]byte, TableSize-1)), ErrShortBuffer)
	assert.ErrorIs(t, r.PutStream(make([]byte, StreamSize-1)), ErrShortBuffer)
	_, err := DecodeTable(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestCompareUsesHashOnly(t *testing.T) {
	a := sample(1)
	b := a
	b.Nonce = NonceFromIndex(99)
	b.Position = 1000
	assert.Equal(t, 0, Compare(a, b))
	assert.True(t, Equal(a, b))

	c := a
	c.Hash[0]++
	assert.Equal(t, -1, Compare(a, c))
	assert.Equal(t, 1, Compare(c, a))
	assert.False(t, Equal(a, c))
}

func TestPrefixEqual(t *testing.T) {
	a := sample(3).Hash
	b := a
	b[PrefixSize] ^= 0xff
	assert.True(t, PrefixEqual(a, b))
	b[PrefixSize-1] ^= 0xff
	assert.False(t, PrefixEqual(a, b))
}

func TestWriterReaderStream(t *testing.T) {
	for _, f := range []Format{FormatStream, FormatTable} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, f)
			want := make([]Record, 20)
			for i := range want {
				want[i] = sample(uint32(i))
				if f == FormatStream {
					want[i].Position, want[i].Offset = 0, 0
				}
			}
			require.NoError(t, w.WriteAll(want))
			require.NoError(t, w.Flush())
			assert.Equal(t, int64(20), w.Count())
			assert.Equal(t, 20*f.Size(), buf.Len())

			r := NewReader(&buf, f)
			var got []Record
			for {
				rec, err := r.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				got = append(got, rec)
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestReaderTruncatedTail(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatStream)
	require.NoError(t, w.WriteAll([]Record{sample(1), sample(2)}))
	require.NoError(t, w.Flush())
	buf.Write([]byte{1, 2, 3, 4, 5})

	r := NewReader(&buf, FormatStream)
	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	var te *TruncatedError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 5, te.Bytes)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(2), r.Count())
}

func TestDecodeAll(t *testing.T) {
	data := make([]byte, 3*TableSize+4)
	for i := 0; i < 3; i++ {
		r := sample(uint32(i))
		require.NoError(t, r.PutTable(data[i*TableSize:]))
	}

	rs, err := DecodeAll(data, FormatTable)
	var te *TruncatedError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 4, te.Bytes)
	require.Len(t, rs, 3)
	assert.Equal(t, sample(2), rs[2])

	rs, err = DecodeAll(data[:3*TableSize], FormatTable)
	require.NoError(t, err)
	assert.Len(t, rs, 3)
}
