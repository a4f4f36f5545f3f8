package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Format selects one of the two fixed-width encodings.
type Format uint8

const (
	// FormatStream is the 36-byte intermediate encoding.
	FormatStream Format = iota
	// FormatTable is the 52-byte table encoding.
	FormatTable
)

// Size returns the encoded unit size of f.
func (f Format) Size() int {
	if f == FormatTable {
		return TableSize
	}
	return StreamSize
}

func (f Format) String() string {
	if f == FormatTable {
		return "table"
	}
	return "stream"
}

// TruncatedError reports a partial trailing unit that was dropped.
type TruncatedError struct {
	Format Format
	Bytes  int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("record: dropped %d trailing bytes of a partial %s unit", e.Bytes, e.Format)
}

// Writer buffers and encodes records of one format.
type Writer struct {
	bw      *bufio.Writer
	format  Format
	scratch [TableSize]byte
	count   int64
}

// NewWriter returns a Writer encoding units of format f onto w.
func NewWriter(w io.Writer, f Format) *Writer {
	return NewWriterSize(w, f, 64*1024)
}

// NewWriterSize is NewWriter with an explicit buffer size.
func NewWriterSize(w io.Writer, f Format, size int) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, size), format: f}
}

// Write encodes one record.
func (w *Writer) Write(r *Record) error {
	n := w.format.Size()
	if w.format == FormatTable {
		_ = r.PutTable(w.scratch[:n])
	} else {
		_ = r.PutStream(w.scratch[:n])
	}
	if _, err := w.bw.Write(w.scratch[:n]); err != nil {
		return err
	}
	w.count++
	return nil
}

// WriteAll encodes every record in rs.
func (w *Writer) WriteAll(rs []Record) error {
	for i := range rs {
		if err := w.Write(&rs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int64 { return w.count }

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }

// Reader decodes fixed-width units from a stream.
//
// Decoding stops at the first unit that cannot be read in full. A partial
// trailing unit surfaces once as a *TruncatedError; clean end of input is io.EOF.
type Reader struct {
	br      *bufio.Reader
	format  Format
	scratch [TableSize]byte
	count   int64
	done    bool
}

// NewReader returns a Reader decoding units of format f from r.
func NewReader(r io.Reader, f Format) *Reader {
	return NewReaderSize(r, f, 64*1024)
}

// NewReaderSize is NewReader with an explicit buffer size.
func NewReaderSize(r io.Reader, f Format, size int) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, size), format: f}
}

// Next decodes the next record.
func (r *Reader) Next() (Record, error) {
	if r.done {
		return Record{}, io.EOF
	}
	n := r.format.Size()
	got, err := io.ReadFull(r.br, r.scratch[:n])
	if err != nil {
		r.done = true
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, &TruncatedError{Format: r.format, Bytes: got}
		}
		return Record{}, err
	}
	r.count++
	if r.format == FormatTable {
		return DecodeTable(r.scratch[:n])
	}
	return DecodeStream(r.scratch[:n])
}

// Count returns the number of records decoded so far.
func (r *Reader) Count() int64 { return r.count }

// DecodeAll decodes every full unit in data. A trailing partial unit is
// reported as a *TruncatedError alongside the records decoded before it.
func DecodeAll(data []byte, f Format) ([]Record, error) {
	n := f.Size()
	count := len(data) / n
	out := make([]Record, count)
	for i := range out {
		unit := data[i*n : (i+1)*n]
		if f == FormatTable {
			out[i], _ = DecodeTable(unit)
		} else {
			out[i], _ = DecodeStream(unit)
		}
	}
	if rem := len(data) % n; rem != 0 {
		return out, &TruncatedError{Format: f, Bytes: rem}
	}
	return out, nil
}
