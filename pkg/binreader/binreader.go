package binreader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash"
	"io"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Reader reads typed values from a byte stream. When a hash is attached,
// every byte consumed (including skipped bytes) is written to it.
type Reader struct {
	r    io.Reader
	hash hash.Hash
	buf  [8]byte
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Size of the slices used when skipping or reading large blocks
	chunkSize = 8192
)

var (
	ErrInvalidGamma = schema.ErrMalformed.With("invalid gamma encoding")
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a reader over r. The hash may be nil.
func New(r io.Reader, h hash.Hash) *Reader {
	return &Reader{r: r, hash: h}
}

// NewBytes returns a reader over a byte slice, without a hash.
func NewBytes(data []byte) *Reader {
	return New(bytes.NewReader(data), nil)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - HASH

// Attach starts feeding consumed bytes into h
func (r *Reader) Attach(h hash.Hash) {
	r.hash = h
}

// Detach stops feeding consumed bytes into the hash. Reading continues.
func (r *Reader) Detach() {
	r.hash = nil
}

// Hash returns the attached hash, or nil
func (r *Reader) Hash() hash.Hash {
	return r.hash
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - BYTES

// Read returns exactly n bytes, or fails with schema.ErrTruncated. The
// buffer grows with the data actually read, so a bogus length read from
// the stream cannot force a large allocation.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 {
		return nil, schema.ErrMalformed.Withf("negative read of %d bytes", n)
	} else if n == 0 {
		return []byte{}, nil
	}
	if n <= len(r.buf) {
		data := make([]byte, n)
		if err := r.fill(data); err != nil {
			return nil, err
		}
		return data, nil
	}
	var buf bytes.Buffer
	if m, err := io.Copy(&buf, io.LimitReader(r.r, int64(n))); err != nil {
		return nil, err
	} else if m != int64(n) {
		r.sum(buf.Bytes())
		return nil, schema.ErrTruncated
	}
	r.sum(buf.Bytes())
	return buf.Bytes(), nil
}

// ReadAll returns all remaining bytes
func (r *Reader) ReadAll() ([]byte, error) {
	data, err := io.ReadAll(r.r)
	r.sum(data)
	return data, err
}

// ReadUpTo returns at most n bytes; fewer are returned only at the end of
// the stream
func (r *Reader) ReadUpTo(n int) ([]byte, error) {
	data := make([]byte, n)
	m, err := io.ReadFull(r.r, data)
	r.sum(data[:m])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return data[:m], err
}

// Skip consumes n bytes without retaining them
func (r *Reader) Skip(n int64) error {
	if n < 0 {
		return schema.ErrMalformed.Withf("negative skip of %d bytes", n)
	}
	var w io.Writer = io.Discard
	if r.hash != nil {
		w = r.hash
	}
	if m, err := io.CopyN(w, r.r, n); err != nil && !errors.Is(err, io.EOF) {
		return err
	} else if m != n {
		return schema.ErrTruncated
	}
	return nil
}

// Drain consumes the remainder of the stream without retaining it, and
// returns the number of bytes consumed
func (r *Reader) Drain() (int64, error) {
	var w io.Writer = io.Discard
	if r.hash != nil {
		w = r.hash
	}
	return io.Copy(w, r.r)
}

// CString reads a NUL-terminated string. The terminator is not returned.
// The end of the stream also terminates the string.
func (r *Reader) CString() ([]byte, error) {
	var result []byte
	for {
		b, err := r.Uint8()
		if errors.Is(err, schema.ErrTruncated) {
			return result, nil
		} else if err != nil {
			return nil, err
		} else if b == 0 {
			return result, nil
		}
		result = append(result, b)
	}
}

// GammaString reads a string prefixed with its gamma-encoded length
func (r *Reader) GammaString() ([]byte, error) {
	n, _, err := r.Gamma()
	if err != nil {
		return nil, err
	}
	return r.Read(int(n))
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - INTEGERS

func (r *Reader) Uint8() (uint8, error) {
	if err := r.fill(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Uint16() (uint16, error) {
	if err := r.fill(r.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

func (r *Reader) Uint16BE() (uint16, error) {
	if err := r.fill(r.buf[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.buf[:2]), nil
}

func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

func (r *Reader) Int16BE() (int16, error) {
	v, err := r.Uint16BE()
	return int16(v), err
}

func (r *Reader) Uint24() (uint32, error) {
	if err := r.fill(r.buf[:3]); err != nil {
		return 0, err
	}
	return uint32(r.buf[0]) | uint32(r.buf[1])<<8 | uint32(r.buf[2])<<16, nil
}

func (r *Reader) Uint24BE() (uint32, error) {
	if err := r.fill(r.buf[:3]); err != nil {
		return 0, err
	}
	return uint32(r.buf[0])<<16 | uint32(r.buf[1])<<8 | uint32(r.buf[2]), nil
}

func (r *Reader) Uint32() (uint32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

func (r *Reader) Uint32BE() (uint32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.buf[:4]), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Int32BE() (int32, error) {
	v, err := r.Uint32BE()
	return int32(v), err
}

func (r *Reader) Uint64() (uint64, error) {
	if err := r.fill(r.buf[:8]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.buf[:8]), nil
}

func (r *Reader) Uint64BE() (uint64, error) {
	if err := r.fill(r.buf[:8]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(r.buf[:8]), nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Int64BE() (int64, error) {
	v, err := r.Uint64BE()
	return int64(v), err
}

// ExtByte reads a byte; the value 0xFF escapes to a following 16-bit
// little-endian word
func (r *Reader) ExtByte() (uint16, error) {
	v, err := r.Uint8()
	if err != nil {
		return 0, err
	} else if v != 0xFF {
		return uint16(v), nil
	}
	return r.Uint16()
}

// Gamma reads a gamma-encoded integer and returns the value and the number
// of bytes it occupied. The number of leading one bits in the first byte
// is the number of bytes which follow, in big-endian order.
func (r *Reader) Gamma() (uint64, int, error) {
	b, err := r.Uint8()
	if err != nil {
		return 0, 0, err
	}

	var value uint64
	var extra int
	switch {
	case b&0x80 == 0:
		return uint64(b & 0x7F), 1, nil
	case b&0xC0 == 0x80:
		value, extra = uint64(b&0x3F), 1
	case b&0xE0 == 0xC0:
		value, extra = uint64(b&0x1F), 2
	case b&0xF0 == 0xE0:
		value, extra = uint64(b&0x0F), 3
	case b&0xF8 == 0xF0:
		value, extra = uint64(b&0x07), 4
	default:
		return 0, 0, ErrInvalidGamma
	}
	if err := r.fill(r.buf[:extra]); err != nil {
		return 0, 0, err
	}
	for _, v := range r.buf[:extra] {
		value = value<<8 | uint64(v)
	}
	return value, extra + 1, nil
}

// Stream returns an io.Reader over the remaining bytes, which feeds the
// attached hash. It is used to layer a decompressor over the reader.
func (r *Reader) Stream() io.Reader {
	return stream{r}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

type stream struct {
	reader *Reader
}

func (s stream) Read(data []byte) (int, error) {
	n, err := s.reader.r.Read(data)
	s.reader.sum(data[:n])
	return n, err
}

func (r *Reader) fill(data []byte) error {
	n, err := io.ReadFull(r.r, data)
	r.sum(data[:n])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return schema.ErrTruncated
	}
	return err
}

func (r *Reader) sum(data []byte) {
	if r.hash != nil && len(data) > 0 {
		r.hash.Write(data)
	}
}
