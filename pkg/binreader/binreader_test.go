package binreader_test

import (
	"bytes"
	"crypto/md5"
	"testing"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func Test_Gamma_RoundTrip(t *testing.T) {
	tests := []struct {
		value uint64
		size  int
	}{
		{0, 1},
		{0x7F, 1},
		{0x80, 2},
		{0x3FFF, 2},
		{0x4000, 3},
		{0x1FFFFF, 3},
		{0x200000, 4},
		{0xFFFFFFF, 4},
		{0x10000000, 5},
		{binreader.MaxGamma, 5},
	}
	for _, test := range tests {
		t.Run("", func(t *testing.T) {
			assert := assert.New(t)
			data := binreader.AppendGamma(nil, test.value)
			assert.Len(data, test.size)
			assert.Equal(test.size, binreader.GammaLen(test.value))

			r := binreader.NewBytes(append(data, 0xAA))
			value, n, err := r.Gamma()
			require.NoError(t, err)
			assert.Equal(test.value, value)
			assert.Equal(test.size, n)

			// The trailing byte must not have been consumed
			b, err := r.Uint8()
			require.NoError(t, err)
			assert.Equal(uint8(0xAA), b)
		})
	}
}

func Test_Gamma_Invalid(t *testing.T) {
	assert := assert.New(t)
	for _, b := range []byte{0xF8, 0xFC, 0xFF} {
		_, _, err := binreader.NewBytes([]byte{b, 0, 0, 0, 0, 0}).Gamma()
		assert.ErrorIs(err, schema.ErrMalformed)
	}
	_, _, err := binreader.NewBytes([]byte{0xC0, 0x01}).Gamma()
	assert.ErrorIs(err, schema.ErrTruncated)
}

func Test_ExtByte(t *testing.T) {
	assert := assert.New(t)

	r := binreader.NewBytes([]byte{0x12, 0xFF, 0x34, 0x12, 0xFE})
	v, err := r.ExtByte()
	assert.NoError(err)
	assert.Equal(uint16(0x12), v)
	v, err = r.ExtByte()
	assert.NoError(err)
	assert.Equal(uint16(0x1234), v)
	v, err = r.ExtByte()
	assert.NoError(err)
	assert.Equal(uint16(0xFE), v)
	_, err = r.ExtByte()
	assert.ErrorIs(err, schema.ErrTruncated)
}

func Test_Integers(t *testing.T) {
	assert := assert.New(t)
	data := []byte{
		0x01, 0x02, // u16 LE
		0x01, 0x02, // u16 BE
		0x01, 0x02, 0x03, // u24 BE
		0x01, 0x02, 0x03, 0x04, // u32 LE
		0xFF, 0xFF, 0xFF, 0xFE, // i32 BE
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // u64 BE
		0x80, // i8
	}
	r := binreader.NewBytes(data)

	u16, err := r.Uint16()
	assert.NoError(err)
	assert.Equal(uint16(0x0201), u16)
	u16, err = r.Uint16BE()
	assert.NoError(err)
	assert.Equal(uint16(0x0102), u16)
	u24, err := r.Uint24BE()
	assert.NoError(err)
	assert.Equal(uint32(0x010203), u24)
	u32, err := r.Uint32()
	assert.NoError(err)
	assert.Equal(uint32(0x04030201), u32)
	i32, err := r.Int32BE()
	assert.NoError(err)
	assert.Equal(int32(-2), i32)
	u64, err := r.Uint64BE()
	assert.NoError(err)
	assert.Equal(uint64(0x0102030405060708), u64)
	i8, err := r.Int8()
	assert.NoError(err)
	assert.Equal(int8(-128), i8)

	_, err = r.Uint16()
	assert.ErrorIs(err, schema.ErrTruncated)
}

func Test_Read(t *testing.T) {
	t.Run("Exact", func(t *testing.T) {
		data, err := binreader.NewBytes([]byte("hello world")).Read(5)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
	})
	t.Run("Truncated", func(t *testing.T) {
		_, err := binreader.NewBytes([]byte("hello")).Read(1 << 30)
		assert.ErrorIs(t, err, schema.ErrTruncated)
	})
	t.Run("UpTo", func(t *testing.T) {
		data, err := binreader.NewBytes([]byte("abc")).ReadUpTo(8)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), data)
	})
	t.Run("CString", func(t *testing.T) {
		r := binreader.NewBytes([]byte("abc\x00def"))
		s, err := r.CString()
		require.NoError(t, err)
		assert.Equal(t, "abc", string(s))
		s, err = r.CString()
		require.NoError(t, err)
		assert.Equal(t, "def", string(s))
	})
	t.Run("GammaString", func(t *testing.T) {
		data := append(binreader.AppendGamma(nil, 3), "abcd"...)
		s, err := binreader.NewBytes(data).GammaString()
		require.NoError(t, err)
		assert.Equal(t, "abc", string(s))
	})
}

func Test_Hash(t *testing.T) {
	assert := assert.New(t)
	data := bytes.Repeat([]byte("0123456789"), 2000)

	h := md5.New()
	r := binreader.New(bytes.NewReader(data), h)
	_, err := r.Read(10)
	assert.NoError(err)
	assert.NoError(r.Skip(10000))
	_, err = r.Uint32()
	assert.NoError(err)
	r.Detach()
	n, err := r.Drain()
	assert.NoError(err)
	assert.Equal(int64(len(data)-10014), n)

	expected := md5.Sum(data[:10014])
	assert.Equal(expected[:], h.Sum(nil))
}

func Test_Skip(t *testing.T) {
	assert := assert.New(t)
	r := binreader.NewBytes(make([]byte, 100))
	assert.NoError(r.Skip(99))
	assert.ErrorIs(r.Skip(2), schema.ErrTruncated)
}
