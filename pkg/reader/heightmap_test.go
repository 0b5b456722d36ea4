package reader

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"hash/crc32"
	"io"
	"image"
	"image/color"
	"image/png"
	"testing"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
	bmp "golang.org/x/image/bmp"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sum(histogram [256]uint64) uint64 {
	var result uint64
	for _, v := range histogram {
		result += v
	}
	return result
}

func Test_Heightmap_Gray(t *testing.T) {
	assert := assert.New(t)

	img := image.NewGray(image.Rect(0, 0, 30, 20))
	for x := range 30 {
		img.SetGray(x, 0, color.Gray{Y: 200})
	}
	data := encodePNG(t, img)

	heightmap, err := ReadHeightmap(bytes.NewReader(data), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal("png", heightmap.Format)
	assert.Equal(30, heightmap.Width)
	assert.Equal(20, heightmap.Height)
	assert.Equal(uint64(30), heightmap.Histogram[200])
	assert.Equal(uint64(30*19), heightmap.Histogram[0])
	assert.Equal(md5.Sum(data), heightmap.Checksum())
	assert.Equal(schema.Heightmap, heightmap.PackageType())
}

func Test_Heightmap_Models(t *testing.T) {
	// Every color model gives a histogram which covers every pixel
	bounds := image.Rect(0, 0, 17, 9)
	gray16 := image.NewGray16(bounds)
	gray16.SetGray16(0, 0, color.Gray16{Y: 0xABCD})
	rgba := image.NewNRGBA(bounds)
	rgba.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 10})

	tests := []struct {
		name  string
		img   image.Image
		level uint8
	}{
		{"Gray16", gray16, 0xAB},
		{"NRGBA", rgba, 255},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			heightmap, err := ReadHeightmap(bytes.NewReader(encodePNG(t, test.img)), DefaultMaxPixels)
			require.NoError(t, err)
			assert.Equal(t, uint64(17*9), sum(heightmap.Histogram))
			assert.Equal(t, uint64(1), heightmap.Histogram[test.level])
		})
	}
}

func Test_Heightmap_Palette(t *testing.T) {
	assert := assert.New(t)

	// Sixteen colors which are not gray are a ramp by index
	palette := make(color.Palette, 16)
	for i := range palette {
		palette[i] = color.RGBA{R: uint8(255 - i), G: 0, B: uint8(i), A: 255}
	}
	img := image.NewPaletted(image.Rect(0, 0, 4, 4), palette)
	img.SetColorIndex(0, 0, 8)
	img.SetColorIndex(1, 0, 15)

	heightmap, err := ReadHeightmap(bytes.NewReader(encodePNG(t, img)), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(uint64(1), heightmap.Histogram[128])
	assert.Equal(uint64(1), heightmap.Histogram[240])
	assert.Equal(uint64(14), heightmap.Histogram[0])
}

func Test_Heightmap_BMP(t *testing.T) {
	assert := assert.New(t)

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(3, 3, color.Gray{Y: 77})

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	heightmap, err := ReadHeightmap(&buf, DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal("bmp", heightmap.Format)
	assert.Equal(uint64(1), heightmap.Histogram[77])
	assert.Equal(uint64(63), heightmap.Histogram[0])
}

func Test_Heightmap_Errors(t *testing.T) {
	assert := assert.New(t)

	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 100, 100)))
	_, err := ReadHeightmap(bytes.NewReader(data), 100*100-1)
	assert.ErrorIs(err, schema.ErrSizeExceeded)

	_, err = ReadHeightmap(bytes.NewReader([]byte("not an image")), DefaultMaxPixels)
	assert.ErrorIs(err, schema.ErrMalformed)
}

// countingReader counts the bytes read from it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// pngHeader returns the signature and header chunk of a gray PNG
func pngHeader(width, height uint32) []byte {
	chunk := []byte("IHDR")
	chunk = binary.BigEndian.AppendUint32(chunk, width)
	chunk = binary.BigEndian.AppendUint32(chunk, height)
	chunk = append(chunk, 8, 0, 0, 0, 0)

	result := []byte("\x89PNG\r\n\x1a\n")
	result = binary.BigEndian.AppendUint32(result, uint32(len(chunk)-4))
	result = append(result, chunk...)
	return binary.BigEndian.AppendUint32(result, crc32.ChecksumIEEE(chunk))
}

func Test_Heightmap_TooLarge_Streamed(t *testing.T) {
	assert := assert.New(t)

	// The size is rejected without reading the image data
	data := append(pngHeader(100000, 100000), make([]byte, 64<<20)...)
	r := &countingReader{r: bytes.NewReader(data)}
	_, err := ReadHeightmap(r, DefaultMaxPixels)
	assert.ErrorIs(err, schema.ErrSizeExceeded)
	assert.EqualError(err, "Image is too large (100000x100000).")
	assert.LessOrEqual(r.n, int64(headerSize))

	// Accepted images are read to the end, and the checksum covers it all
	img := encodePNG(t, image.NewGray(image.Rect(0, 0, 64, 64)))
	img = append(img, make([]byte, 3*headerSize)...)
	r = &countingReader{r: bytes.NewReader(img)}
	heightmap, err := ReadHeightmap(r, DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(int64(len(img)), r.n)
	assert.Equal(md5.Sum(img), heightmap.Checksum())
}
