package reader

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"errors"
	"image"
	"image/color"
	"io"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"

	// Image formats
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Heightmap is the metadata of a heightmap image
type Heightmap struct {
	MD5       [16]byte    `json:"md5sum"`
	Format    string      `json:"format"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Histogram [256]uint64 `json:"-"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Same cap as the decompression bomb check of common image libraries
	DefaultMaxPixels = 89478485

	// A palette of this size which is not gray is a height ramp
	heightRampSize = 16

	// Bytes read ahead to decode the image size. This covers the PNG
	// header chunk and the BMP headers, including a 256 entry palette.
	headerSize = 4096
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadHeightmap decodes a PNG or BMP heightmap. Images with more than
// maxPixels pixels are rejected before the pixel data is decoded.
func ReadHeightmap(r io.Reader, maxPixels int) (*Heightmap, error) {
	hash := md5.New()
	reader := bufio.NewReaderSize(io.TeeReader(r, hash), headerSize)

	// The size is checked on the header alone
	header, err := reader.Peek(headerSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	config, format, err := image.DecodeConfig(bytes.NewReader(header))
	if err != nil {
		return nil, schema.ErrMalformed.With("File is not a valid image.")
	} else if maxPixels > 0 && int64(config.Width)*int64(config.Height) > int64(maxPixels) {
		return nil, schema.ErrSizeExceeded.Withf("Image is too large (%dx%d).", config.Width, config.Height)
	}
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, schema.ErrMalformed.With("File is not a valid image.")
	}

	// Trailing bytes are part of the checksum
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return nil, err
	}

	self := &Heightmap{
		Format: format,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}
	copy(self.MD5[:], hash.Sum(nil))
	self.Histogram = histogram(img)
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (h *Heightmap) PackageType() schema.PackageType {
	return schema.Heightmap
}

func (h *Heightmap) Checksum() [16]byte {
	return h.MD5
}

func (h *Heightmap) String() string {
	return types.Stringify(h)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// histogram counts the height of every pixel, the way the game converts
// an image to heights
func histogram(img image.Image) [256]uint64 {
	var result [256]uint64
	bounds := img.Bounds()

	switch img := img.(type) {
	case *image.Paletted:
		palette := grayPalette(img.Palette)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				result[palette[img.ColorIndexAt(x, y)]]++
			}
		}
	case *image.Gray:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				result[img.GrayAt(x, y).Y]++
			}
		}
	case *image.Gray16:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				result[img.Gray16At(x, y).Y>>8]++
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				result[grayOf(img.At(x, y))]++
			}
		}
	}
	return result
}

// grayPalette maps palette indexes to heights. A non-gray palette of
// sixteen entries is a ramp where the index is the height.
func grayPalette(palette color.Palette) [256]uint8 {
	var result [256]uint8
	allGray := true
	for i, c := range palette {
		if i >= len(result) {
			break
		}
		v := color.NRGBA64Model.Convert(c).(color.NRGBA64)
		allGray = allGray && v.R == v.G && v.R == v.B
		result[i] = grayOf(c)
	}
	if len(palette) == heightRampSize && !allGray {
		for i := range heightRampSize {
			result[i] = uint8(256 * i / heightRampSize)
		}
	}
	return result
}

// grayOf returns the luminance of a color, ignoring alpha. Channels wider
// than eight bits are reduced to their high byte first.
func grayOf(c color.Color) uint8 {
	v := color.NRGBA64Model.Convert(c).(color.NRGBA64)
	r, g, b := uint32(v.R>>8), uint32(v.G>>8), uint32(v.B>>8)
	return uint8((r*19595 + g*38470 + b*7471) / 65536)
}
