package reader

import (
	"bytes"
	"crypto/md5"
	"errors"
	"io"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// NewGRF is the metadata of a NewGRF file
type NewGRF struct {
	MD5                  [16]byte `json:"md5sum"`
	ID                   []byte   `json:"unique-id,omitempty"`
	GRFVersion           uint8    `json:"grf-version,omitempty"`
	Name                 string   `json:"name,omitempty"`
	Description          string   `json:"description,omitempty"`
	URL                  string   `json:"url,omitempty"`
	Version              *uint32  `json:"version,omitempty"`
	MinCompatibleVersion *uint32  `json:"min-compatible-version,omitempty"`
	ContainerVersion     int      `json:"container-version"`
	Features             Features `json:"features"`
}

// newgrfDecoder holds the state carried between pseudo sprites
type newgrfDecoder struct {
	*NewGRF

	// Feature ids remapped through action 14 FIDM nodes
	featureMap     map[uint8]Feature
	nextFeatureMap *Feature
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	newgrfMagic = []byte("GRF\x82\r\n\x1a\n")
)

const (
	infoPseudo       = 0xFF
	infoSpriteRef    = 0xFD
	infoNoCompress   = 0x02
	spriteHeaderSize = 8
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadNewGRF decodes a NewGRF file in either container format
func ReadNewGRF(r io.Reader) (*NewGRF, error) {
	self := &newgrfDecoder{
		NewGRF:     &NewGRF{Features: make(Features)},
		featureMap: make(map[uint8]Feature),
	}
	if err := self.read(binreader.New(r, md5.New())); err != nil {
		return nil, err
	}
	return self.NewGRF, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (n *NewGRF) PackageType() schema.PackageType {
	return schema.NewGRF
}

func (n *NewGRF) Checksum() [16]byte {
	return n.MD5
}

func (n *NewGRF) UniqueID() []byte {
	return n.ID
}

func (n *NewGRF) String() string {
	return types.Stringify(n)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (d *newgrfDecoder) read(r *binreader.Reader) error {
	hash := r.Hash()

	// Container 2 starts with a zero length, then a signature
	size, err := d.readHeader(r)
	if err != nil {
		return err
	}

	// Walk the sprite records
	var skip int
	var action6 bool
	for index := 0; size != 0; index++ {
		info, err := r.Uint8()
		if err != nil {
			return err
		}
		if info == infoPseudo {
			if skip > 0 {
				action6 = false
				if err := r.Skip(int64(size)); err != nil {
					return err
				}
				skip--
			} else if pseudo, err := r.Read(int(size)); err != nil {
				return err
			} else if index != 0 {
				// The first pseudo sprite is the sprite count
				if skip, action6, err = d.readPseudo(pseudo, action6); err != nil {
					return schema.ErrMalformedPseudo.Withf("pseudo sprite %d: %v", index, err)
				}
			}
		} else {
			action6 = false
			if skip > 0 {
				skip--
			}
			if err := d.readSprite(r, index, info, size); err != nil {
				return err
			}
		}

		// Next record
		if d.ContainerVersion == 2 {
			size, err = r.Uint32()
		} else {
			var v uint16
			v, err = r.Uint16()
			size = uint32(v)
		}
		if err != nil {
			return err
		}
	}

	// Container 1 has a checksum after the sprites. Some files only have a
	// 16-bit checksum; the game never reads it, so that is accepted.
	if d.ContainerVersion == 1 {
		if _, err := r.Uint16(); err != nil {
			return err
		} else if _, err := r.Uint16(); err != nil && !errors.Is(err, schema.ErrTruncated) {
			return err
		}
	}

	// The sprite section of container 2 is not part of the checksum
	r.Detach()
	if d.ContainerVersion == 2 {
		if err := d.readSpriteSection(r); err != nil {
			return err
		}
	}

	// Nothing may follow
	if _, err := r.Uint8(); err == nil {
		return schema.ErrTrailingData.With("Junk at the end of file.")
	} else if !errors.Is(err, schema.ErrTruncated) {
		return err
	}

	copy(d.MD5[:], hash.Sum(nil))
	return nil
}

func (d *newgrfDecoder) readHeader(r *binreader.Reader) (uint32, error) {
	size, err := r.Uint16()
	if err != nil {
		return 0, err
	} else if size != 0 {
		d.ContainerVersion = 1
		return uint32(size), nil
	}

	if magic, err := r.Read(len(newgrfMagic)); err != nil {
		return 0, err
	} else if !bytes.Equal(magic, newgrfMagic) {
		return 0, schema.ErrBadSignature.With("Neither container 1 nor 2.")
	}
	d.ContainerVersion = 2

	// Offset of the sprite section, then the compression
	if _, err := r.Uint32(); err != nil {
		return 0, err
	}
	if compression, err := r.Uint8(); err != nil {
		return 0, err
	} else if compression != 0 {
		return 0, schema.ErrUnsupported.Withf("Unknown container 2 compression 0x%02X.", compression)
	}
	return r.Uint32()
}

// readSprite validates a real sprite without keeping any pixel data
func (d *newgrfDecoder) readSprite(r *binreader.Reader, index int, info uint8, size uint32) error {
	switch {
	case d.ContainerVersion == 2 && info == infoSpriteRef:
		return r.Skip(int64(size))
	case d.ContainerVersion == 1 && size >= spriteHeaderSize:
		d.Features.Add(FeatureSprites, uint32(index), 1)

		// Height, width, x-offset, y-offset
		if err := r.Skip(spriteHeaderSize - 1); err != nil {
			return err
		}
		remaining := int(size) - spriteHeaderSize
		if info&infoNoCompress != 0 {
			return r.Skip(int64(remaining))
		}
		return readSpriteRLE(r, remaining)
	default:
		return schema.ErrMalformed.Withf("unknown info byte 0x%02X for sprite %d", info, index)
	}
}

// readSpriteRLE walks the compressed pixel stream of a container 1 sprite
// and checks it decodes to exactly the declared size
func readSpriteRLE(r *binreader.Reader, remaining int) error {
	for remaining > 0 {
		code, err := r.Uint8()
		if err != nil {
			return err
		}

		var n int
		if code < 0x80 {
			// Literal run
			n = int(code)
			if n == 0 {
				n = 0x80
			}
			if err := r.Skip(int64(n)); err != nil {
				return err
			}
		} else {
			// Back reference
			n = 32 - int(code>>3)
			if err := r.Skip(1); err != nil {
				return err
			}
		}
		if n > remaining {
			return schema.ErrMalformed.With("Failed sprite decoding.")
		}
		remaining -= n
	}
	return nil
}

func (d *newgrfDecoder) readSpriteSection(r *binreader.Reader) error {
	for {
		id, err := r.Uint32()
		if err != nil {
			return err
		} else if id == 0 {
			return nil
		}

		size, err := r.Uint32()
		if err != nil {
			return err
		} else if size < 2 {
			return schema.ErrMalformed.Withf("sprite %d has invalid size %d", id, size)
		}
		info, err := r.Uint8()
		if err != nil {
			return err
		}
		zoom, err := r.Uint8()
		if err != nil {
			return err
		}

		if info != infoPseudo {
			d.Features.Add(FeatureSprites, id, 1)
			if info&0x03 != 0 {
				d.Features.Add(FeatureSprites32bpp, id, 1)
			}
			if zoom == 0x01 || zoom == 0x02 {
				d.Features.Add(FeatureSpritesZoomin, id, 1)
			}
		}
		if err := r.Skip(int64(size) - 2); err != nil {
			return err
		}
	}
}
