package reader

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	zlib "github.com/klauspost/compress/zlib"
	types "github.com/mutablelogic/go-server/pkg/types"
	xz "github.com/ulikunitz/xz"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Landscape is the climate of a savegame
type Landscape uint8

// ScenarioNewGRF is a NewGRF a savegame depends on
type ScenarioNewGRF struct {
	GRFID    uint32  `json:"grfid"`
	MD5      string  `json:"md5sum"`
	Version  *uint32 `json:"version,omitempty"`
	Filename string  `json:"filename"`
}

// ScenarioScript is an AI or game script a savegame was started with
type ScenarioScript struct {
	ContentType schema.ContentType `json:"content-type"`
	Name        string             `json:"name"`
	Version     int64              `json:"version"`
}

// Scenario is the metadata of a savegame or scenario
type Scenario struct {
	MD5             [16]byte         `json:"md5sum"`
	SavegameVersion uint16           `json:"savegame-version"`
	IsPatchpack     bool             `json:"is-patchpack,omitempty"`
	MapSize         [2]uint32        `json:"map-size"`
	Histogram       [256]uint64      `json:"-"`
	NewGRFs         []ScenarioNewGRF `json:"newgrf,omitempty"`
	Scripts         []ScenarioScript `json:"scripts,omitempty"`
	Landscape       *Landscape       `json:"landscape,omitempty"`
}

type scenarioDecoder struct {
	*Scenario

	// Height sources; the newer one wins
	hasMapSize   bool
	histogram    *[256]uint64
	histogramOld *[256]uint64
}

type decompressFunc func(io.Reader) (io.Reader, error)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	LandscapeTemperate Landscape = iota
	LandscapeArctic
	LandscapeTropic
	LandscapeToyland
)

const (
	// Savegames before this version have no MAPS chunk and are 256x256
	savegameMapsVersion = 6

	// Savegames before r20090 could end with a block of zeros
	zeroBlockSize = 128 * 1024
)

var decompressors = map[string]decompressFunc{
	"OTTN": func(r io.Reader) (io.Reader, error) {
		return r, nil
	},
	"OTTZ": func(r io.Reader) (io.Reader, error) {
		return zlib.NewReader(r)
	},
	"OTTX": func(r io.Reader) (io.Reader, error) {
		return xz.NewReader(r)
	},
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadScenario decodes a savegame or scenario file
func ReadScenario(r io.Reader) (*Scenario, error) {
	self := &scenarioDecoder{Scenario: &Scenario{}}
	if err := self.read(binreader.New(r, md5.New())); err != nil {
		return nil, err
	}
	return self.Scenario, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (s *Scenario) PackageType() schema.PackageType {
	return schema.Scenario
}

func (s *Scenario) Checksum() [16]byte {
	return s.MD5
}

func (s *Scenario) String() string {
	return types.Stringify(s)
}

func (l Landscape) String() string {
	switch l {
	case LandscapeTemperate:
		return "temperate"
	case LandscapeArctic:
		return "arctic"
	case LandscapeTropic:
		return "tropic"
	case LandscapeToyland:
		return "toyland"
	default:
		return fmt.Sprintf("landscape-%d", uint8(l))
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (d *scenarioDecoder) read(raw *binreader.Reader) error {
	hash := raw.Hash()

	// Header
	compression, err := raw.Read(4)
	if err != nil {
		return err
	}
	version, err := raw.Uint16BE()
	if err != nil {
		return err
	}
	d.SavegameVersion = version & 0xFFF
	d.IsPatchpack = version&0x8000 != 0
	if _, err := raw.Uint16(); err != nil {
		return err
	}

	// Chunks are read from the decompressed stream, without a hash
	decompress, exists := decompressors[string(compression)]
	if !exists {
		return schema.ErrUnsupported.Withf("Unknown savegame compression %q.", compression)
	}
	stream, err := decompress(raw.Stream())
	if err != nil {
		return schema.ErrMalformed.Withf("savegame compression %q: %v", compression, err)
	}
	r := binreader.New(stream, nil)
	if err := d.readChunks(r); err != nil {
		return decompressErr(err)
	}
	if err := d.readTrailer(r); err != nil {
		return decompressErr(err)
	}

	// The checksum covers the whole file
	if _, err := raw.Drain(); err != nil {
		return err
	}

	// Map size and height data are required
	if d.SavegameVersion < savegameMapsVersion {
		d.MapSize = [2]uint32{256, 256}
		d.hasMapSize = true
	}
	if !d.hasMapSize {
		return schema.ErrMalformed.With("Scenario is missing essential chunks (MAPS).")
	}
	switch {
	case d.histogram != nil:
		d.Histogram = *d.histogram
	case d.histogramOld != nil:
		d.Histogram = *d.histogramOld
	default:
		return schema.ErrMalformed.With("Scenario is missing essential chunks (MAPT / MAPH).")
	}
	if uint64(d.MapSize[0])*uint64(d.MapSize[1]) == d.Histogram[0] {
		return schema.ErrMalformed.With("Map is completely empty.")
	}

	copy(d.MD5[:], hash.Sum(nil))
	return nil
}

// readTrailer accepts the end of the stream, or a block of zeros which old
// versions of the game wrote after the last chunk
func (d *scenarioDecoder) readTrailer(r *binreader.Reader) error {
	v, err := r.Uint8()
	if errors.Is(err, schema.ErrTruncated) {
		return nil
	} else if err != nil {
		return err
	} else if v != 0 {
		return schema.ErrTrailingData.With("Junk at the end of file.")
	}
	for remaining := zeroBlockSize - 1; remaining > 0; {
		data, err := r.ReadUpTo(min(remaining, chunkSlice))
		if err != nil {
			return err
		} else if len(data) == 0 {
			return schema.ErrTrailingData.With("Junk at the end of file.")
		}
		for _, b := range data {
			if b != 0 {
				return schema.ErrTrailingData.With("Junk at the end of file.")
			}
		}
		remaining -= len(data)
	}
	return nil
}

// decompressErr maps a failure of the decompressor to a malformed file,
// keeping errors which already carry a kind
func decompressErr(err error) error {
	if err == nil || schema.Kind(err) != 0 {
		return err
	}
	return schema.ErrMalformed.Withf("Invalid savegame: %v.", err)
}
