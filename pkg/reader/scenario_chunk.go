package reader

import (
	"bytes"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type chunkFunc func(d *scenarioDecoder, r *binreader.Reader, tag string, kind uint8, ext uint32) error

// itemFunc interprets one record of a chunk
type itemFunc func(data []byte) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	// Size of the slices large chunks are streamed in
	chunkSlice = 8192

	// Largest record which is read into memory
	maxItemSize = 64 << 20

	chunkRIFF        = 0
	chunkArray       = 1
	chunkSparseArray = 2
	chunkTable       = 3
	chunkSparseTable = 4
)

var chunkTypes = map[uint8]chunkFunc{
	chunkRIFF:        (*scenarioDecoder).readRIFF,
	chunkArray:       (*scenarioDecoder).readArray,
	chunkSparseArray: (*scenarioDecoder).readArray,
	chunkTable:       (*scenarioDecoder).readTable,
	chunkSparseTable: (*scenarioDecoder).readTable,
}

// Chunks with metadata; all others are skipped without being kept in memory
var interpretedChunks = map[string]bool{
	"MAPS": true,
	"NGRF": true,
	"PATS": true,
	"OPTS": true,
	"AIPL": true,
	"GSDT": true,
}

var endOfChunks = []byte{0, 0, 0, 0}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (d *scenarioDecoder) readChunks(r *binreader.Reader) error {
	for {
		tag, err := r.ReadUpTo(4)
		if err != nil {
			return err
		} else if len(tag) == 0 || bytes.Equal(tag, endOfChunks) {
			return nil
		} else if len(tag) != 4 {
			return schema.ErrTruncated.With("invalid chunk header")
		}

		kind, err := r.Uint8()
		if err != nil {
			return err
		}
		var ext uint32
		if kind&0xF == 0xF {
			if ext, err = r.Uint32BE(); err != nil {
				return err
			} else if kind, err = r.Uint8(); err != nil {
				return err
			}
		}

		fn, exists := chunkTypes[kind&0xF]
		if !exists {
			return schema.ErrMalformed.Withf("unknown chunk type %d for chunk %q", kind&0xF, tag)
		}
		if err := fn(d, r, string(tag), kind, ext); err != nil {
			return err
		}
	}
}

// readRIFF reads a chunk which is a single block of data
func (d *scenarioDecoder) readRIFF(r *binreader.Reader, tag string, kind uint8, ext uint32) error {
	lo, err := r.Uint24BE()
	if err != nil {
		return err
	}
	size := uint64(kind>>4)<<24 | uint64(lo)
	if ext&1 != 0 {
		hi, err := r.Uint32BE()
		if err != nil {
			return err
		}
		size += uint64(hi) << 28
	}

	switch tag {
	case "MAPH":
		d.histogram = new([256]uint64)
		return streamChunk(r, size, func(data []byte, _ uint64) {
			for _, b := range data {
				d.histogram[b]++
			}
		})
	case "MAPT":
		d.histogramOld = new([256]uint64)
		return streamChunk(r, size, func(data []byte, _ uint64) {
			for _, b := range data {
				d.histogramOld[b&0xF]++
			}
		})
	case "WMAP":
		return d.readWMAP(r, size)
	}

	if !interpretedChunks[tag] {
		return streamChunk(r, size, nil)
	} else if size > maxItemSize {
		return schema.ErrMalformed.Withf("chunk %q is too large", tag)
	}
	data, err := r.Read(int(size))
	if err != nil {
		return err
	}
	return d.readItemOld(tag, data)
}

// readWMAP counts the height of each tile. Tiles are eight bytes each, with
// the height in the second byte.
func (d *scenarioDecoder) readWMAP(r *binreader.Reader, size uint64) error {
	if !d.hasMapSize {
		return schema.ErrMalformed.With("chunk WMAP found before MAPS")
	}
	tiles := uint64(d.MapSize[0]) * uint64(d.MapSize[1]) * 8
	if size < tiles {
		return schema.ErrMalformed.With("chunk WMAP is smaller than the map")
	}
	d.histogram = new([256]uint64)
	if err := streamChunk(r, tiles, func(data []byte, offset uint64) {
		for i := range data {
			if (offset+uint64(i))%8 == 1 {
				d.histogram[data[i]]++
			}
		}
	}); err != nil {
		return err
	}
	return streamChunk(r, size-tiles, nil)
}

// readArray reads a chunk of records without a header
func (d *scenarioDecoder) readArray(r *binreader.Reader, tag string, kind uint8, _ uint32) error {
	return readRecords(r, tag, kind&0xF == chunkSparseArray, func(data []byte) error {
		return d.readItemOld(tag, data)
	})
}

// readTable reads a chunk of records described by a header
func (d *scenarioDecoder) readTable(r *binreader.Reader, tag string, kind uint8, _ uint32) error {
	n, _, err := r.Gamma()
	if err != nil {
		return err
	} else if n == 0 {
		return schema.ErrMalformed.Withf("table chunk %q has no header", tag)
	} else if n-1 > maxItemSize {
		return schema.ErrMalformed.Withf("table chunk %q header is too large", tag)
	}
	header, err := r.Read(int(n - 1))
	if err != nil {
		return err
	}
	fields, err := readTableHeader(header)
	if err != nil {
		return err
	}

	return readRecords(r, tag, kind&0xF == chunkSparseTable, func(data []byte) error {
		item, err := readTableRecord(fields, data)
		if err != nil {
			return err
		}
		return d.readItem(tag, item)
	})
}

// readRecords walks the records of an array or table chunk. Records of
// chunks which are not interpreted are skipped.
func readRecords(r *binreader.Reader, tag string, sparse bool, fn itemFunc) error {
	for {
		n, _, err := r.Gamma()
		if err != nil {
			return err
		} else if n == 0 {
			return nil
		}
		size := n - 1
		if sparse {
			_, isz, err := r.Gamma()
			if err != nil {
				return err
			} else if uint64(isz) > size {
				return schema.ErrMalformed.Withf("chunk %q has an invalid record index", tag)
			}
			size -= uint64(isz)
		}

		if !interpretedChunks[tag] {
			if err := r.Skip(int64(size)); err != nil {
				return err
			}
			continue
		} else if size > maxItemSize {
			return schema.ErrMalformed.Withf("chunk %q has a record which is too large", tag)
		}
		data, err := r.Read(int(size))
		if err != nil {
			return err
		} else if err := fn(data); err != nil {
			return err
		}
	}
}

// streamChunk consumes size bytes in slices, passing each slice and its
// offset to fn when it is not nil
func streamChunk(r *binreader.Reader, size uint64, fn func([]byte, uint64)) error {
	var offset uint64
	for offset < size {
		data, err := r.ReadUpTo(int(min(size-offset, chunkSlice)))
		if err != nil {
			return err
		} else if len(data) == 0 {
			return schema.ErrTruncated
		}
		if fn != nil {
			fn(data, offset)
		}
		offset += uint64(len(data))
	}
	return nil
}
