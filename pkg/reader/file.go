package reader

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"io"
	"unicode/utf8"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// File is a file which is only checked for its header, like sound
// samples and music
type File struct {
	Type schema.PackageType `json:"type"`
	MD5  [16]byte           `json:"md5sum"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	// The header of a sample file is the size of its fixed table of
	// samples, with an optional flag
	catHeaders = []uint32{0x80000248, 0x00000248}

	midiHeader = []byte("MThd\x00\x00\x00\x06")
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadCat checks the header of a sound sample file
func ReadCat(r io.Reader) (*File, error) {
	return readFile(r, schema.SoundFiles, 4, func(header []byte) error {
		v := binary.LittleEndian.Uint32(header)
		for _, h := range catHeaders {
			if v == h {
				return nil
			}
		}
		return schema.ErrBadSignature.With("Invalid cat header.")
	})
}

// ReadMidi checks the header of a MIDI file
func ReadMidi(r io.Reader) (*File, error) {
	return readFile(r, schema.MusicFiles, len(midiHeader), func(header []byte) error {
		if !bytes.Equal(header, midiHeader) {
			return schema.ErrBadSignature.With("Invalid MIDI header.")
		}
		return nil
	})
}

// ReadText checks a text file is UTF-8. Text files have no metadata.
func ReadText(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	} else if !utf8.Valid(data) {
		return errInvalidUTF8
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (f *File) PackageType() schema.PackageType {
	return f.Type
}

func (f *File) Checksum() [16]byte {
	return f.MD5
}

func (f *File) String() string {
	return types.Stringify(f)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func readFile(r io.Reader, t schema.PackageType, n int, check func([]byte) error) (*File, error) {
	reader := binreader.New(r, md5.New())
	header, err := reader.Read(n)
	if err != nil {
		return nil, err
	} else if err := check(header); err != nil {
		return nil, err
	} else if _, err := reader.Drain(); err != nil {
		return nil, err
	}

	self := &File{Type: t}
	copy(self.MD5[:], reader.Hash().Sum(nil))
	return self, nil
}
