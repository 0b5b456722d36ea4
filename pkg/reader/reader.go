package reader

import (
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Object is the metadata decoded from one file
type Object interface {
	PackageType() schema.PackageType
	Checksum() [16]byte
}

// Identified is an Object which carries the unique id of its package
type Identified interface {
	Object
	UniqueID() []byte
}

// Format selects the decoder for a file
type Format int

type opt struct {
	maxPixels int
}

// Opt is an option for decoding
type Opt func(*opt) error

type decodeFunc func(r io.Reader, o *opt) (Object, error)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	FormatUnknown Format = iota
	FormatNewGRF
	FormatScenario
	FormatHeightmap
	FormatScript
	FormatMainScript
	FormatEntryScript
	FormatBaseGraphics
	FormatBaseMusic
	FormatBaseSounds
	FormatCat
	FormatMidi
	FormatText
)

var extensions = map[string]Format{
	"grf": FormatNewGRF,
	"scn": FormatScenario,
	"png": FormatHeightmap,
	"bmp": FormatHeightmap,
	"nut": FormatScript,
	"obg": FormatBaseGraphics,
	"obm": FormatBaseMusic,
	"obs": FormatBaseSounds,
	"cat": FormatCat,
	"mid": FormatMidi,
	"gm":  FormatMidi,
}

var decoders = map[Format]decodeFunc{
	FormatNewGRF: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadNewGRF(r))
	},
	FormatScenario: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadScenario(r))
	},
	FormatHeightmap: func(r io.Reader, o *opt) (Object, error) {
		return object(ReadHeightmap(r, o.maxPixels))
	},
	FormatScript: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadScript(r, false))
	},
	FormatMainScript: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadScript(r, true))
	},
	FormatEntryScript: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadEntryScript(r))
	},
	FormatBaseGraphics: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadBaseSet(schema.BaseGraphics, r))
	},
	FormatBaseMusic: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadBaseSet(schema.BaseMusic, r))
	},
	FormatBaseSounds: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadBaseSet(schema.BaseSounds, r))
	},
	FormatCat: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadCat(r))
	},
	FormatMidi: func(r io.Reader, _ *opt) (Object, error) {
		return object(ReadMidi(r))
	},
	FormatText: func(r io.Reader, _ *opt) (Object, error) {
		return nil, ReadText(r)
	},
}

var (
	// Readme and changelog can be translated, like readme_nl.txt or
	// readme_nl_NL.txt
	reTranslatedText = regexp.MustCompile(`^(readme|changelog)(_[a-z]{2}(_[A-Z]{2})?)?\.txt$`)

	ErrUnknownFile = schema.ErrUnknownFileType.With("Could not recognise this file; possibly the extension is wrong?")
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithMaxPixels sets the largest heightmap which is decoded
func WithMaxPixels(n int) Opt {
	return func(o *opt) error {
		if n <= 0 {
			return schema.ErrMalformed.Withf("invalid pixel limit %d", n)
		}
		o.maxPixels = n
		return nil
	}
}

// Detect returns the format of a file from its name within a package, or
// an error when the file is not recognised
func Detect(filename string) (Format, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".txt"):
		if filename == "license.txt" || reTranslatedText.MatchString(filename) || strings.HasPrefix(filename, "lang/") {
			return FormatText, nil
		}
		return FormatUnknown, ErrUnknownFile
	case filename == "info.nut" || filename == "library.nut":
		return FormatEntryScript, nil
	case lower == "main.nut":
		return FormatMainScript, nil
	}

	ext := strings.TrimPrefix(path.Ext(lower), ".")
	if format, exists := extensions[ext]; exists {
		return format, nil
	}
	return FormatUnknown, ErrUnknownFile
}

// Decode reads a file of the given format. Text files are checked but
// return a nil object. A panic in a decoder is returned as an error.
func Decode(format Format, r io.Reader, opts ...Opt) (result Object, err error) {
	o := opt{maxPixels: DefaultMaxPixels}
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}

	decoder, exists := decoders[format]
	if !exists {
		return nil, ErrUnknownFile
	}
	defer func() {
		if v := recover(); v != nil {
			result, err = nil, schema.ErrMalformed.Withf("Internal error while reading file: %v", v)
		}
	}()
	return decoder(r, &o)
}

// Read detects the format of a file from its name, and decodes it
func Read(filename string, r io.Reader, opts ...Opt) (Object, error) {
	format, err := Detect(filename)
	if err != nil {
		return nil, err
	}
	return Decode(format, r, opts...)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// object returns a nil interface rather than a typed nil on error
func object[T Object](v T, err error) (Object, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (f Format) String() string {
	switch f {
	case FormatNewGRF:
		return "newgrf"
	case FormatScenario:
		return "scenario"
	case FormatHeightmap:
		return "heightmap"
	case FormatScript:
		return "script"
	case FormatMainScript:
		return "main-script"
	case FormatEntryScript:
		return "entry-script"
	case FormatBaseGraphics:
		return "base-graphics"
	case FormatBaseMusic:
		return "base-music"
	case FormatBaseSounds:
		return "base-sounds"
	case FormatCat:
		return "cat"
	case FormatMidi:
		return "midi"
	case FormatText:
		return "text"
	default:
		return fmt.Sprintf("format-%d", int(f))
	}
}
