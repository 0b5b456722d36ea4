package reader

import (
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	charmap "golang.org/x/text/encoding/charmap"
	ini "gopkg.in/ini.v1"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// BaseSet is the metadata of a base graphics, music or sounds descriptor
type BaseSet struct {
	Type        schema.PackageType  `json:"type"`
	MD5         [16]byte            `json:"md5sum"`
	ID          []byte              `json:"unique-id"`
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Description string              `json:"description"`
	Files       map[string][16]byte `json:"files"`
}

// baseSetSchema lists the sections a descriptor must have. A section
// without keys may contain any key.
type baseSetSchema struct {
	sections []baseSetSection
	names    bool
}

type baseSetSection struct {
	name string
	keys []string
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	sectionMetadata = "metadata"
	sectionFiles    = "files"
	sectionMD5s     = "md5s"
	sectionNames    = "names"
	sectionOrigin   = "origin"
)

var (
	baseSetMetadata = []string{"name", "shortname", "version", "description"}
	baseSetOrigin   = baseSetSection{sectionOrigin, []string{"default"}}
)

var baseSetSchemas = map[schema.PackageType]baseSetSchema{
	schema.BaseGraphics: {
		sections: []baseSetSection{
			{sectionMetadata, append(slices.Clone(baseSetMetadata), "palette", "blitter")},
			{sectionFiles, []string{"base", "logos", "arctic", "toyland", "tropical", "extra"}},
			{sectionMD5s, nil},
			baseSetOrigin,
		},
	},
	schema.BaseMusic: {
		sections: []baseSetSection{
			{sectionMetadata, baseSetMetadata},
			{sectionFiles, musicFiles()},
			{sectionMD5s, nil},
			{sectionNames, nil},
			baseSetOrigin,
		},
		names: true,
	},
	schema.BaseSounds: {
		sections: []baseSetSection{
			{sectionMetadata, baseSetMetadata},
			{sectionFiles, []string{"samples"}},
			{sectionMD5s, nil},
			baseSetOrigin,
		},
	},
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadBaseSet decodes a base set descriptor of the given type, which is
// one of schema.BaseGraphics, schema.BaseMusic or schema.BaseSounds
func ReadBaseSet(t schema.PackageType, r io.Reader) (*BaseSet, error) {
	set, exists := baseSetSchemas[t]
	if !exists {
		return nil, schema.ErrUnsupported.Withf("%q is not a base set", t)
	}

	// Descriptors are latin-1
	data, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(r))
	if err != nil {
		return nil, err
	}
	file, err := ini.LoadSources(ini.LoadOptions{
		InsensitiveKeys:            true,
		IgnoreInlineComment:        true,
		AllowPythonMultilineValues: true,
	}, data)
	if err != nil {
		return nil, schema.ErrMalformed.Withf("Invalid ini file: %v.", err)
	}

	if err := set.validate(file); err != nil {
		return nil, err
	}
	self := &BaseSet{Type: t}
	if err := set.readFiles(self, file); err != nil {
		return nil, err
	}

	metadata := file.Section(sectionMetadata)
	self.ID = []byte(metadata.Key("shortname").String())
	self.Name = metadata.Key("name").String()
	self.Version = metadata.Key("version").String()
	self.Description = metadata.Key("description").String()
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (b *BaseSet) PackageType() schema.PackageType {
	return b.Type
}

func (b *BaseSet) Checksum() [16]byte {
	return b.MD5
}

func (b *BaseSet) UniqueID() []byte {
	return b.ID
}

func (b *BaseSet) String() string {
	return types.Stringify(b)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// validate checks every section of the schema is present, with exactly
// the keys expected. Keys may carry a translation suffix, like "name.nl_NL".
func (s baseSetSchema) validate(file *ini.File) error {
	for _, section := range s.sections {
		values, err := file.GetSection(section.name)
		if err != nil {
			return schema.ErrMalformed.Withf("Section %s is missing", section.name)
		} else if section.keys == nil {
			continue
		}
		for _, key := range values.Keys() {
			name, _, _ := strings.Cut(key.Name(), ".")
			if !slices.Contains(section.keys, name) {
				return schema.ErrMalformed.Withf("Option %s:%s set but not expected.", section.name, name)
			}
		}
		for _, key := range section.keys {
			if !values.HasKey(key) {
				return schema.ErrMalformed.Withf("Option %s:%s is missing.", section.name, key)
			}
		}
	}
	return nil
}

// readFiles collects the checksum of every file the descriptor references.
// The checksum of the set is the XOR of them all.
func (s baseSetSchema) readFiles(b *BaseSet, file *ini.File) error {
	files := file.Section(sectionFiles)
	md5s := file.Section(sectionMD5s)
	names := file.Section(sectionNames)

	b.Files = make(map[string][16]byte)
	referenced := make(map[string]bool)
	for _, key := range s.keys(sectionFiles) {
		filename := files.Key(key).String()
		if filename == "" {
			continue
		}
		if !md5s.HasKey(filename) {
			return schema.ErrMalformed.Withf("Option md5s:%s is missing.", filename)
		}
		if s.names && !names.HasKey(filename) {
			return schema.ErrMalformed.Withf("Option names:%s is missing.", filename)
		}

		md5sum, err := hex.DecodeString(md5s.Key(filename).String())
		if err != nil || len(md5sum) != 16 {
			return schema.ErrMalformed.Withf("Option md5s:%s is not a valid md5sum.", filename)
		}
		b.Files[filename] = [16]byte(md5sum)
		referenced[strings.ToLower(filename)] = true
		for i := range b.MD5 {
			b.MD5[i] ^= md5sum[i]
		}
	}

	// No entries for files which are not referenced
	for _, key := range md5s.Keys() {
		if !referenced[key.Name()] {
			return schema.ErrMalformed.Withf("Option md5s:%s set but not expected.", key.Name())
		}
	}
	if s.names {
		for _, key := range names.Keys() {
			if !referenced[key.Name()] {
				return schema.ErrMalformed.Withf("Option names:%s set but not expected.", key.Name())
			}
		}
	}
	return nil
}

func (s baseSetSchema) keys(name string) []string {
	for _, section := range s.sections {
		if section.name == name {
			return section.keys
		}
	}
	return nil
}

func musicFiles() []string {
	result := []string{"theme"}
	for _, prefix := range []string{"old", "new", "ezy"} {
		for i := range 10 {
			result = append(result, fmt.Sprintf("%s_%d", prefix, i))
		}
	}
	return result
}
