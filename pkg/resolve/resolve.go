package resolve

import (
	"encoding/hex"
	"slices"
	"strings"

	// Packages
	classify "github.com/OpenTTD/bananas-api/pkg/classify"
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Input is one decoded file of a package
type Input struct {
	Filename string
	Object   reader.Object
}

// Result is the content type of a package, with its unique id and checksum
type Result struct {
	ContentType    schema.ContentType     `json:"content-type"`
	UniqueID       string                 `json:"unique-id,omitempty"`
	MD5            string                 `json:"md5sum"`
	Classification *schema.Classification `json:"classification,omitempty"`
	Primary        Input                  `json:"-"`
}

// Opt is an option for resolving
type Opt func(*opt) error

type opt struct {
	classifier *classify.Classifier
}

// rule matches a primary file, optionally paired with a number of
// secondary files
type rule struct {
	primary   schema.PackageType
	secondary schema.PackageType
	exact     int
	min       int
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	uniqueIDSize = 4
)

// Rules are tried in order; the first primary which is present decides
var rules = []rule{
	{primary: schema.BaseGraphics, secondary: schema.NewGRF, exact: 6},
	{primary: schema.BaseMusic, secondary: schema.MusicFiles, min: 1},
	{primary: schema.BaseSounds, secondary: schema.SoundFiles, exact: 1},
	{primary: schema.AI, secondary: schema.ScriptMainFile, exact: 1},
	{primary: schema.AILibrary, secondary: schema.ScriptMainFile, exact: 1},
	{primary: schema.GameScript, secondary: schema.ScriptMainFile, exact: 1},
	{primary: schema.GameScriptLibrary, secondary: schema.ScriptMainFile, exact: 1},
	{primary: schema.Heightmap},
	{primary: schema.NewGRF},
	{primary: schema.Scenario},
}

var (
	ErrMultipleContentTypes = schema.ErrMultipleContentTypes.With("More than one Content Type was detected, where only one was expected. For example, you are uploading both a NewGRF and a Scenario in the same package. This is not possible.")
	ErrNoContentType        = schema.ErrNoContentType.With("Expecting at least a single file defining the Content Type.")
	ErrUniqueID             = schema.ErrMalformedIdentifier.With("Unique ID should be exactly four character.")
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// WithClassifier sets the classifier for the primary file
func WithClassifier(c *classify.Classifier) Opt {
	return func(o *opt) error {
		o.classifier = c
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Resolve returns the content type of the decoded files of one package.
// Inputs without an object, like text files, are ignored. Problems with
// the members of a base set are returned as a *MemberError.
func Resolve(inputs []Input, opts ...Opt) (*Result, error) {
	var o opt
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}
	if o.classifier == nil {
		if c, err := classify.New(); err != nil {
			return nil, err
		} else {
			o.classifier = c
		}
	}

	inputs = slices.DeleteFunc(slices.Clone(inputs), func(input Input) bool {
		return input.Object == nil
	})
	contentType, err := match(inputs)
	if err != nil {
		return nil, err
	}

	// The first file of the content type is the primary file
	i := slices.IndexFunc(inputs, func(input Input) bool {
		return input.Object.PackageType() == contentType
	})
	result := &Result{ContentType: contentType, Primary: inputs[i]}

	if set, ok := result.Primary.Object.(*reader.BaseSet); ok {
		if err := members(result.Primary.Filename, set, inputs); err != nil {
			return nil, err
		}
	}

	if identified, ok := result.Primary.Object.(reader.Identified); ok {
		if id := identified.UniqueID(); len(id) > 0 {
			if len(id) != uniqueIDSize {
				return nil, ErrUniqueID
			}
			result.UniqueID = hex.EncodeToString(id)
		}
	}

	// Scripts are checksummed over every script file too
	md5sum := result.Primary.Object.Checksum()
	if isScript(contentType) {
		for _, input := range inputs {
			if t := input.Object.PackageType(); t == schema.ScriptFiles || t == schema.ScriptMainFile {
				xor(&md5sum, input.Object.Checksum())
			}
		}
	}
	result.MD5 = hex.EncodeToString(md5sum[:])
	result.Classification = o.classifier.Classify(result.Primary.Object)

	// Return success
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// match tallies the package types and returns the content type of the
// first rule which applies
func match(inputs []Input) (schema.ContentType, error) {
	counts := make(map[schema.PackageType]int)
	for _, input := range inputs {
		counts[input.Object.PackageType()]++
	}
	if len(counts) == 0 {
		return "", ErrNoContentType
	}

	for _, rule := range rules {
		if ok, err := rule.match(counts); err != nil {
			return "", err
		} else if ok {
			return rule.primary, nil
		}
	}
	return "", ErrNoContentType
}

func (r rule) match(counts map[schema.PackageType]int) (bool, error) {
	n, exists := counts[r.primary]
	if !exists {
		return false, nil
	}

	// Singletons
	if r.secondary == "" {
		if len(counts) > 1 {
			return false, ErrMultipleContentTypes
		} else if n > 1 {
			return false, duplicate(r.primary)
		}
		return true, nil
	}

	// Pairs
	if n > 1 {
		return false, duplicate(r.primary)
	}
	count := counts[r.secondary]
	if r.exact > 0 && count != r.exact {
		return false, schema.ErrCardinality.Withf("Expected exact %d %s file(s), but %d were found.", r.exact, r.secondary, count)
	}
	if r.min > 0 && count < r.min {
		return false, schema.ErrCardinality.Withf("Expected at least %d %s file(s), but %d were found.", r.min, r.secondary, count)
	}

	// Other script files may accompany the main script
	expected := 2
	if _, exists := counts[schema.ScriptFiles]; exists && r.secondary == schema.ScriptMainFile {
		expected = 3
	}
	if len(counts) != expected {
		return false, ErrMultipleContentTypes
	}
	return true, nil
}

// members checks the files of a package against the checksums listed in
// the base set descriptor
func members(filename string, set *reader.BaseSet, inputs []Input) error {
	var result MemberError
	missing := make(map[string][16]byte, len(set.Files))
	for name, md5sum := range set.Files {
		missing[name] = md5sum
	}

	for _, input := range inputs {
		if md5sum, exists := missing[input.Filename]; exists {
			if md5sum != input.Object.Checksum() {
				result.Errors = append(result.Errors, &FileError{
					Filename: input.Filename,
					Err:      schema.ErrChecksumMismatch.Withf("The md5sum doesn't match the one mentioned in %s.", filename),
				})
			}
			delete(missing, input.Filename)
		} else if !isBaseSet(input.Object.PackageType()) {
			result.Errors = append(result.Errors, &FileError{
				Filename: input.Filename,
				Err:      schema.ErrUnexpectedFile.Withf("%s is not mentioning this file.", filename),
			})
		}
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		slices.Sort(names)
		result.Errors = append(result.Errors, &FileError{
			Filename: filename,
			Err:      schema.ErrMissingFile.Withf("These files are mentioned but not found: %s.", strings.Join(names, ", ")),
		})
	}

	if len(result.Errors) > 0 {
		return &result
	}
	return nil
}

func duplicate(t schema.PackageType) error {
	return schema.ErrDuplicateContentType.Withf("More than one %s files was detected, where only one was expected.", t)
}

func isBaseSet(t schema.PackageType) bool {
	return t == schema.BaseGraphics || t == schema.BaseMusic || t == schema.BaseSounds
}

func isScript(t schema.ContentType) bool {
	return t == schema.AI || t == schema.AILibrary || t == schema.GameScript || t == schema.GameScriptLibrary
}

func xor(dst *[16]byte, src [16]byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r Result) String() string {
	return types.Stringify(r)
}
