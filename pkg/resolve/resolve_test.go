package resolve

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	// Packages
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

func file(name string, t schema.PackageType) Input {
	return Input{Filename: name, Object: &reader.File{Type: t, MD5: md5.Sum([]byte(name))}}
}

func grf(name string) Input {
	return Input{Filename: name, Object: &reader.NewGRF{
		ID:       []byte("GRF1"),
		MD5:      md5.Sum([]byte(name)),
		Features: reader.Features{},
	}}
}

func script(name string, t schema.PackageType, id string) Input {
	return Input{Filename: name, Object: &reader.Script{Type: t, MD5: md5.Sum([]byte(name)), ID: []byte(id)}}
}

// graphics returns a base graphics descriptor and the n newgrf files it
// lists
func graphics(n int) []Input {
	set := &reader.BaseSet{Type: schema.BaseGraphics, ID: []byte("BASE"), Files: map[string][16]byte{}}
	var result []Input
	for i := range n {
		input := grf(fmt.Sprintf("grf%d.grf", i))
		set.Files[input.Filename] = input.Object.Checksum()
		result = append(result, input)
	}
	return append(result, Input{Filename: "set.obg", Object: set})
}

////////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Resolve_BaseGraphics(t *testing.T) {
	assert := assert.New(t)

	result, err := Resolve(graphics(6))
	require.NoError(t, err)
	assert.Equal(schema.BaseGraphics, result.ContentType)
	assert.Equal(hex.EncodeToString([]byte("BASE")), result.UniqueID)
	assert.Equal("set.obg", result.Primary.Filename)
	assert.Nil(result.Classification)

	_, err = Resolve(graphics(5))
	assert.ErrorIs(err, schema.ErrCardinality)
	assert.EqualError(err, "Expected exact 6 newgrf file(s), but 5 were found.")
}

func Test_Resolve_Members(t *testing.T) {
	assert := assert.New(t)

	// A file listed in the descriptor is not uploaded
	inputs := graphics(6)
	set := inputs[len(inputs)-1].Object.(*reader.BaseSet)
	set.Files["extra.grf"] = md5.Sum(nil)
	_, err := Resolve(inputs)
	assert.ErrorIs(err, schema.ErrMissingFile)
	var members *MemberError
	require.True(t, errors.As(err, &members))
	assert.Equal(map[string][]string{"set.obg": {"These files are mentioned but not found: extra.grf."}}, members.Files())

	// An uploaded file does not match the descriptor
	inputs = graphics(6)
	set = inputs[len(inputs)-1].Object.(*reader.BaseSet)
	set.Files["grf3.grf"] = md5.Sum(nil)
	_, err = Resolve(inputs)
	assert.ErrorIs(err, schema.ErrChecksumMismatch)
	require.True(t, errors.As(err, &members))
	assert.Equal(map[string][]string{"grf3.grf": {"The md5sum doesn't match the one mentioned in set.obg."}}, members.Files())

	// An uploaded file is not in the descriptor
	inputs = graphics(6)
	set = inputs[len(inputs)-1].Object.(*reader.BaseSet)
	delete(set.Files, "grf0.grf")
	set.Files["other.grf"] = inputs[0].Object.Checksum()
	_, err = Resolve(inputs)
	assert.ErrorIs(err, schema.ErrUnexpectedFile)
	assert.ErrorIs(err, schema.ErrMissingFile)
}

func Test_Resolve_Sounds_Music(t *testing.T) {
	assert := assert.New(t)

	sample := file("sample.cat", schema.SoundFiles)
	sounds := &reader.BaseSet{Type: schema.BaseSounds, ID: []byte("SND1"), Files: map[string][16]byte{
		"sample.cat": sample.Object.Checksum(),
	}}
	result, err := Resolve([]Input{sample, {Filename: "set.obs", Object: sounds}})
	require.NoError(t, err)
	assert.Equal(schema.BaseSounds, result.ContentType)

	// At least one music file is needed
	music := &reader.BaseSet{Type: schema.BaseMusic, ID: []byte("MUS1"), Files: map[string][16]byte{}}
	_, err = Resolve([]Input{{Filename: "set.obm", Object: music}})
	assert.ErrorIs(err, schema.ErrCardinality)
	assert.EqualError(err, "Expected at least 1 music file(s), but 0 were found.")
}

func Test_Resolve_Script(t *testing.T) {
	assert := assert.New(t)

	info := script("info.nut", schema.AI, "ABCD")
	main := script("main.nut", schema.ScriptMainFile, "")
	util := script("util.nut", schema.ScriptFiles, "")

	result, err := Resolve([]Input{info, main, util, {Filename: "readme.txt"}})
	require.NoError(t, err)
	assert.Equal(schema.AI, result.ContentType)
	assert.Equal(hex.EncodeToString([]byte("ABCD")), result.UniqueID)

	// The checksum covers every script file
	md5sum := info.Object.Checksum()
	xor(&md5sum, main.Object.Checksum())
	xor(&md5sum, util.Object.Checksum())
	assert.Equal(hex.EncodeToString(md5sum[:]), result.MD5)

	// Without the main script
	_, err = Resolve([]Input{info, util})
	assert.ErrorIs(err, schema.ErrCardinality)

	// Unique id of the wrong size
	_, err = Resolve([]Input{script("info.nut", schema.GameScript, "ABCDE"), main})
	assert.ErrorIs(err, schema.ErrMalformedIdentifier)

	// Main script without an entry script
	_, err = Resolve([]Input{main, util})
	assert.ErrorIs(err, schema.ErrNoContentType)
}

func Test_Resolve_Singletons(t *testing.T) {
	tests := []struct {
		name   string
		inputs []Input
		kind   schema.Err
	}{
		{"Empty", nil, schema.ErrNoContentType},
		{"TextOnly", []Input{{Filename: "readme.txt"}}, schema.ErrNoContentType},
		{"Duplicate", []Input{grf("a.grf"), grf("b.grf")}, schema.ErrDuplicateContentType},
		{"Mixed", []Input{grf("a.grf"), file("map.scn", schema.Scenario)}, schema.ErrMultipleContentTypes},
		{"AIWithGRF", []Input{script("info.nut", schema.AI, "ABCD"), script("main.nut", schema.ScriptMainFile, ""), grf("a.grf")}, schema.ErrMultipleContentTypes},
		{"Companion", []Input{file("sample.cat", schema.SoundFiles)}, schema.ErrNoContentType},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Resolve(test.inputs)
			assert.ErrorIs(t, err, test.kind)
		})
	}
}

func Test_Resolve_NewGRF(t *testing.T) {
	assert := assert.New(t)

	input := grf("my.grf")
	result, err := Resolve([]Input{input, {Filename: "license.txt"}})
	require.NoError(t, err)
	assert.Equal(schema.NewGRF, result.ContentType)
	md5sum := input.Object.Checksum()
	assert.Equal(hex.EncodeToString(md5sum[:]), result.MD5)
	require.NotNil(t, result.Classification)
	assert.Equal(schema.SetUnknown, result.Classification.Set)
}
