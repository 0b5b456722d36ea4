package reader

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

const testBaseSounds = `[metadata]
name        = My Sounds
shortname   = MYSN
version     = 2
description = Some sounds
description.nl_NL = Wat geluiden

[files]
samples = sample.cat

[md5s]
sample.cat = %s

[origin]
default = Made by hand
`

////////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Detect(t *testing.T) {
	tests := []struct {
		filename string
		format   Format
	}{
		{"my.grf", FormatNewGRF},
		{"MY.GRF", FormatNewGRF},
		{"map.scn", FormatScenario},
		{"map.png", FormatHeightmap},
		{"map.bmp", FormatHeightmap},
		{"info.nut", FormatEntryScript},
		{"library.nut", FormatEntryScript},
		{"main.nut", FormatMainScript},
		{"lib/util.nut", FormatScript},
		{"set.obg", FormatBaseGraphics},
		{"set.obm", FormatBaseMusic},
		{"set.obs", FormatBaseSounds},
		{"sample.cat", FormatCat},
		{"song.mid", FormatMidi},
		{"song.gm", FormatMidi},
		{"license.txt", FormatText},
		{"readme.txt", FormatText},
		{"readme_nl.txt", FormatText},
		{"changelog_nl_NL.txt", FormatText},
		{"lang/english.txt", FormatText},
		{"notes.txt", FormatUnknown},
		{"readme_NL.txt", FormatUnknown},
		{"docs/readme.txt", FormatUnknown},
		{"archive.exe", FormatUnknown},
		{"noextension", FormatUnknown},
	}
	for _, test := range tests {
		t.Run(test.filename, func(t *testing.T) {
			format, err := Detect(test.filename)
			assert.Equal(t, test.format, format)
			if test.format == FormatUnknown {
				assert.ErrorIs(t, err, schema.ErrUnknownFileType)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_Read_Text(t *testing.T) {
	assert := assert.New(t)

	obj, err := Read("license.txt", strings.NewReader("GPL\n"))
	assert.NoError(err)
	assert.Nil(obj)

	obj, err = Read("readme.txt", bytes.NewReader([]byte{0xFF, 0xFE}))
	assert.ErrorIs(err, schema.ErrInvalidEncoding)
	assert.Nil(obj)
}

func Test_Read_NilOnError(t *testing.T) {
	// A failed decode never returns a typed nil
	obj, err := Read("broken.grf", bytes.NewReader([]byte{0x00}))
	assert.Error(t, err)
	assert.True(t, obj == nil)
}

func Test_Cat_Midi(t *testing.T) {
	assert := assert.New(t)

	cat := append([]byte{0x48, 0x02, 0x00, 0x80}, "samples"...)
	obj, err := Read("sample.cat", bytes.NewReader(cat))
	require.NoError(t, err)
	assert.Equal(schema.SoundFiles, obj.PackageType())
	assert.Equal(md5.Sum(cat), obj.Checksum())

	_, err = Read("sample.cat", bytes.NewReader([]byte{0x47, 0x02, 0x00, 0x00}))
	assert.ErrorIs(err, schema.ErrBadSignature)

	midi := append([]byte("MThd\x00\x00\x00\x06"), 1, 2, 3)
	obj, err = Read("song.mid", bytes.NewReader(midi))
	require.NoError(t, err)
	assert.Equal(schema.MusicFiles, obj.PackageType())
	assert.Equal(md5.Sum(midi), obj.Checksum())

	_, err = Read("song.mid", bytes.NewReader([]byte("RIFF\x00\x00\x00\x06")))
	assert.ErrorIs(err, schema.ErrBadSignature)
}

func Test_BaseSet(t *testing.T) {
	assert := assert.New(t)

	md5sum := md5.Sum([]byte("sample"))
	data := fmt.Sprintf(testBaseSounds, hex.EncodeToString(md5sum[:]))

	obj, err := Read("set.obs", strings.NewReader(data))
	require.NoError(t, err)
	set := obj.(*BaseSet)
	assert.Equal(schema.BaseSounds, set.PackageType())
	assert.Equal([]byte("MYSN"), set.UniqueID())
	assert.Equal("2", set.Version)
	assert.Equal("Some sounds", set.Description)
	assert.Equal(map[string][16]byte{"sample.cat": md5sum}, set.Files)
	assert.Equal(md5sum, set.Checksum())
}

func Test_BaseSet_Latin1(t *testing.T) {
	assert := assert.New(t)

	md5sum := md5.Sum([]byte("sample"))
	data := fmt.Sprintf(testBaseSounds, hex.EncodeToString(md5sum[:]))
	data = strings.Replace(data, "Some sounds", "Caf\xe9", 1)

	set, err := ReadBaseSet(schema.BaseSounds, strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal("Café", set.Description)
}

func Test_BaseSet_Errors(t *testing.T) {
	md5sum := md5.Sum([]byte("sample"))
	valid := fmt.Sprintf(testBaseSounds, hex.EncodeToString(md5sum[:]))

	tests := []struct {
		name    string
		replace [2]string
		message string
	}{
		{"MissingSection", [2]string{"[origin]", "[other]"}, "Section origin is missing"},
		{"UnexpectedKey", [2]string{"version     = 2", "version = 2\npalette = D"}, "Option metadata:palette set but not expected."},
		{"MissingKey", [2]string{"version     = 2", ""}, "Option metadata:version is missing."},
		{"MissingMD5", [2]string{"sample.cat = ", "other.cat = "}, "Option md5s:sample.cat is missing."},
		{"OrphanMD5", [2]string{"\n\n[origin]", "\nextra.cat = 00000000000000000000000000000000\n\n[origin]"}, "Option md5s:extra.cat set but not expected."},
		{"InvalidMD5", [2]string{"sample.cat = ", "sample.cat = zz"}, "Option md5s:sample.cat is not a valid md5sum."},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := strings.Replace(valid, test.replace[0], test.replace[1], 1)
			_, err := ReadBaseSet(schema.BaseSounds, strings.NewReader(data))
			assert.ErrorIs(t, err, schema.ErrMalformed)
			if err != nil {
				assert.Equal(t, test.message, err.Error())
			}
		})
	}
}

func Test_BaseMusic_Names(t *testing.T) {
	var ini strings.Builder
	ini.WriteString("[metadata]\nname = M\nshortname = MUSI\nversion = 1\ndescription = D\n[files]\n")
	for _, key := range musicFiles() {
		if key == "theme" {
			ini.WriteString("theme = theme.mid\n")
		} else {
			ini.WriteString(key + " =\n")
		}
	}
	ini.WriteString("[md5s]\ntheme.mid = 0123456789abcdef0123456789abcdef\n[names]\n")
	ini.WriteString("[origin]\ndefault = x\n")

	_, err := ReadBaseSet(schema.BaseMusic, strings.NewReader(ini.String()))
	assert.ErrorIs(t, err, schema.ErrMalformed)

	fixed := strings.Replace(ini.String(), "[names]\n", "[names]\ntheme.mid = Theme\n", 1)
	set, err := ReadBaseSet(schema.BaseMusic, strings.NewReader(fixed))
	require.NoError(t, err)
	assert.Len(t, set.Files, 1)
}

func Test_EntryScript(t *testing.T) {
	tests := []struct {
		name   string
		script string
		id     string
		t      schema.PackageType
	}{
		{"Simple", `class MyAI extends AIInfo {
	function GetShortName() { return "ABCD"; }
}`, "ABCD", schema.AI},
		{"Multiline", `class G extends GSInfo {
	// function GetShortName() { return "NOPE"; }
	function GetShortName()
	{
		return /* "WRONG" */ "GSxy";
	}
}`, "GSxy", schema.GameScript},
		{"Library", `class L extends AILibrary {
	function GetShortName() {
		return // "NO"
			"LIBR";
	}
}`, "LIBR", schema.AILibrary},
		{"GSLibrary", "\xef\xbb\xbfclass L extends GSLibrary {\n function GetShortName() { return \"L\xc3\xa9br\"; }\n}", "Lébr", schema.GameScriptLibrary},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)
			obj, err := Read("info.nut", strings.NewReader(test.script))
			require.NoError(t, err)
			script := obj.(*Script)
			assert.Equal([]byte(test.id), script.UniqueID())
			assert.Equal(test.t, script.PackageType())
			assert.Equal(md5.Sum([]byte(test.script)), script.Checksum())
		})
	}
}

func Test_EntryScript_Errors(t *testing.T) {
	assert := assert.New(t)

	_, err := Read("info.nut", strings.NewReader("class A extends AIInfo {}\n"))
	assert.ErrorIs(err, schema.ErrMalformed)

	_, err = Read("info.nut", strings.NewReader("function GetShortName() { return \"ABCD\"; }\n"))
	assert.ErrorIs(err, schema.ErrMalformed)
}

func Test_Script_Encoding(t *testing.T) {
	assert := assert.New(t)

	// Latin-1 without a byte order mark
	obj, err := Read("main.nut", strings.NewReader("// caf\xe9\nfunction Start() {}\n"))
	require.NoError(t, err)
	assert.Equal(schema.ScriptMainFile, obj.PackageType())

	// UTF-8 without a byte order mark
	_, err = Read("main.nut", strings.NewReader("// caf\xc3\xa9\n"))
	assert.ErrorIs(err, schema.ErrInvalidEncoding)

	// UTF-8 with a byte order mark
	obj, err = Read("lib/util.nut", strings.NewReader("\xef\xbb\xbf// caf\xc3\xa9\n"))
	require.NoError(t, err)
	assert.Equal(schema.ScriptFiles, obj.PackageType())

	// Invalid UTF-8 after a byte order mark
	_, err = Read("lib/util.nut", strings.NewReader("\xef\xbb\xbf// ok\n\xff\n"))
	assert.ErrorIs(err, schema.ErrInvalidEncoding)
}

func Test_Decode_Options(t *testing.T) {
	_, err := Decode(FormatHeightmap, strings.NewReader(""), WithMaxPixels(0))
	assert.ErrorIs(t, err, schema.ErrMalformed)

	_, err = Decode(FormatUnknown, strings.NewReader(""))
	assert.ErrorIs(t, err, schema.ErrUnknownFileType)
}
