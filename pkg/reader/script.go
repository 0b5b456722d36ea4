package reader

import (
	"bufio"
	"crypto/md5"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	// Packages
	binreader "github.com/OpenTTD/bananas-api/pkg/binreader"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	charmap "golang.org/x/text/encoding/charmap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Script is the metadata of a script file. Entry scripts also carry the
// unique id of the script and the type of script they declare.
type Script struct {
	Type schema.PackageType `json:"type"`
	MD5  [16]byte           `json:"md5sum"`
	ID   []byte             `json:"unique-id,omitempty"`
}

// shortNameState is the position of the scanner looking for the string
// returned by GetShortName()
type shortNameState int

type shortNameScanner struct {
	state shortNameState
	value []byte
}

type scriptType struct {
	re *regexp.Regexp
	t  schema.PackageType
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	scanFunction shortNameState = iota
	scanBrace
	scanReturn
	scanString
	scanComment
	scanValue
	scanDone
)

// Order matters; the first match on a line wins
var scriptTypes = []scriptType{
	{regexp.MustCompile(`extends\s+GSInfo`), schema.GameScript},
	{regexp.MustCompile(`extends\s+GSLibrary`), schema.GameScriptLibrary},
	{regexp.MustCompile(`extends\s+AIInfo`), schema.AI},
	{regexp.MustCompile(`extends\s+AILibrary`), schema.AILibrary},
}

var (
	errInvalidUTF8    = schema.ErrInvalidEncoding.With("File contains invalid UTF-8 characters; did you really save it as an UTF-8 file?")
	errUTF8WithoutBOM = schema.ErrInvalidEncoding.With("File contains UTF-8 characters but doesn't contain UTF-8 BOM. OpenTTD won't load this file correctly. Please save the file with 'UTF-8 BOM' encoding.")
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ReadScript checks the encoding of a script file. The main script of a
// package has type schema.ScriptMainFile, others schema.ScriptFiles.
func ReadScript(r io.Reader, main bool) (*Script, error) {
	self := &Script{Type: schema.ScriptFiles}
	if main {
		self.Type = schema.ScriptMainFile
	}
	if err := self.read(r, nil); err != nil {
		return nil, err
	}
	return self, nil
}

// ReadEntryScript reads "info.nut" or "library.nut", which declare the
// unique id and the type of the script
func ReadEntryScript(r io.Reader) (*Script, error) {
	self := new(Script)
	scanner := new(shortNameScanner)
	if err := self.read(r, func(line string) {
		scanner.scan(line)
		if self.Type == "" {
			self.Type = matchScriptType(line)
		}
	}); err != nil {
		return nil, err
	}

	if scanner.state != scanDone {
		return nil, schema.ErrMalformed.With("Couldn't parse file to find GetShortName() function.")
	} else if self.Type == "" {
		return nil, schema.ErrMalformed.With("Couldn't parse file to find base class.")
	}
	self.ID = scanner.value
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (s *Script) PackageType() schema.PackageType {
	return s.Type
}

func (s *Script) Checksum() [16]byte {
	return s.MD5
}

func (s *Script) UniqueID() []byte {
	return s.ID
}

func (s *Script) String() string {
	return types.Stringify(s)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// read decodes the file line by line, the way the game does: a byte order
// mark on the first line selects UTF-8, otherwise lines are latin-1
func (s *Script) read(r io.Reader, fn func(string)) error {
	reader := binreader.New(r, md5.New())
	lines := bufio.NewReader(reader.Stream())

	isUTF8 := false
	for first := true; ; first = false {
		line, err := lines.ReadBytes('\n')
		if len(line) > 0 {
			if first && len(line) >= 3 {
				isUTF8 = (line[0] == 0xEF && line[1] == 0xBB) || (line[0] == 0xBB && line[1] == 0xEF)
			}
			text, err := decodeLine(line, isUTF8)
			if err != nil {
				return err
			} else if fn != nil {
				fn(text)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
	}

	copy(s.MD5[:], reader.Hash().Sum(nil))
	return nil
}

func decodeLine(line []byte, isUTF8 bool) (string, error) {
	if isUTF8 {
		if !utf8.Valid(line) {
			return "", errInvalidUTF8
		}
		return string(line), nil
	}

	// Valid UTF-8 which differs from latin-1 means the file was saved as
	// UTF-8 without a byte order mark
	latin1, err := charmap.ISO8859_1.NewDecoder().Bytes(line)
	if err != nil {
		return "", errInvalidUTF8
	}
	if utf8.Valid(line) && string(latin1) != string(line) {
		return "", errUTF8WithoutBOM
	}
	return string(latin1), nil
}

func matchScriptType(line string) schema.PackageType {
	for _, t := range scriptTypes {
		if t.re.MatchString(line) {
			return t.t
		}
	}
	return ""
}

// scan advances the scanner over one line. The return statement of
// GetShortName() is found first, then its string, skipping comments.
func (s *shortNameScanner) scan(line string) {
	if s.state == scanDone {
		return
	}

	if s.state == scanFunction {
		i := strings.Index(line, "GetShortName")
		if i == -1 {
			return
		} else if c := strings.Index(line, "//"); c != -1 && c < i {
			return
		}
		line, s.state = line[i:], scanBrace
	}
	if s.state == scanBrace {
		if i := strings.Index(line, "{"); i != -1 {
			line, s.state = line[i:], scanReturn
		}
	}
	if s.state == scanReturn {
		if i := strings.Index(line, "return"); i != -1 {
			line, s.state = line[i:], scanString
		}
	}
	if s.state == scanString {
		// A comment before the string hides the rest of the line. A
		// missing quote compares as -1, which never hides anything.
		if c := strings.Index(line, "//"); c != -1 && c < strings.Index(line, `"`) {
			return
		}
		if c := strings.Index(line, "/*"); c != -1 && c < strings.Index(line, `"`) {
			line, s.state = line[c+1:], scanComment
		}
	}
	if s.state == scanComment {
		if i := strings.Index(line, "*/"); i != -1 {
			line, s.state = line[i+1:], scanString
		}
	}
	if s.state == scanString {
		if i := strings.Index(line, `"`); i != -1 {
			line, s.state = line[i+1:], scanValue
		}
	}
	if s.state == scanValue {
		if i := strings.Index(line, `"`); i != -1 {
			s.value, s.state = []byte(line[:i]), scanDone
		}
	}
}
