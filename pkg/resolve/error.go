package resolve

import (
	"strings"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// FileError is a problem with one file of a package
type FileError struct {
	Filename string `json:"filename"`
	Err      error  `json:"-"`
}

// MemberError collects the problems found when checking the members of a
// base set against its descriptor. Each problem belongs to one file.
type MemberError struct {
	Errors []*FileError
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (e *FileError) Error() string {
	return e.Filename + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *MemberError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

func (e *MemberError) Unwrap() []error {
	result := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		result = append(result, err)
	}
	return result
}

// Files returns the error messages of every file, by filename
func (e *MemberError) Files() map[string][]string {
	result := make(map[string][]string, len(e.Errors))
	for _, err := range e.Errors {
		result[err.Filename] = append(result[err.Filename], err.Err.Error())
	}
	return result
}
