package schema

import (
	"errors"
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Err is the kind of a decode, classify or resolve failure. Use errors.Is
// against one of the constants below to test the kind of a returned error.
type Err int

type kindError struct {
	kind   Err
	detail string
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	_ Err = iota
	ErrTruncated
	ErrMalformed
	ErrBadSignature
	ErrUnsupported
	ErrTrailingData
	ErrMalformedPseudo
	ErrInvalidEncoding
	ErrUnknownFileType
	ErrNoContentType
	ErrMultipleContentTypes
	ErrDuplicateContentType
	ErrCardinality
	ErrChecksumMismatch
	ErrUnexpectedFile
	ErrMissingFile
	ErrMalformedIdentifier
	ErrSizeExceeded
)

var errText = map[Err]string{
	ErrTruncated:            "unexpected end-of-file",
	ErrMalformed:            "malformed file",
	ErrBadSignature:         "unrecognised signature",
	ErrUnsupported:          "unsupported value",
	ErrTrailingData:         "junk at the end of file",
	ErrMalformedPseudo:      "malformed pseudo sprite",
	ErrInvalidEncoding:      "invalid encoding",
	ErrUnknownFileType:      "unknown file type",
	ErrNoContentType:        "no content type",
	ErrMultipleContentTypes: "multiple content types",
	ErrDuplicateContentType: "duplicate content type",
	ErrCardinality:          "cardinality mismatch",
	ErrChecksumMismatch:     "checksum mismatch",
	ErrUnexpectedFile:       "unexpected file",
	ErrMissingFile:          "missing file",
	ErrMalformedIdentifier:  "malformed unique id",
	ErrSizeExceeded:         "size exceeded",
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (e Err) Error() string {
	if text, exists := errText[e]; exists {
		return text
	}
	return fmt.Sprintf("error %d", int(e))
}

// With returns an error of this kind with the arguments as detail text
func (e Err) With(args ...any) error {
	return &kindError{kind: e, detail: fmt.Sprint(args...)}
}

// Withf returns an error of this kind with formatted detail text
func (e Err) Withf(format string, args ...any) error {
	return &kindError{kind: e, detail: fmt.Sprintf(format, args...)}
}

// Kind returns the kind of the error, or zero if the error does not
// carry one
func Kind(err error) Err {
	var kind Err
	if errors.As(err, &kind) {
		return kind
	}
	return 0
}

func (e *kindError) Error() string {
	if e.detail == "" {
		return e.kind.Error()
	}
	return e.detail
}

func (e *kindError) Unwrap() error {
	return e.kind
}
