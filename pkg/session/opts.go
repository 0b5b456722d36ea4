package session

import (
	"errors"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for a session
type Opt func(*Session) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// DefaultMaxFileSize is the largest file extracted from an archive
const DefaultMaxFileSize int64 = 1 << 30

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithMaxFileSize sets the largest file extracted from an archive. An
// archive with a larger file is kept as is, with an error.
func WithMaxFileSize(n int64) Opt {
	return func(s *Session) error {
		if n <= 0 {
			return errors.New("max file size must be positive")
		}
		s.maxSize = n
		return nil
	}
}
