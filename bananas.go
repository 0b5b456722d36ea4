package bananas

import (
	"context"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// Storage keeps published package archives
type Storage interface {
	// MoveToStorage takes ownership of the archive at path, which is
	// removed once it is stored under the content type, unique id and
	// md5sum of the package
	MoveToStorage(ctx context.Context, path string, contentType schema.ContentType, uniqueID, md5sum string) error
}

// Index is the catalogue of published packages
type Index interface {
	// Package returns the published package, or nil if there is none
	Package(ctx context.Context, contentType schema.ContentType, uniqueID string) (*schema.Package, error)

	// IsBlacklisted returns true if the package may not be uploaded
	IsBlacklisted(ctx context.Context, contentType schema.ContentType, uniqueID string) (bool, error)

	// NextUniqueID reserves a unique id, for content types whose files
	// do not carry one
	NextUniqueID(ctx context.Context, contentType schema.ContentType) (string, error)

	// Store creates or replaces a package on behalf of a user
	Store(ctx context.Context, user schema.User, pkg *schema.Package) error
}
