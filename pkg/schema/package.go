package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Dependency on another published package, by content type, unique id and
// the first eight hex digits of its md5sum.
type Dependency struct {
	ContentType   ContentType `json:"content-type"`
	UniqueID      string      `json:"unique-id"`
	MD5SumPartial string      `json:"md5sum-partial"`
}

// Compatibility with a client branch, for example {"vanilla", [">= 13.0"]}.
type Compatibility struct {
	Name       string   `json:"name"`
	Conditions []string `json:"conditions"`
}

// Author of a package. IDs is keyed by authentication method.
type Author struct {
	DisplayName string            `json:"display-name"`
	IDs         map[string]string `json:"ids,omitempty"`
}

// Version is one published release of a package.
type Version struct {
	Version        string          `json:"version"`
	License        License         `json:"license"`
	Availability   Availability    `json:"availability"`
	UploadDate     time.Time       `json:"upload-date"`
	MD5SumPartial  string          `json:"md5sum-partial"`
	Filesize       int64           `json:"filesize"`
	Dependencies   []Dependency    `json:"dependencies,omitempty"`
	Compatibility  []Compatibility `json:"compatibility,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Name           string          `json:"name,omitempty"`
	Description    string          `json:"description,omitempty"`
	URL            string          `json:"url,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Regions        []string        `json:"regions,omitempty"`
}

// Package is the published record of one content item and all its versions.
type Package struct {
	ContentType ContentType `json:"content-type"`
	UniqueID    string      `json:"unique-id"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	URL         string      `json:"url,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Regions     []string    `json:"regions,omitempty"`
	Authors     []Author    `json:"authors,omitempty"`
	Versions    []Version   `json:"versions,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// HasAuthor returns true if the user is one of the authors of the package
func (p *Package) HasAuthor(user User) bool {
	for _, author := range p.Authors {
		if id, exists := author.IDs[user.Method]; exists && id == user.ID {
			return true
		}
	}
	return false
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (p Package) String() string {
	return types.Stringify(p)
}

func (v Version) String() string {
	return types.Stringify(v)
}
