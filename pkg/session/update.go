package session

import (
	"bytes"
	"encoding/json"
	"strings"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Update changes the fields of a session. Nil values are left alone, and
// an empty string clears a field.
type Update struct {
	Version       *string                 `json:"version,omitempty"`
	License       *schema.License         `json:"license,omitempty"`
	Dependencies  *[]schema.Dependency    `json:"dependencies,omitempty"`
	Compatibility *[]schema.Compatibility `json:"compatibility,omitempty"`
	Name          *string                 `json:"name,omitempty"`
	Description   *string                 `json:"description,omitempty"`
	URL           *string                 `json:"url,omitempty"`
	Tags          *[]string               `json:"tags,omitempty"`
	Regions       *[]string               `json:"regions,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	MaxNameLength        = 31
	MaxVersionLength     = 15
	MaxURLLength         = 95
	MaxDescriptionLength = 511
	MaxTagLength         = 31
	MaxRegions           = 10
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ParseUpdate decodes a JSON update, rejecting keys which cannot be
// changed
func ParseUpdate(data []byte) (*Update, error) {
	var result Update
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return nil, httpresponse.ErrBadRequest.Withf("%v", err)
	}
	return &result, nil
}

// Update changes the fields of the session. The name can only be set for
// a new package.
func (s *Session) Update(u *Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		return nil
	}
	if u.Name != nil && s.existing != nil {
		return httpresponse.ErrBadRequest.With("name can only be set for a new package")
	}

	// Check everything before changing anything
	fields := s.fields.clone()
	for _, field := range []struct {
		key   string
		value *string
		dst   *string
		max   int
	}{
		{"version", u.Version, &fields.Version, MaxVersionLength},
		{"name", u.Name, &fields.Name, MaxNameLength},
		{"description", u.Description, &fields.Description, MaxDescriptionLength},
		{"url", u.URL, &fields.URL, MaxURLLength},
	} {
		if field.value == nil {
			continue
		}
		value := strings.TrimSpace(*field.value)
		if len(value) > field.max {
			return httpresponse.ErrBadRequest.Withf("%s is longer than %d bytes", field.key, field.max)
		}
		*field.dst = value
	}
	if u.License != nil {
		fields.License = *u.License
	}
	if u.Dependencies != nil {
		for _, dep := range *u.Dependencies {
			if !dep.ContentType.IsContentType() {
				return httpresponse.ErrBadRequest.Withf("dependency has an invalid content type %q", dep.ContentType)
			}
		}
		fields.Dependencies = nonNil(*u.Dependencies)
	}
	if u.Compatibility != nil {
		fields.Compatibility = nonNil(*u.Compatibility)
	}
	if u.Tags != nil {
		tags, err := trimTags("tag", *u.Tags)
		if err != nil {
			return err
		}
		fields.Tags = tags
	}
	if u.Regions != nil {
		regions, err := trimTags("region", *u.Regions)
		if err != nil {
			return err
		} else if len(regions) > MaxRegions {
			return httpresponse.ErrBadRequest.Withf("at most %d regions can be set", MaxRegions)
		}
		fields.Regions = regions
	}

	// Return success
	s.fields = fields
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// trimTags trims every value and drops the empty ones. The result is never
// nil, so a set but empty list stays set.
func trimTags(key string, values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		} else if len(value) > MaxTagLength {
			return nil, httpresponse.ErrBadRequest.Withf("%s %q is longer than %d bytes", key, value, MaxTagLength)
		}
		result = append(result, value)
	}
	return result, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
