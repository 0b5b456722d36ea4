package index

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"

	// Packages
	bananas "github.com/OpenTTD/bananas-api"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Memory is an index of published packages which is kept in memory
type Memory struct {
	sync.RWMutex
	packages  map[key]*schema.Package
	blacklist map[key]struct{}
	lastID    map[schema.ContentType]uint32
}

// snapshot is the saved form of an index
type snapshot struct {
	Packages  []*schema.Package `json:"packages"`
	Blacklist []key             `json:"blacklist,omitempty"`
}

type key struct {
	ContentType schema.ContentType `json:"content-type"`
	UniqueID    string             `json:"unique-id"`
}

var _ bananas.Index = (*Memory)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewMemory returns an empty index
func NewMemory() *Memory {
	return &Memory{
		packages:  make(map[key]*schema.Package),
		blacklist: make(map[key]struct{}),
		lastID:    make(map[schema.ContentType]uint32),
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Package returns a copy of the package, or nil if it is not indexed
func (m *Memory) Package(_ context.Context, contentType schema.ContentType, uniqueID string) (*schema.Package, error) {
	m.RLock()
	defer m.RUnlock()
	if pkg, exists := m.packages[key{contentType, uniqueID}]; exists {
		return clone(pkg)
	}
	return nil, nil
}

// IsBlacklisted returns true if the package was blacklisted
func (m *Memory) IsBlacklisted(_ context.Context, contentType schema.ContentType, uniqueID string) (bool, error) {
	m.RLock()
	defer m.RUnlock()
	_, exists := m.blacklist[key{contentType, uniqueID}]
	return exists, nil
}

// Blacklist prevents a package from being uploaded
func (m *Memory) Blacklist(contentType schema.ContentType, uniqueID string) {
	m.Lock()
	defer m.Unlock()
	m.blacklist[key{contentType, uniqueID}] = struct{}{}
}

// NextUniqueID returns the next unused id for a content type as eight hex
// digits
func (m *Memory) NextUniqueID(_ context.Context, contentType schema.ContentType) (string, error) {
	m.Lock()
	defer m.Unlock()
	for {
		if m.lastID[contentType] == ^uint32(0) {
			return "", httpresponse.ErrInternalError.Withf("no unique id left for %s", contentType)
		}
		m.lastID[contentType]++
		id := fmt.Sprintf("%08x", m.lastID[contentType])
		if _, exists := m.packages[key{contentType, id}]; !exists {
			return id, nil
		}
	}
}

// Store creates or replaces a package
func (m *Memory) Store(_ context.Context, _ schema.User, pkg *schema.Package) error {
	if pkg == nil || !pkg.ContentType.IsContentType() || pkg.UniqueID == "" {
		return httpresponse.ErrBadRequest.With("package has no content type or unique id")
	}
	pkg, err := clone(pkg)
	if err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.packages[key{pkg.ContentType, pkg.UniqueID}] = pkg
	return nil
}

// Packages returns every package, ordered by content type and unique id
func (m *Memory) Packages() []*schema.Package {
	m.RLock()
	defer m.RUnlock()
	result := make([]*schema.Package, 0, len(m.packages))
	for _, pkg := range m.packages {
		if pkg, err := clone(pkg); err == nil {
			result = append(result, pkg)
		}
	}
	slices.SortFunc(result, func(a, b *schema.Package) int {
		return cmp.Or(cmp.Compare(a.ContentType, b.ContentType), cmp.Compare(a.UniqueID, b.UniqueID))
	})
	return result
}

// Save writes the packages and blacklist as JSON
func (m *Memory) Save(w io.Writer) error {
	var data snapshot
	data.Packages = m.Packages()
	m.RLock()
	for k := range m.blacklist {
		data.Blacklist = append(data.Blacklist, k)
	}
	m.RUnlock()
	slices.SortFunc(data.Blacklist, func(a, b key) int {
		return cmp.Or(cmp.Compare(a.ContentType, b.ContentType), cmp.Compare(a.UniqueID, b.UniqueID))
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Load replaces the index with one written by Save. Generated ids continue
// after the largest id which is in use.
func (m *Memory) Load(r io.Reader) error {
	var data snapshot
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return httpresponse.ErrBadRequest.Withf("index: %v", err)
	}

	packages := make(map[key]*schema.Package, len(data.Packages))
	lastID := make(map[schema.ContentType]uint32)
	for _, pkg := range data.Packages {
		if pkg == nil || !pkg.ContentType.IsContentType() || pkg.UniqueID == "" {
			return httpresponse.ErrBadRequest.With("index: package has no content type or unique id")
		}
		packages[key{pkg.ContentType, pkg.UniqueID}] = pkg
		if id, err := strconv.ParseUint(pkg.UniqueID, 16, 32); err == nil && uint32(id) > lastID[pkg.ContentType] {
			lastID[pkg.ContentType] = uint32(id)
		}
	}
	blacklist := make(map[key]struct{}, len(data.Blacklist))
	for _, k := range data.Blacklist {
		blacklist[k] = struct{}{}
	}

	m.Lock()
	defer m.Unlock()
	m.packages, m.blacklist, m.lastID = packages, blacklist, lastID
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// clone returns a deep copy, so callers cannot change the index
func clone(pkg *schema.Package) (*schema.Package, error) {
	data, err := json.Marshal(pkg)
	if err != nil {
		return nil, err
	}
	var result schema.Package
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (m *Memory) String() string {
	return types.Stringify(m.Packages())
}
