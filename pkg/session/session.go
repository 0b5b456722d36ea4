package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	// Packages
	resolve "github.com/OpenTTD/bananas-api/pkg/resolve"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	uuid "github.com/google/uuid"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Session is the upload of one new package version by one user. Files
// are kept in a directory owned by the session until it is published or
// cleaned up. All methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	user      schema.User
	token     string
	dir       string
	files     []*File
	announced map[string]*File
	fields    Fields
	maxSize   int64

	// The outcome of the last validation
	status   schema.Status
	errors   []string
	warnings []string
	result   *resolve.Result
	existing *schema.Package
}

// File is one file of the package being uploaded
type File struct {
	ID          string             `json:"uuid"`
	Filename    string             `json:"filename"`
	Size        int64              `json:"filesize"`
	PackageType schema.PackageType `json:"package-type,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
	Path        string             `json:"-"`
}

// Fields are the package values set by the user. Empty strings and nil
// slices are not set.
type Fields struct {
	Version       string                 `json:"version,omitempty"`
	License       schema.License         `json:"license,omitempty"`
	Dependencies  []schema.Dependency    `json:"dependencies,omitempty"`
	Compatibility []schema.Compatibility `json:"compatibility,omitempty"`
	Name          string                 `json:"name,omitempty"`
	Description   string                 `json:"description,omitempty"`
	URL           string                 `json:"url,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
	Regions       []string               `json:"regions,omitempty"`
}

// Status is a snapshot of a session
type Status struct {
	Token          string                 `json:"token"`
	User           schema.User            `json:"user"`
	Status         schema.Status          `json:"status"`
	Errors         []string               `json:"errors"`
	Warnings       []string               `json:"warnings"`
	Files          []File                 `json:"files"`
	ContentType    schema.ContentType     `json:"content-type,omitempty"`
	UniqueID       string                 `json:"unique-id,omitempty"`
	MD5SumPartial  string                 `json:"md5sum-partial,omitempty"`
	Classification *schema.Classification `json:"classification,omitempty"`
	Fields
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	reFileID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	ErrFileNotFound = httpresponse.ErrNotFound.With("file not found in session")
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns an empty session, which keeps its files in dir. The
// directory is created if it does not exist.
func New(user schema.User, token, dir string, opts ...Opt) (*Session, error) {
	s := &Session{
		user:      user,
		token:     token,
		dir:       dir,
		maxSize:   DefaultMaxFileSize,
		announced: make(map[string]*File),
		status:    schema.StatusOK,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return s, nil
}

// Cleanup removes every file of the session from disk
func (s *Session) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
	clear(s.announced)
	return os.RemoveAll(s.dir)
}

// NewID returns a random identifier of 32 hex digits, used for session
// tokens and file ids
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// User returns the owner of the session
func (s *Session) User() schema.User {
	return s.user
}

// Token returns the token of the session
func (s *Session) Token() string {
	return s.token
}

// Dir returns the directory which holds the files of the session
func (s *Session) Dir() string {
	return s.dir
}

// Path returns where the content of an uploaded file is stored
func (s *Session) Path(id string) (string, error) {
	if !reFileID.MatchString(id) {
		return "", httpresponse.ErrBadRequest.Withf("invalid file id %q", id)
	}
	return filepath.Join(s.dir, "upload-"+id), nil
}

// Announce registers a file whose upload has started. An announcement
// for a file which is already complete is ignored.
func (s *Session) Announce(id, filename string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.ContainsFunc(s.files, func(f *File) bool { return f.ID == id }) {
		return nil
	}
	s.announced[id] = &File{ID: id, Filename: filename, Path: path}
	return nil
}

// Attach writes the content of an upload and adds it to the session
func (s *Session) Attach(id, filename string, r io.Reader) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return httpresponse.ErrInternalError.Withf("%v", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return errors.Join(httpresponse.ErrInternalError.Withf("%v", err), w.Close(), os.Remove(path))
	} else if err := w.Close(); err != nil {
		return errors.Join(httpresponse.ErrInternalError.Withf("%v", err), os.Remove(path))
	}
	return s.Finalize(id, filename)
}

// Finalize adds a completed upload, which is stored at Path(id), to the
// session. Archives are replaced by the files they contain; an archive
// which cannot be read is kept with an error.
func (s *Session) Finalize(id, filename string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return httpresponse.ErrNotFound.Withf("upload %q has no content", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.announced, id)
	file := &File{ID: id, Filename: filename, Size: info.Size(), Path: path}

	kind := archiveKind(filename)
	if kind == archiveNone {
		s.files = append(s.files, file)
		return nil
	}

	members, err := extract(kind, path, s.dir, s.maxSize)
	if err != nil {
		file.Errors = append(file.Errors, kind.message())
		s.files = append(s.files, file)
		return nil
	}
	s.files = append(s.files, members...)

	// Return any errors removing the archive
	return os.Remove(path)
}

// Detach removes a file from the session, and from disk
func (s *Session) Detach(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file, exists := s.announced[id]; exists {
		delete(s.announced, id)
		return remove(file.Path)
	}
	for i, file := range s.files {
		if file.ID == id {
			s.files = slices.Delete(s.files, i, i+1)
			return remove(file.Path)
		}
	}
	return ErrFileNotFound
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := Status{
		Token:    s.token,
		User:     s.user,
		Status:   s.status,
		Errors:   slices.Clone(s.errors),
		Warnings: slices.Clone(s.warnings),
		Files:    make([]File, 0, len(s.files)),
		Fields:   s.fields.clone(),
	}
	for _, file := range s.files {
		f := *file
		f.Errors = slices.Clone(file.Errors)
		result.Files = append(result.Files, f)
	}
	if s.result != nil {
		result.ContentType = s.result.ContentType
		result.UniqueID = s.result.UniqueID
		result.MD5SumPartial = partial(s.result.MD5)
		result.Classification = s.result.Classification
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", filepath.Base(path), err)
	}
	return nil
}

func partial(md5sum string) string {
	if len(md5sum) < 8 {
		return md5sum
	}
	return md5sum[:8]
}

func (f Fields) clone() Fields {
	f.Dependencies = slices.Clone(f.Dependencies)
	f.Compatibility = slices.Clone(f.Compatibility)
	f.Tags = slices.Clone(f.Tags)
	f.Regions = slices.Clone(f.Regions)
	return f
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s Status) String() string {
	return types.Stringify(s)
}
