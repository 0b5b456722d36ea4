package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	// Packages
	bananas "github.com/OpenTTD/bananas-api"
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	resolve "github.com/OpenTTD/bananas-api/pkg/resolve"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Validator checks the files and fields of a session
type Validator struct {
	// Index is used to find an existing package and the blacklist
	Index bananas.Index

	// Resolve are options for finding the content type
	Resolve []resolve.Opt

	// Reader are options for decoding files
	Reader []reader.Opt

	// Workers is the number of files which are decoded in parallel
	Workers int

	// OnDecode is called for every decoded file, when set
	OnDecode func(filename string, err error)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Validate decodes the files of the session and checks the package they
// form, and returns the resulting status. Problems with the upload are
// reported in the status; an error is only returned when the check
// itself failed.
func (s *Session) Validate(ctx context.Context, v *Validator) (Status, error) {
	s.mu.Lock()
	err := s.validate(ctx, v)
	s.mu.Unlock()
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s *Session) validate(ctx context.Context, v *Validator) error {
	s.errors, s.warnings = nil, nil
	s.result, s.existing = nil, nil

	// Decode every file, then find the content type
	inputs, ok, err := s.decode(ctx, v)
	if err != nil {
		return err
	}
	if ok {
		result, err := resolve.Resolve(inputs, v.Resolve...)
		var members *resolve.MemberError
		switch {
		case errors.As(err, &members):
			s.attach(members)
		case err != nil:
			s.errorf("%v", err)
		default:
			s.result = result
		}
	}

	for _, file := range s.files {
		if len(file.Errors) == 0 {
			continue
		}
		s.errorf("File '%s' failed validation", file.Filename)
		for _, msg := range file.Errors {
			s.errorf("%s: %s", file.Filename, msg)
		}
	}
	s.checkFilenames()
	s.checkLicense()
	if s.fields.Version == "" {
		s.errorf("Version is not yet set for this package.")
	}

	// Look up the published package
	if s.result != nil && s.result.UniqueID != "" && v.Index != nil {
		if blacklisted, err := v.Index.IsBlacklisted(ctx, s.result.ContentType, s.result.UniqueID); err != nil {
			return httpresponse.ErrInternalError.Withf("%v", err)
		} else if blacklisted {
			s.errorf("This content-type + unique-id is blacklisted.")
		}
		if pkg, err := v.Index.Package(ctx, s.result.ContentType, s.result.UniqueID); err != nil {
			return httpresponse.ErrInternalError.Withf("%v", err)
		} else {
			s.existing = pkg
		}
	}

	if s.existing != nil {
		s.checkExisting(s.existing)
	} else {
		s.checkNew()
	}
	var classification *schema.Classification
	if s.result != nil {
		classification = s.result.Classification
	}
	if PacketSize(s.fields, s.existing, classification) > PacketBudget {
		s.errorf("Entry would exceed OpenTTD packet size; trim down on your tags.")
	}

	switch {
	case len(s.errors) > 0:
		s.status = schema.StatusErrors
	case len(s.warnings) > 0:
		s.status = schema.StatusWarnings
	default:
		s.status = schema.StatusOK
	}

	// Return success
	return nil
}

// decode reads every file in parallel. It returns false when any file
// failed, in which case the content type is not looked for.
func (s *Session) decode(ctx context.Context, v *Validator) ([]resolve.Input, bool, error) {
	objects := make([]reader.Object, len(s.files))
	failed := make([]bool, len(s.files))

	g, ctx := errgroup.WithContext(ctx)
	if v.Workers > 0 {
		g.SetLimit(v.Workers)
	}
	for i, file := range s.files {
		// An archive which could not be extracted keeps its error
		if archiveKind(file.Filename) != archiveNone && len(file.Errors) > 0 {
			failed[i] = true
			continue
		}
		file.Errors = nil
		file.PackageType = ""
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obj, err := s.read(file, v.Reader)
			if v.OnDecode != nil {
				v.OnDecode(file.Filename, err)
			}
			if err != nil {
				file.Errors = append(file.Errors, err.Error())
				failed[i] = true
			} else if obj != nil {
				file.PackageType = obj.PackageType()
				objects[i] = obj
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	if slices.Contains(failed, true) {
		return nil, false, nil
	}
	inputs := make([]resolve.Input, 0, len(s.files))
	for i, file := range s.files {
		inputs = append(inputs, resolve.Input{Filename: file.Filename, Object: objects[i]})
	}
	return inputs, true, nil
}

func (s *Session) read(file *File, opts []reader.Opt) (reader.Object, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("Internal error while reading file: %w", err)
	}
	defer f.Close()
	return reader.Read(file.Filename, f, opts...)
}

// attach adds the problems found with base set members to their files
func (s *Session) attach(members *resolve.MemberError) {
	for _, err := range members.Errors {
		for _, file := range s.files {
			if file.Filename == err.Filename {
				file.Errors = append(file.Errors, err.Err.Error())
				break
			}
		}
	}
}

func (s *Session) checkFilenames() {
	seen := make(map[string]int, len(s.files))
	for _, file := range s.files {
		seen[file.Filename]++
		if seen[file.Filename] == 2 {
			s.errorf("File '%s' exists more than once", file.Filename)
		}
	}
}

func (s *Session) checkLicense() {
	hasLicense := slices.ContainsFunc(s.files, func(f *File) bool {
		return f.Filename == "license.txt"
	})
	switch {
	case s.fields.License == "":
		s.errorf("License is not yet set for this package.")
	case s.fields.License == schema.LicenseCustom && !hasLicense:
		s.errorf("License is set to custom, but no license.txt is uploaded.")
	case s.fields.License != schema.LicenseCustom && hasLicense:
		s.errorf("License is set to %s; this does not require uploading 'license.txt'.", s.fields.License)
	}
}

func (s *Session) checkExisting(pkg *schema.Package) {
	if !pkg.HasAuthor(s.user) {
		s.errorf("You do not have permission to upload a new version for this package.")
	}
	if s.fields.Version != "" && slices.ContainsFunc(pkg.Versions, func(v schema.Version) bool {
		return v.Version == s.fields.Version
	}) {
		s.errorf("There is already an entry with the same version for this package.")
	}
	if md5sum := partial(s.result.MD5); slices.ContainsFunc(pkg.Versions, func(v schema.Version) bool {
		return v.MD5SumPartial == md5sum
	}) {
		s.errorf("There is already an entry with the same md5sum-partial for this package; this most likely means you are uploading the exact same content.")
	}
}

func (s *Session) checkNew() {
	if s.fields.Name == "" {
		s.errorf("Name is not yet set for this package.")
	}
	if s.fields.Description == "" {
		s.warnf("Description is not yet set for this package; although not mandatory, highly advisable.")
	}
	if s.fields.URL == "" {
		s.warnf("URL is not yet set for this package; although not mandatory, highly advisable.")
	}
	if len(s.fields.Tags) == 0 {
		s.warnf("Tags is not yet set for this package; although not mandatory, highly advisable.")
	}
}

func (s *Session) errorf(format string, args ...any) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *Session) warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}
