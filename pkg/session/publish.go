package session

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	// Packages
	bananas "github.com/OpenTTD/bananas-api"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	gzip "github.com/klauspost/compress/gzip"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Publisher stores a validated session as a new package version
type Publisher struct {
	Storage bananas.Storage
	Index   bananas.Index

	// Licenses holds the text of every license as "{license}.txt". When
	// nil, no license text is added to the archive.
	Licenses fs.FS

	// Now returns the upload date
	Now func() time.Time

	Logger *slog.Logger
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Publish validates the session again and, when there are no errors,
// stores the archive and indexes the new version. Nothing is stored when
// validation reports an error. The session should be cleaned up after a
// successful publish.
func (s *Session) Publish(ctx context.Context, v *Validator, p *Publisher) (*schema.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(ctx, v); err != nil {
		return nil, err
	} else if len(s.errors) > 0 {
		return nil, httpresponse.ErrConflict.Withf("package has %d error(s) and cannot be published", len(s.errors))
	}

	result := s.result
	uniqueID := result.UniqueID
	if uniqueID == "" {
		id, err := p.Index.NextUniqueID(ctx, result.ContentType)
		if err != nil {
			return nil, httpresponse.ErrInternalError.Withf("%v", err)
		}
		uniqueID = id
	}
	name := s.fields.Name
	if name == "" && s.existing != nil {
		name = s.existing.Name
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	// Create the archive and move it into storage
	tarPath := safeName(name) + "-" + safeName(s.fields.Version)
	archive := filepath.Join(s.dir, tarPath+".tar.gz")
	filesize, err := s.tarball(archive, tarPath, name, uniqueID, now, p)
	if err != nil {
		return nil, errors.Join(httpresponse.ErrInternalError.Withf("%v", err), remove(archive))
	}
	if err := p.Storage.MoveToStorage(ctx, archive, result.ContentType, uniqueID, result.MD5); err != nil {
		return nil, errors.Join(err, remove(archive))
	}

	// Add the version to the package
	version := schema.Version{
		Version:        s.fields.Version,
		License:        s.fields.License,
		Availability:   schema.AvailabilityNewGames,
		UploadDate:     now.UTC().Truncate(time.Second),
		MD5SumPartial:  partial(result.MD5),
		Filesize:       filesize,
		Dependencies:   s.fields.Dependencies,
		Compatibility:  s.fields.Compatibility,
		Classification: result.Classification,
	}
	pkg := s.existing
	if pkg != nil {
		for i := range pkg.Versions {
			if pkg.Versions[i].Availability == schema.AvailabilityNewGames {
				pkg.Versions[i].Availability = schema.AvailabilitySavegame
			}
		}
		version.Description = s.fields.Description
		version.URL = s.fields.URL
		version.Tags = s.fields.Tags
		version.Regions = s.fields.Regions
	} else {
		pkg = &schema.Package{
			ContentType: result.ContentType,
			UniqueID:    uniqueID,
			Name:        s.fields.Name,
			Description: s.fields.Description,
			URL:         s.fields.URL,
			Tags:        s.fields.Tags,
			Regions:     s.fields.Regions,
			Authors: []schema.Author{{
				DisplayName: s.user.DisplayName,
				IDs:         map[string]string{s.user.Method: s.user.ID},
			}},
		}
	}
	pkg.Versions = append(pkg.Versions, version)

	if err := p.Index.Store(ctx, s.user, pkg); err != nil {
		// The stored archive has no index entry, and needs removing by hand
		p.logger().ErrorContext(ctx, "archive stored but not indexed", "content_type", result.ContentType, "unique_id", uniqueID, "md5sum", result.MD5, "error", err)
		return nil, httpresponse.ErrInternalError.Withf("archive stored but not indexed: %v", err)
	}

	// Return success
	return pkg, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// tarball writes the files of the session into a gzip compressed tar
// archive, below the folder tarPath, and returns the size of the archive
func (s *Session) tarball(path, tarPath, name, uniqueID string, now time.Time, p *Publisher) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	files := slices.Clone(s.files)
	slices.SortStableFunc(files, func(a, b *File) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	for _, file := range files {
		if err := addFile(tw, tarPath+"/"+file.Filename, file.Path, now); err != nil {
			return 0, err
		}
	}

	if s.fields.License != schema.LicenseCustom {
		if p.Licenses == nil {
			p.logger().Warn("no license text available", "license", s.fields.License)
		} else if text, err := fs.ReadFile(p.Licenses, string(s.fields.License)+".txt"); err != nil {
			return 0, fmt.Errorf("license %q: %w", s.fields.License, err)
		} else if err := addBytes(tw, tarPath+"/license.txt", text, now); err != nil {
			return 0, err
		}
	}

	// Scenarios and heightmaps carry their id and title next to them
	if ct := s.result.ContentType; ct == schema.Scenario || ct == schema.Heightmap {
		id, err := strconv.ParseUint(uniqueID, 16, 32)
		if err != nil {
			return 0, fmt.Errorf("unique id %q: %w", uniqueID, err)
		}
		main := tarPath + "/" + s.result.Primary.Filename
		if err := addBytes(tw, main+".id", []byte(strconv.FormatUint(id, 10)), now); err != nil {
			return 0, err
		}
		if err := addBytes(tw, main+".title", fmt.Appendf(nil, "%s (%s)", name, s.fields.Version), now); err != nil {
			return 0, err
		}
	}

	if err := tw.Close(); err != nil {
		return 0, err
	} else if err := gz.Close(); err != nil {
		return 0, err
	} else if err := f.Sync(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func addFile(tw *tar.Writer, name, path string, modTime time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     info.Size(),
		Mode:     0o644,
		ModTime:  modTime,
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func addBytes(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     int64(len(data)),
		Mode:     0o644,
		ModTime:  modTime,
	}); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// safeName keeps letters, digits and dots, and replaces every other run
// of characters with a single underscore
func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
