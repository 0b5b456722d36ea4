package session

import (
	"archive/tar"
	"bufio"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	gzip "github.com/klauspost/compress/gzip"
	zip "github.com/klauspost/compress/zip"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type archive int

// member is a regular file within an archive
type member struct {
	name string
	open func() (io.ReadCloser, error)
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	archiveNone archive = iota
	archiveTar
	archiveZip
)

var (
	errArchiveEscape = errors.New("archive member outside of the package")
)

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func archiveKind(filename string) archive {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar"), strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveTar
	case strings.HasSuffix(lower, ".zip"):
		return archiveZip
	}
	return archiveNone
}

func (a archive) message() string {
	if a == archiveZip {
		return "couldn't extract archive file; is it a valid zipfile?"
	}
	return "couldn't extract archive file; is it a valid tarball?"
}

// extract writes every regular file of an archive into dir under a new
// id. A file larger than limit bytes fails the archive. Nothing is left
// in dir when an error is returned.
func extract(kind archive, src, dir string, limit int64) (result []*File, err error) {
	defer func() {
		if err != nil {
			for _, file := range result {
				os.Remove(file.Path)
			}
			result = nil
		}
	}()

	fn := func(name string, r io.Reader) error {
		id := NewID()
		path := filepath.Join(dir, id)
		w, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		n, err := io.Copy(w, io.LimitReader(r, limit+1))
		if err == nil && n > limit {
			err = schema.ErrSizeExceeded.Withf("%s is larger than %d bytes", name, limit)
		}
		if err := errors.Join(err, w.Close()); err != nil {
			os.Remove(path)
			return err
		}
		result = append(result, &File{ID: id, Filename: name, Size: n, Path: path})
		return nil
	}

	switch kind {
	case archiveTar:
		err = extractTar(src, fn)
	case archiveZip:
		err = extractZip(src, fn)
	}
	if err != nil {
		return result, err
	}

	stripRoot(result)
	return result, nil
}

// extractTar reads a tarball, which is gzip compressed when it starts
// with the gzip magic
func extractTar(src string, fn func(string, io.Reader) error) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, err := br.Peek(2); err != nil {
		return err
	} else if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		name, err := memberName(header.Name)
		if err != nil {
			return err
		}
		if err := fn(name, tr); err != nil {
			return err
		}
	}
}

func extractZip(src string, fn func(string, io.Reader) error) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := memberName(f.Name)
		if err != nil {
			return err
		}
		r, err := f.Open()
		if err != nil {
			return err
		}
		err = fn(name, r)
		r.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// memberName returns the cleaned name of an archive member, rejecting
// names which would leave the package
func memberName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) {
		return "", errArchiveEscape
	}
	name = path.Clean(name)
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", errArchiveEscape
	}
	return name, nil
}

// stripRoot removes the first folder from every filename when all files
// share it
func stripRoot(files []*File) {
	if len(files) == 0 {
		return
	}
	root, _, found := strings.Cut(files[0].Filename, "/")
	if !found {
		return
	}
	for _, file := range files {
		if !strings.HasPrefix(file.Filename, root+"/") {
			return
		}
	}
	for _, file := range files {
		file.Filename = strings.TrimPrefix(file.Filename, root+"/")
	}
}
