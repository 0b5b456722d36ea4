package session

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	// Packages
	index "github.com/OpenTTD/bananas-api/pkg/index"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	gzip "github.com/klauspost/compress/gzip"
	zip "github.com/klauspost/compress/zip"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// HELPERS

const (
	infoNut = "class MyAI extends AIInfo {\n\tfunction GetShortName() { return \"ABCD\"; }\n}\n"
	mainNut = "function Start() {}\n"
)

var testUser = schema.User{Method: "github", ID: "1234", DisplayName: "alice"}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(testUser, NewID(), filepath.Join(t.TempDir(), "session"))
	require.NoError(t, err)
	return s
}

func attach(t *testing.T, s *Session, filename string, data []byte) string {
	t.Helper()
	id := NewID()
	require.NoError(t, s.Attach(id, filename, bytes.NewReader(data)))
	return id
}

func filenames(status Status) []string {
	result := make([]string, 0, len(status.Files))
	for _, file := range status.Files {
		result = append(result, file.Filename)
	}
	return result
}

type tarEntry struct {
	name string
	data string
	dir  bool
}

func tarball(t *testing.T, compress bool, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.Writer = &buf
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(&buf)
		w = gz
	}
	tw := tar.NewWriter(w)
	for _, entry := range entries {
		if entry.dir {
			require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: entry.name, Mode: 0o755}))
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: entry.name, Mode: 0o644, Size: int64(len(entry.data))}))
		_, err := tw.Write([]byte(entry.data))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	if gz != nil {
		require.NoError(t, gz.Close())
	}
	return buf.Bytes()
}

func zipfile(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, entry := range entries {
		if entry.dir {
			_, err := zw.Create(entry.name)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(entry.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entry.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// aiPackage attaches the files of a valid AI and sets its fields
func aiPackage(t *testing.T, s *Session, main string) {
	t.Helper()
	attach(t, s, "info.nut", []byte(infoNut))
	attach(t, s, "main.nut", []byte(main))
	require.NoError(t, s.Update(&Update{
		Version:     ptr("1.0"),
		License:     ptr(schema.LicenseGPLv2),
		Name:        ptr("My AI"),
		Description: ptr("An AI"),
		URL:         ptr("https://example.com"),
		Tags:        &[]string{"ai"},
	}))
}

// aiMD5 returns the checksum of an AI package
func aiMD5(main string) string {
	a, b := md5.Sum([]byte(infoNut)), md5.Sum([]byte(main))
	for i := range a {
		a[i] ^= b[i]
	}
	return hex.EncodeToString(a[:])
}

func ptr[T any](v T) *T {
	return &v
}

func validator(idx *index.Memory) *Validator {
	return &Validator{Index: idx, Workers: 2}
}

// storage keeps archives in memory
type storage struct {
	sync.Mutex
	archives map[string][]byte
}

func (s *storage) MoveToStorage(_ context.Context, path string, contentType schema.ContentType, uniqueID, md5sum string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	if s.archives == nil {
		s.archives = make(map[string][]byte)
	}
	s.archives[string(contentType)+"/"+uniqueID+"/"+md5sum] = data
	return os.Remove(path)
}

// untar returns the files in a stored archive
func untar(t *testing.T, data []byte) map[string]string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	result := make(map[string]string)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		result[header.Name] = string(content)
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Attach(t *testing.T) {
	assert := assert.New(t)
	s := newSession(t)

	// Announce, then complete
	require.NoError(t, s.Announce("file1", "main.nut"))
	require.NoError(t, s.Attach("file1", "main.nut", strings.NewReader(mainNut)))
	assert.Empty(s.announced)

	// An announcement after completion is ignored
	require.NoError(t, s.Announce("file1", "main.nut"))
	assert.Empty(s.announced)

	status := s.Status()
	require.Len(t, status.Files, 1)
	assert.Equal("main.nut", status.Files[0].Filename)
	assert.Equal(int64(len(mainNut)), status.Files[0].Size)
	assert.FileExists(filepath.Join(s.Dir(), "upload-file1"))

	// Detach removes the file from disk
	require.NoError(t, s.Detach("file1"))
	assert.Empty(s.Status().Files)
	assert.NoFileExists(filepath.Join(s.Dir(), "upload-file1"))
	assert.ErrorIs(s.Detach("file1"), httpresponse.ErrNotFound)

	// Announced files can be detached too
	require.NoError(t, s.Announce("file2", "info.nut"))
	require.NoError(t, s.Detach("file2"))

	// Ids are used as filenames
	assert.ErrorIs(s.Announce("../x", "x.nut"), httpresponse.ErrBadRequest)
	assert.ErrorIs(s.Finalize("missing", "x.nut"), httpresponse.ErrNotFound)
}

func Test_Cleanup(t *testing.T) {
	assert := assert.New(t)
	s := newSession(t)
	attach(t, s, "main.nut", []byte(mainNut))
	require.NoError(t, s.Announce("pending", "info.nut"))
	require.NoError(t, s.Cleanup())
	assert.NoDirExists(s.Dir())
}

func Test_Extract(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     func(t *testing.T) []byte
		files    []string
		isErr    string
	}{
		{"TarRoot", "ai.tar", func(t *testing.T) []byte {
			return tarball(t, false, tarEntry{name: "myai/", dir: true}, tarEntry{name: "myai/info.nut", data: infoNut}, tarEntry{name: "myai/lang/english.txt", data: "x"})
		}, []string{"info.nut", "lang/english.txt"}, ""},
		{"TarGzNoRoot", "ai.tar.gz", func(t *testing.T) []byte {
			return tarball(t, true, tarEntry{name: "./info.nut", data: infoNut}, tarEntry{name: "main.nut", data: mainNut})
		}, []string{"info.nut", "main.nut"}, ""},
		{"TgzMixedRoot", "ai.tgz", func(t *testing.T) []byte {
			return tarball(t, true, tarEntry{name: "a/info.nut", data: infoNut}, tarEntry{name: "b/main.nut", data: mainNut})
		}, []string{"a/info.nut", "b/main.nut"}, ""},
		{"ZipRoot", "ai.ZIP", func(t *testing.T) []byte {
			return zipfile(t, tarEntry{name: "myai/", dir: true}, tarEntry{name: "myai/info.nut", data: infoNut}, tarEntry{name: "myai/main.nut", data: mainNut})
		}, []string{"info.nut", "main.nut"}, ""},
		{"BrokenTar", "ai.tar", func(t *testing.T) []byte {
			return []byte(strings.Repeat("not a tarball ", 100))
		}, []string{"ai.tar"}, "couldn't extract archive file; is it a valid tarball?"},
		{"EmptyTar", "ai.tgz", func(t *testing.T) []byte {
			return nil
		}, []string{"ai.tgz"}, "couldn't extract archive file; is it a valid tarball?"},
		{"BrokenZip", "ai.zip", func(t *testing.T) []byte {
			return []byte("PK not a zipfile")
		}, []string{"ai.zip"}, "couldn't extract archive file; is it a valid zipfile?"},
		{"Escape", "ai.tar", func(t *testing.T) []byte {
			return tarball(t, false, tarEntry{name: "info.nut", data: infoNut}, tarEntry{name: "../../etc/passwd", data: "x"})
		}, []string{"ai.tar"}, "couldn't extract archive file; is it a valid tarball?"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)
			s := newSession(t)
			attach(t, s, test.filename, test.data(t))
			status := s.Status()
			assert.ElementsMatch(test.files, filenames(status))

			entries, err := os.ReadDir(s.Dir())
			require.NoError(t, err)
			assert.Len(entries, len(test.files))
			if test.isErr != "" {
				assert.Equal([]string{test.isErr}, status.Files[0].Errors)
			} else {
				for _, file := range status.Files {
					assert.Empty(file.Errors)
					assert.NotEqual(test.filename, file.Filename)
				}
			}
		})
	}
}

func Test_Extract_Content(t *testing.T) {
	assert := assert.New(t)
	s := newSession(t)
	attach(t, s, "ai.tar.gz", tarball(t, true, tarEntry{name: "ai/info.nut", data: infoNut}))
	status := s.Status()
	require.Len(t, status.Files, 1)
	assert.Equal(int64(len(infoNut)), status.Files[0].Size)
	assert.Len(status.Files[0].ID, 32)

	data, err := os.ReadFile(s.files[0].Path)
	require.NoError(t, err)
	assert.Equal(infoNut, string(data))
}

func Test_Extract_MaxFileSize(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     func(t *testing.T) []byte
		isErr    string
	}{
		{"Tar", "ai.tar.gz", func(t *testing.T) []byte {
			return tarball(t, true, tarEntry{name: "ai/info.nut", data: infoNut}, tarEntry{name: "ai/main.nut", data: strings.Repeat("x", 4096)})
		}, "couldn't extract archive file; is it a valid tarball?"},
		{"Zip", "ai.zip", func(t *testing.T) []byte {
			return zipfile(t, tarEntry{name: "ai/info.nut", data: infoNut}, tarEntry{name: "ai/main.nut", data: strings.Repeat("x", 4096)})
		}, "couldn't extract archive file; is it a valid zipfile?"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)
			s, err := New(testUser, NewID(), filepath.Join(t.TempDir(), "session"), WithMaxFileSize(1024))
			require.NoError(t, err)
			attach(t, s, test.filename, test.data(t))

			// The archive is kept, and no member is left on disk
			status := s.Status()
			require.Len(t, status.Files, 1)
			assert.Equal(test.filename, status.Files[0].Filename)
			assert.Equal([]string{test.isErr}, status.Files[0].Errors)
			entries, err := os.ReadDir(s.Dir())
			require.NoError(t, err)
			assert.Len(entries, 1)
		})
	}

	// The limit is inclusive
	s, err := New(testUser, NewID(), filepath.Join(t.TempDir(), "session"), WithMaxFileSize(int64(len(infoNut))))
	require.NoError(t, err)
	attach(t, s, "ai.tar", tarball(t, false, tarEntry{name: "ai/info.nut", data: infoNut}))
	status := s.Status()
	require.Len(t, status.Files, 1)
	assert.Equal(t, "info.nut", status.Files[0].Filename)
	assert.Empty(t, status.Files[0].Errors)

	_, err = New(testUser, NewID(), t.TempDir(), WithMaxFileSize(0))
	assert.Error(t, err)
}

func Test_SafeName(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"My AI", "My_AI"},
		{"1.0", "1.0"},
		{"  Hello,  World!  ", "Hello_World"},
		{".hidden.", "hidden"},
		{"Ünïcode ✓ name", "n_code_name"},
		{"", ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.out, safeName(test.in), test.in)
	}
}
