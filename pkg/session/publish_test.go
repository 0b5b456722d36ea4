package session

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"testing"
	"testing/fstest"
	"time"

	// Packages
	index "github.com/OpenTTD/bananas-api/pkg/index"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 12, 30, 15, 500, time.UTC)

func publisher(idx *index.Memory, store *storage) *Publisher {
	return &Publisher{
		Storage:  store,
		Index:    idx,
		Licenses: fstest.MapFS{"GPL v2.txt": {Data: []byte("GPL text")}},
		Now:      func() time.Time { return testNow },
	}
}

func heightmapPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 32))
	for y := range 32 {
		for x := range 64 {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 4)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func Test_Publish(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	idx, store := index.NewMemory(), new(storage)

	s := newSession(t)
	aiPackage(t, s, mainNut)
	require.NoError(t, s.Update(&Update{Regions: &[]string{"NL"}, Dependencies: &[]schema.Dependency{{
		ContentType: schema.AILibrary, UniqueID: "4c494231", MD5SumPartial: "01234567",
	}}}))
	pkg, err := s.Publish(ctx, validator(idx), publisher(idx, store))
	require.NoError(t, err)

	// The package
	assert.Equal(schema.AI, pkg.ContentType)
	assert.Equal("41424344", pkg.UniqueID)
	assert.Equal("My AI", pkg.Name)
	assert.Equal("An AI", pkg.Description)
	assert.Equal([]string{"ai"}, pkg.Tags)
	assert.Equal([]string{"NL"}, pkg.Regions)
	assert.Equal([]schema.Author{{DisplayName: "alice", IDs: map[string]string{"github": "1234"}}}, pkg.Authors)
	require.Len(t, pkg.Versions, 1)
	version := pkg.Versions[0]
	assert.Equal("1.0", version.Version)
	assert.Equal(schema.LicenseGPLv2, version.License)
	assert.Equal(schema.AvailabilityNewGames, version.Availability)
	assert.Equal(testNow.Truncate(time.Second), version.UploadDate)
	assert.Equal(aiMD5(mainNut)[:8], version.MD5SumPartial)
	assert.Len(version.Dependencies, 1)

	// The package is indexed
	indexed, err := idx.Package(ctx, schema.AI, "41424344")
	require.NoError(t, err)
	require.NotNil(t, indexed)
	assert.Equal("My AI", indexed.Name)

	// The archive is stored
	data, exists := store.archives["ai/41424344/"+aiMD5(mainNut)]
	require.True(t, exists)
	assert.Equal(int64(len(data)), version.Filesize)
	assert.Equal(map[string]string{
		"My_AI-1.0/info.nut":    infoNut,
		"My_AI-1.0/license.txt": "GPL text",
		"My_AI-1.0/main.nut":    mainNut,
	}, untar(t, data))
}

func Test_Publish_NewVersion(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	idx, store := index.NewMemory(), new(storage)

	s := newSession(t)
	aiPackage(t, s, mainNut)
	_, err := s.Publish(ctx, validator(idx), publisher(idx, store))
	require.NoError(t, err)

	// A second version by the same author, with different content
	main2 := mainNut + "// version 2\n"
	s = newSession(t)
	attach(t, s, "info.nut", []byte(infoNut))
	attach(t, s, "main.nut", []byte(main2))
	require.NoError(t, s.Update(&Update{Version: ptr("2.0"), License: ptr(schema.LicenseGPLv2), Tags: &[]string{"ai", "new"}}))
	pkg, err := s.Publish(ctx, validator(idx), publisher(idx, store))
	require.NoError(t, err)

	require.Len(t, pkg.Versions, 2)
	assert.Equal(schema.AvailabilitySavegame, pkg.Versions[0].Availability)
	assert.Equal(schema.AvailabilityNewGames, pkg.Versions[1].Availability)
	assert.Equal([]string{"ai", "new"}, pkg.Versions[1].Tags)
	assert.Equal([]string{"ai"}, pkg.Tags)
	assert.Equal("My AI", pkg.Name)

	// The name of the package is used for the archive
	data, exists := store.archives["ai/41424344/"+aiMD5(main2)]
	require.True(t, exists)
	assert.Contains(untar(t, data), "My_AI-2.0/main.nut")
}

func Test_Publish_Heightmap(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	idx, store := index.NewMemory(), new(storage)

	s := newSession(t)
	data := heightmapPNG(t)
	attach(t, s, "alps.png", data)
	attach(t, s, "license.txt", []byte("Custom license"))
	require.NoError(t, s.Update(&Update{
		Version: ptr("v1"),
		License: ptr(schema.LicenseCustom),
		Name:    ptr("The Alps"),
	}))
	pkg, err := s.Publish(ctx, validator(idx), publisher(idx, store))
	require.NoError(t, err)
	assert.Equal(schema.Heightmap, pkg.ContentType)
	assert.Equal("00000001", pkg.UniqueID)
	require.NotNil(t, pkg.Versions[0].Classification)

	md5sum := md5.Sum(data)
	archive, exists := store.archives["heightmap/00000001/"+hex.EncodeToString(md5sum[:])]
	require.True(t, exists)
	assert.Equal(map[string]string{
		"The_Alps-v1/alps.png":       string(data),
		"The_Alps-v1/alps.png.id":    "1",
		"The_Alps-v1/alps.png.title": "The Alps (v1)",
		"The_Alps-v1/license.txt":    "Custom license",
	}, untar(t, archive))
}

func Test_Publish_Errors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	idx, store := index.NewMemory(), new(storage)

	s := newSession(t)
	attach(t, s, "info.nut", []byte(infoNut))
	attach(t, s, "main.nut", []byte(mainNut))
	_, err := s.Publish(ctx, validator(idx), publisher(idx, store))
	assert.ErrorIs(err, httpresponse.ErrConflict)
	assert.Empty(store.archives)
	assert.Empty(idx.Packages())

	// The status reflects the failed validation
	assert.Equal(schema.StatusErrors, s.Status().Status)

	// A license without text fails before anything is stored
	require.NoError(t, s.Update(&Update{Version: ptr("1.0"), License: ptr(schema.LicenseGPLv3), Name: ptr("AI")}))
	_, err = s.Publish(ctx, validator(idx), publisher(idx, store))
	assert.ErrorIs(err, httpresponse.ErrInternalError)
	assert.Empty(store.archives)
	assert.Empty(idx.Packages())
}

// unindexed is an index which fails to store packages
type unindexed struct {
	*index.Memory
}

func (unindexed) Store(context.Context, schema.User, *schema.Package) error {
	return errors.New("index is read-only")
}

func Test_Publish_NotIndexed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	idx, store := index.NewMemory(), new(storage)

	s := newSession(t)
	aiPackage(t, s, mainNut)
	var buf bytes.Buffer
	p := publisher(idx, store)
	p.Index = unindexed{idx}
	p.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	_, err := s.Publish(ctx, validator(idx), p)
	assert.ErrorIs(err, httpresponse.ErrInternalError)
	assert.Empty(idx.Packages())

	// The archive is stored, and where it is stored is logged
	md5sum := aiMD5(mainNut)
	assert.Contains(store.archives, "ai/41424344/"+md5sum)
	assert.Contains(buf.String(), "archive stored but not indexed")
	assert.Contains(buf.String(), "content_type=ai")
	assert.Contains(buf.String(), "unique_id=41424344")
	assert.Contains(buf.String(), "md5sum="+md5sum)
}
