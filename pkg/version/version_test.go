package version_test

import (
	"encoding/json"
	"runtime"
	"testing"

	// Packages
	version "github.com/OpenTTD/bananas-api/pkg/version"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func Test_Version(t *testing.T) {
	assert := assert.New(t)
	assert.NotEmpty(version.Version())

	version.GitTag = "v1.2.3"
	defer func() { version.GitTag = "" }()
	assert.Equal("v1.2.3", version.Version())

	var info version.Info
	require.NoError(t, json.Unmarshal(version.JSON("bananas"), &info))
	assert.Equal("bananas", info.Name)
	assert.Equal("v1.2.3", info.Version)
	assert.Equal("v1.2.3", info.Tag)
	assert.Equal(runtime.Version(), info.Compiler)
}
