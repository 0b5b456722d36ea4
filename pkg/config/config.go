package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	// Packages
	classify "github.com/OpenTTD/bananas-api/pkg/classify"
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	session "github.com/OpenTTD/bananas-api/pkg/session"
	types "github.com/mutablelogic/go-server/pkg/types"
	yaml "gopkg.in/yaml.v3"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Config holds the settings of the upload service
type Config struct {
	// Timeout is how long a session may be idle before it is removed
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// MaxPixels caps the size of heightmap images
	MaxPixels int `yaml:"max-pixels" json:"max-pixels"`

	// MaxFileSize caps the size of each file extracted from an archive
	MaxFileSize int64 `yaml:"max-file-size" json:"max-file-size"`

	// Directory is where uploaded and extracted files are kept. When
	// empty, the system temporary directory is used.
	Directory string `yaml:"directory,omitempty" json:"directory,omitempty"`

	// Workers is the number of files decoded in parallel
	Workers int `yaml:"workers" json:"workers"`

	Classify classify.Thresholds `yaml:"classify" json:"classify"`
	Storage  Storage             `yaml:"storage" json:"storage"`
}

// Storage is where published packages are written
type Storage struct {
	URL       string `yaml:"url" json:"url"`
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Anonymous bool   `yaml:"anonymous,omitempty" json:"anonymous,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultTimeout = 15 * time.Minute
	DefaultStorage = "file:///tmp/bananas"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Timeout:     DefaultTimeout,
		MaxPixels:   reader.DefaultMaxPixels,
		MaxFileSize: session.DefaultMaxFileSize,
		Workers:     runtime.NumCPU(),
		Classify:    classify.DefaultThresholds(),
		Storage:     Storage{URL: DefaultStorage},
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Validate returns an error if a setting is out of range
func (c *Config) Validate() error {
	var result error
	if c.Timeout <= 0 {
		result = errors.Join(result, fmt.Errorf("timeout must be positive, got %v", c.Timeout))
	}
	if c.MaxPixels <= 0 {
		result = errors.Join(result, fmt.Errorf("max-pixels must be positive, got %d", c.MaxPixels))
	}
	if c.MaxFileSize <= 0 {
		result = errors.Join(result, fmt.Errorf("max-file-size must be positive, got %d", c.MaxFileSize))
	}
	if c.Workers <= 0 {
		result = errors.Join(result, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Storage.URL == "" {
		result = errors.Join(result, errors.New("storage url is required"))
	}
	if err := c.Classify.Validate(); err != nil {
		result = errors.Join(result, err)
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (c Config) String() string {
	return types.Stringify(c)
}
