package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	// Packages
	backend "github.com/OpenTTD/bananas-api/pkg/backend"
	config "github.com/OpenTTD/bananas-api/pkg/config"
	index "github.com/OpenTTD/bananas-api/pkg/index"
	manager "github.com/OpenTTD/bananas-api/pkg/manager"
	kong "github.com/alecthomas/kong"
	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	credentials "github.com/aws/aws-sdk-go-v2/credentials"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	Config    string `env:"BANANAS_CONFIG" type:"path" help:"YAML configuration file"`
	Storage   string `env:"BANANAS_STORAGE" help:"Where published packages are stored (file://, mem:// or s3://)"`
	Endpoint  string `env:"BANANAS_S3_ENDPOINT" help:"Endpoint of an S3-compatible service"`
	AccessKey string `env:"BANANAS_S3_ACCESS_KEY" help:"S3 access key, instead of the default credentials"`
	SecretKey string `env:"BANANAS_S3_SECRET_KEY" help:"S3 secret key"`
	Index     string `env:"BANANAS_INDEX" type:"path" help:"JSON file with the index of published packages"`
	Licenses  string `env:"BANANAS_LICENSES" type:"existingdir" help:"Directory with the license texts, named {license}.txt"`
	Debug     bool   `help:"Enable debug output"`

	vars   kong.Vars `kong:"-"` // Variables for kong
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	config *config.Config
	index  *index.Memory
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func NewApp(app Globals, vars kong.Vars) (*Globals, error) {
	// Set the vars
	app.vars = vars

	// Log to stderr
	level := slog.LevelInfo
	if app.Debug {
		level = slog.LevelDebug
	}
	app.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Read the configuration
	if app.Config == "" {
		app.config = config.Default()
	} else if c, err := config.Load(app.Config); err != nil {
		return nil, err
	} else {
		app.config = c
	}
	if app.Storage != "" {
		app.config.Storage.URL = app.Storage
	}
	if app.Endpoint != "" {
		app.config.Storage.Endpoint = app.Endpoint
	}

	// Read the index
	app.index = index.NewMemory()
	if app.Index != "" {
		if f, err := os.Open(app.Index); errors.Is(err, fs.ErrNotExist) {
			app.logger.Debug("index does not exist yet", "path", app.Index)
		} else if err != nil {
			return nil, err
		} else {
			defer f.Close()
			if err := app.index.Load(f); err != nil {
				return nil, err
			}
		}
	}

	// This context is cancelled when the process receives a SIGINT or SIGTERM
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Return the app
	return &app, nil
}

func (app *Globals) Close() error {
	app.cancel()
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// METHODS

func (app *Globals) Context() context.Context {
	return app.ctx
}

// Manager returns a session manager using the configured storage and index
func (app *Globals) Manager() (*manager.Manager, error) {
	opts := []manager.Opt{
		manager.WithLogger(app.logger),
		manager.WithConfig(app.config),
		manager.WithIndex(app.index),
	}
	if app.Licenses != "" {
		opts = append(opts, manager.WithLicenses(os.DirFS(app.Licenses)))
	}

	// Storage
	backendOpts := []backend.Opt{
		backend.WithLogger(app.logger),
		backend.WithEndpoint(app.config.Storage.Endpoint),
	}
	if app.config.Storage.Anonymous {
		backendOpts = append(backendOpts, backend.WithAnonymous())
	}
	if u, err := url.Parse(app.config.Storage.URL); err != nil {
		return nil, err
	} else if u.Scheme == "file" {
		backendOpts = append(backendOpts, backend.WithCreateDir())
	} else if u.Scheme == "s3" {
		cfg, err := app.awsConfig()
		if err != nil {
			return nil, err
		}
		backendOpts = append(backendOpts, backend.WithAWSConfig(cfg))
	}
	opts = append(opts, manager.WithBackend(app.ctx, app.config.Storage.URL, backendOpts...))

	return manager.New(app.ctx, opts...)
}

// SaveIndex writes the index back to its file
func (app *Globals) SaveIndex() error {
	if app.Index == "" {
		app.logger.Warn("no index file, published packages are not kept")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(app.Index), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(app.Index), ".index-*")
	if err != nil {
		return err
	}
	if err := errors.Join(app.index.Save(f), f.Close()); err != nil {
		return errors.Join(err, os.Remove(f.Name()))
	}
	return os.Rename(f.Name(), app.Index)
}

func (app *Globals) awsConfig() (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if app.AccessKey != "" || app.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(app.AccessKey, app.SecretKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(app.ctx, opts...)
}
