package manager

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	// Packages
	bananas "github.com/OpenTTD/bananas-api"
	backend "github.com/OpenTTD/bananas-api/pkg/backend"
	classify "github.com/OpenTTD/bananas-api/pkg/classify"
	clock "github.com/OpenTTD/bananas-api/pkg/clock"
	config "github.com/OpenTTD/bananas-api/pkg/config"
	reader "github.com/OpenTTD/bananas-api/pkg/reader"
	session "github.com/OpenTTD/bananas-api/pkg/session"
	metric "go.opentelemetry.io/otel/metric"
	noop "go.opentelemetry.io/otel/metric/noop"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for the session manager
type Opt func(*opts) error

type opts struct {
	tracer     trace.Tracer
	meter      metric.Meter
	logger     *slog.Logger
	clock      clock.Clock
	timeout    time.Duration
	dir        string
	workers    int
	maxPixels  int
	maxSize    int64
	classifier *classify.Classifier
	storage    bananas.Storage
	index      bananas.Index
	licenses   fs.FS
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithTracer sets the tracer used for tracing operations
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithMeter sets the meter for the decode and publish counters
func WithMeter(meter metric.Meter) Opt {
	return func(o *opts) error {
		if meter == nil {
			return errors.New("meter is nil")
		}
		o.meter = meter
		return nil
	}
}

// WithLogger sets the logger for session events
func WithLogger(logger *slog.Logger) Opt {
	return func(o *opts) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		o.logger = logger
		return nil
	}
}

// WithClock sets the clock for timeouts and upload dates
func WithClock(c clock.Clock) Opt {
	return func(o *opts) error {
		if c == nil {
			return errors.New("clock is nil")
		}
		o.clock = c
		return nil
	}
}

// WithTimeout sets how long a session may be idle
func WithTimeout(timeout time.Duration) Opt {
	return func(o *opts) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		o.timeout = timeout
		return nil
	}
}

// WithDirectory sets where the files of each session are kept
func WithDirectory(dir string) Opt {
	return func(o *opts) error {
		if dir == "" {
			return errors.New("directory is empty")
		}
		o.dir = dir
		return nil
	}
}

// WithWorkers sets the number of files decoded in parallel
func WithWorkers(n int) Opt {
	return func(o *opts) error {
		if n <= 0 {
			return errors.New("workers must be positive")
		}
		o.workers = n
		return nil
	}
}

// WithMaxPixels sets the largest heightmap which is decoded
func WithMaxPixels(n int) Opt {
	return func(o *opts) error {
		if n <= 0 {
			return errors.New("max pixels must be positive")
		}
		o.maxPixels = n
		return nil
	}
}

// WithMaxFileSize sets the largest file extracted from an archive
func WithMaxFileSize(n int64) Opt {
	return func(o *opts) error {
		if n <= 0 {
			return errors.New("max file size must be positive")
		}
		o.maxSize = n
		return nil
	}
}

// WithThresholds sets the thresholds for classifying packages
func WithThresholds(t classify.Thresholds) Opt {
	return func(o *opts) error {
		c, err := classify.New(classify.WithThresholds(t))
		if err != nil {
			return err
		}
		o.classifier = c
		return nil
	}
}

// WithStorage sets where published archives are stored
func WithStorage(storage bananas.Storage) Opt {
	return func(o *opts) error {
		o.storage = storage
		return nil
	}
}

// WithBackend stores published archives in a bucket (mem://, file://, s3://)
func WithBackend(ctx context.Context, url string, backendOpts ...backend.Opt) Opt {
	return func(o *opts) error {
		b, err := backend.New(ctx, url, backendOpts...)
		if err != nil {
			return err
		}
		o.storage = b
		return nil
	}
}

// WithIndex sets the index of published packages
func WithIndex(index bananas.Index) Opt {
	return func(o *opts) error {
		o.index = index
		return nil
	}
}

// WithLicenses sets the license texts added to published archives, as
// files named "{license}.txt"
func WithLicenses(licenses fs.FS) Opt {
	return func(o *opts) error {
		o.licenses = licenses
		return nil
	}
}

// WithConfig applies the settings of a configuration file
func WithConfig(c *config.Config) Opt {
	return func(o *opts) error {
		if err := c.Validate(); err != nil {
			return err
		}
		o.timeout = c.Timeout
		o.workers = c.Workers
		o.maxPixels = c.MaxPixels
		o.maxSize = c.MaxFileSize
		if c.Directory != "" {
			o.dir = c.Directory
		}
		return WithThresholds(c.Classify)(o)
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Set defaults
	o := opts{
		meter:     noop.NewMeterProvider().Meter(""),
		logger:    slog.Default(),
		clock:     clock.Real(),
		timeout:   config.DefaultTimeout,
		dir:       filepath.Join(os.TempDir(), "bananas"),
		workers:   runtime.NumCPU(),
		maxPixels: reader.DefaultMaxPixels,
		maxSize:   session.DefaultMaxFileSize,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}
	if o.classifier == nil {
		if c, err := classify.New(); err != nil {
			return opts{}, err
		} else {
			o.classifier = c
		}
	}
	if o.storage == nil {
		return opts{}, errors.New("no storage set")
	}
	if o.index == nil {
		return opts{}, errors.New("no index set")
	}

	// Return success
	return o, nil
}
