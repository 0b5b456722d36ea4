package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"syscall"

	// Packages
	bananas "github.com/OpenTTD/bananas-api"
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	aws "github.com/aws/aws-sdk-go-v2/aws"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	otelaws "go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	blob "gocloud.dev/blob"
	s3blob "gocloud.dev/blob/s3blob"
	gcerrors "gocloud.dev/gcerrors"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Blob stores published package archives in a bucket
type Blob struct {
	*opt
	bucket *blob.Bucket
	prefix string // key prefix for s3:// and mem:// buckets
}

var _ bananas.Storage = (*Blob)(nil)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	archiveExt         = ".tar.gz"
	archiveContentType = "application/gzip"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New opens a bucket for package archives. Supported URL schemes:
//   - "s3://bucket/prefix?region=eu-west-1"
//   - "file:///path/to/directory"
//   - "mem://"
//
// For s3:// the path is a prefix for every key. For file:// the path is
// the root directory of the bucket.
func New(ctx context.Context, u string, opts ...Opt) (*Blob, error) {
	self := new(Blob)

	// Set the options
	if url, err := url.Parse(u); err != nil {
		return nil, err
	} else if opt, err := apply(url, opts...); err != nil {
		return nil, err
	} else {
		self.opt = opt
	}

	switch self.url.Scheme {
	case "s3":
		if self.url.Host == "" {
			return nil, fmt.Errorf("s3 url %q has no bucket", u)
		}
		self.prefix = strings.Trim(self.url.Path, "/")
	case "mem":
		self.prefix = strings.Trim(self.url.Path, "/")
	case "file":
		if self.url.Path == "" {
			return nil, fmt.Errorf("file url %q has no path", u)
		}
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", self.url.Scheme)
	}

	// Open the bucket
	var bucket *blob.Bucket
	var err error
	if self.url.Scheme == "s3" && self.awsConfig != nil {
		bucket, err = s3blob.OpenBucket(ctx, self.s3Client(), self.url.Host, nil)
	} else if self.url.Scheme == "file" {
		openURL := &url.URL{Scheme: "file", Path: self.url.Path, RawQuery: self.url.RawQuery}
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	} else {
		openURL := *self.url
		openURL.Path = ""
		openURL.RawPath = ""
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	self.bucket = bucket

	// Return success
	return self, nil
}

// Close the bucket
func (b *Blob) Close() error {
	var result error
	if b.bucket != nil {
		result = errors.Join(result, b.bucket.Close())
		b.bucket = nil
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Key returns the key of a package archive within the bucket
func (b *Blob) Key(contentType schema.ContentType, uniqueID, md5sum string) string {
	key := string(contentType) + "/" + uniqueID + "/" + md5sum + archiveExt
	if b.prefix != "" {
		return b.prefix + "/" + key
	}
	return key
}

// URL returns the bucket URL, without any query parameters
func (b *Blob) URL() string {
	u := *b.url
	u.RawQuery = ""
	return u.String()
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// s3Client creates an S3 client from the AWS configuration, with the
// endpoint and credential options applied
func (b *Blob) s3Client() *s3.Client {
	cfg := b.awsConfig.Copy()
	if b.tracer != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.endpoint != "" {
			o.BaseEndpoint = aws.String(b.endpoint)
			o.UsePathStyle = true
		}
		if b.anonymous {
			o.Credentials = aws.AnonymousCredentials{}
		}
	})
}

// blobErr wraps a bucket error with the matching httpresponse error
func blobErr(err error, key string) error {
	if err == nil {
		return nil
	}
	// OS-level errors are lost once gcerrors wraps them
	if errors.Is(err, syscall.EISDIR) || errors.Is(err, syscall.EEXIST) {
		return httpresponse.ErrConflict.Withf("cannot overwrite directory with file: %q", key)
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return httpresponse.ErrNotFound.Withf("archive %q not found", key)
	case gcerrors.PermissionDenied:
		return httpresponse.ErrForbidden.Withf("permission denied for %q", key)
	case gcerrors.InvalidArgument:
		return httpresponse.ErrBadRequest.Withf("invalid argument for %q: %v", key, err)
	default:
		return httpresponse.ErrInternalError.Withf("storage operation failed: %v", err)
	}
}

func spanStorageName(op string) string {
	return schema.SchemaName + ".storage." + op
}
