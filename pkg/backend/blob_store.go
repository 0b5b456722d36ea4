package backend

import (
	"context"
	"errors"
	"io"
	"os"

	// Packages
	schema "github.com/OpenTTD/bananas-api/pkg/schema"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// MoveToStorage copies the archive at path into the bucket and removes
// the local file. A partially written archive is deleted from the bucket.
func (b *Blob) MoveToStorage(ctx context.Context, path string, contentType schema.ContentType, uniqueID, md5sum string) (err error) {
	key := b.Key(contentType, uniqueID, md5sum)

	// OTEL span
	child, endFunc := otel.StartSpan(b.tracer, ctx, spanStorageName("MoveToStorage"))
	defer func() { endFunc(err) }()

	f, err := os.Open(path)
	if err != nil {
		return httpresponse.ErrInternalError.Withf("%v", err)
	}
	defer f.Close()

	if w, err := b.bucket.NewWriter(child, key, &blob.WriterOptions{
		ContentType: archiveContentType,
	}); err != nil {
		return blobErr(err, key)
	} else if _, err := io.Copy(w, f); err != nil {
		err = errors.Join(err, w.Close())
		b.bucket.Delete(child, key)
		return blobErr(err, key)
	} else if err := w.Close(); err != nil {
		b.bucket.Delete(child, key)
		return blobErr(err, key)
	}

	// The archive is stored, so a leftover local file is only logged
	if err := os.Remove(path); err != nil {
		b.logger.WarnContext(ctx, "unable to remove archive", "path", path, "error", err)
	}
	b.logger.DebugContext(ctx, "stored archive", "key", key)

	// Return success
	return nil
}

// Open returns a reader for a stored archive
func (b *Blob) Open(ctx context.Context, contentType schema.ContentType, uniqueID, md5sum string) (io.ReadCloser, error) {
	key := b.Key(contentType, uniqueID, md5sum)
	r, err := b.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, blobErr(err, key)
	}
	return r, nil
}

// Exists returns true if the archive is stored
func (b *Blob) Exists(ctx context.Context, contentType schema.ContentType, uniqueID, md5sum string) (bool, error) {
	key := b.Key(contentType, uniqueID, md5sum)
	exists, err := b.bucket.Exists(ctx, key)
	if err != nil {
		return false, blobErr(err, key)
	}
	return exists, nil
}
