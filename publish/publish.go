// Package publish uploads rendered images to Google Cloud Storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Object is one file to upload.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

type Uploader struct {
	gcs         *storage.Client
	bucket      string
	prefix      string
	concurrency int64
}

type UploaderOpt func(*Uploader)

// WithPrefix places every object under prefix within the bucket.
func WithPrefix(prefix string) UploaderOpt {
	return func(u *Uploader) {
		u.prefix = prefix
	}
}

// WithConcurrency bounds the number of uploads in flight.
func WithConcurrency(n int64) UploaderOpt {
	return func(u *Uploader) {
		u.concurrency = n
	}
}

func New(gcs *storage.Client, bucket string, opts ...UploaderOpt) *Uploader {
	u := &Uploader{
		gcs:         gcs,
		bucket:      bucket,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.concurrency < 1 {
		u.concurrency = 1
	}
	return u
}

// ObjectPath returns the object name that name is uploaded to.
func (u *Uploader) ObjectPath(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload writes one object.  Existing objects are never overwritten; the
// upload fails instead.
func (u *Uploader) Upload(ctx context.Context, obj Object) error {
	tracer := otel.Tracer("aotrace/publish")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Uploader.Upload")
	defer span.End()

	if obj.Name == "" {
		err := errors.New("object has no name")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	objPath := u.ObjectPath(obj.Name)
	span.SetAttributes(
		attribute.String("bucket", u.bucket),
		attribute.String("object", objPath),
		attribute.Int64("bytes", int64(len(obj.Data))),
	)

	handle := u.gcs.Bucket(u.bucket).Object(objPath)

	// Create condition: object does not currently exist.
	w := handle.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = obj.ContentType

	// Disable chunking.  This will expose more transient server errors to
	// calling code, but significantly reduces memory usage.
	w.ChunkSize = 0

	if _, err := w.Write(obj.Data); err != nil {
		w.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("while writing gs://%s/%s: %w", u.bucket, objPath, err)
	}

	if err := w.Close(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("while closing object writer for gs://%s/%s: %w", u.bucket, objPath, err)
	}

	glog.Infof("Uploaded gs://%s/%s (%d bytes)", u.bucket, objPath, len(obj.Data))
	span.SetStatus(codes.Ok, "")
	return nil
}

// UploadAll uploads objs concurrently, stopping at the first failure.
func (u *Uploader) UploadAll(ctx context.Context, objs []Object) error {
	tracer := otel.Tracer("aotrace/publish")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "Uploader.UploadAll")
	defer span.End()

	// Use errgroup and semaphore to limit concurrency.
	eg, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(u.concurrency)

	for _, obj := range objs {
		obj := obj
		if err := sem.Acquire(ctx, 1); err != nil {
			// Prefer the upload failure that cancelled ctx, if any.
			if waitErr := eg.Wait(); waitErr != nil {
				return fmt.Errorf("while waiting for completion of errgroup: %w", waitErr)
			}
			return fmt.Errorf("while acquiring concurrency limiter semaphore: %w", err)
		}

		eg.Go(func() error {
			defer sem.Release(1)
			if err := u.Upload(ctx, obj); err != nil {
				return fmt.Errorf("while uploading %q: %w", obj.Name, err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("while waiting for completion of errgroup: %w", err)
	}

	return nil
}
