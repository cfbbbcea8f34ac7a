package plan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// objectStore abstracts GCS object access so tests can inject a stub.
type objectStore interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

type gcsObjects struct {
	client *storage.Client
}

func (g gcsObjects) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return g.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (g gcsObjects) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// GCSBackend keeps the plan as a single Cloud Storage object. The object only
// becomes visible once the writer is closed, so readers never see partial data.
type GCSBackend struct {
	objects objectStore
	bucket  string
	object  string
}

// NewGCSBackend uses Application Default Credentials.
func NewGCSBackend(ctx context.Context, bucket, object string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSBackend{objects: gcsObjects{client: client}, bucket: bucket, object: object}, nil
}

func (b *GCSBackend) String() string { return fmt.Sprintf("gs://%s/%s", b.bucket, b.object) }

func (b *GCSBackend) Read(ctx context.Context) ([]byte, error) {
	rc, err := b.objects.NewReader(ctx, b.bucket, b.object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *GCSBackend) Write(ctx context.Context, data []byte) error {
	w := b.objects.NewWriter(ctx, b.bucket, b.object)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", b, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalise %s: %w", b, err)
	}
	return nil
}
