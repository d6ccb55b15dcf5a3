// Package gcs implements blob.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ypatankar/datalake/internal/blob"
)

func init() {
	blob.Register("gs", func(ctx context.Context, bucket string, creds blob.Credentials) (blob.Store, error) {
		return New(ctx, bucket, creds)
	})
}

// Store is a blob.Store bound to one bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// ClientOptions maps credentials onto client options. An endpoint override
// (for example a local emulator) disables authentication.
func ClientOptions(creds blob.Credentials) []option.ClientOption {
	var opts []option.ClientOption
	if creds.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(creds.GCSCredentialsFile))
	}
	if creds.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(creds.Endpoint), option.WithoutAuthentication())
	}
	return opts
}

// New creates a storage client for bucket.
func New(ctx context.Context, bucket string, creds blob.Credentials) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx, ClientOptions(creds)...)
	if err != nil {
		return nil, errors.Wrap(err, "gcs: new client")
	}
	return &Store{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

// List iterates the objects under prefix. GCS returns names in
// lexicographic order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "gcs: list gs://%s/%s", s.name, prefix)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Open returns a reader for key.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.Wrapf(blob.ErrNotExist, "gcs: read gs://%s/%s", s.name, key)
		}
		return nil, errors.Wrapf(err, "gcs: read gs://%s/%s", s.name, key)
	}
	return r, nil
}

// Put streams r into key. The object becomes visible when the writer is
// closed successfully.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return errors.Wrapf(err, "gcs: write gs://%s/%s", s.name, key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "gcs: close gs://%s/%s", s.name, key)
	}
	return nil
}

// DeletePrefix removes every object under prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := s.bucket.Object(k).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return i, errors.Wrapf(err, "gcs: delete gs://%s/%s", s.name, k)
		}
	}
	return len(keys), nil
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }
