// Package s3 implements blob.Store on Amazon S3 and S3-compatible services
// using aws-sdk-go.
package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/ypatankar/datalake/internal/blob"
)

// DefaultRegion is used when no region is configured. The public Sparkify
// input bucket lives there.
const DefaultRegion = "us-west-2"

// deleteBatch is the DeleteObjects request limit.
const deleteBatch = 1000

func init() {
	blob.Register("s3", func(_ context.Context, bucket string, creds blob.Credentials) (blob.Store, error) {
		return New(bucket, creds)
	})
}

// Store is a blob.Store bound to one bucket.
type Store struct {
	bucket   string
	client   s3iface.S3API
	uploader *s3manager.Uploader
}

// Config builds the aws.Config for creds. Static keys win over the default
// credential chain.
func Config(creds blob.Credentials) *aws.Config {
	region := creds.Region
	if region == "" {
		region = DefaultRegion
	}
	cfg := aws.NewConfig().WithRegion(region).WithS3ForcePathStyle(creds.ForcePathStyle)
	if creds.AccessKeyID != "" || creds.SecretAccessKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken))
	}
	if creds.Endpoint != "" {
		cfg = cfg.WithEndpoint(creds.Endpoint)
	}
	return cfg
}

// New opens a session for bucket.
func New(bucket string, creds blob.Credentials) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	sess, err := session.NewSession(Config(creds))
	if err != nil {
		return nil, errors.Wrap(err, "s3: new session")
	}
	client := s3.New(sess)
	return &Store{
		bucket:   bucket,
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}, nil
}

// List pages through ListObjectsV2.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "s3: list s3://%s/%s", s.bucket, prefix)
	}
	return keys, nil
}

// Open streams the object body.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.Wrapf(blob.ErrNotExist, "s3: get s3://%s/%s", s.bucket, key)
		}
		return nil, errors.Wrapf(err, "s3: get s3://%s/%s", s.bucket, key)
	}
	return out.Body, nil
}

// Put uploads r with the managed uploader (multipart for large bodies).
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return errors.Wrapf(err, "s3: put s3://%s/%s", s.bucket, key)
	}
	return nil
}

// DeletePrefix lists prefix and removes the keys in DeleteObjects batches.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(keys); start += deleteBatch {
		end := start + deleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, errors.Wrapf(err, "s3: delete under s3://%s/%s", s.bucket, prefix)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return deleted, errors.Errorf("s3: delete s3://%s/%s: %s: %s (%d failed)",
				s.bucket, aws.StringValue(e.Key), aws.StringValue(e.Code), aws.StringValue(e.Message), len(out.Errors))
		}
		deleted += len(ids)
	}
	return deleted, nil
}

// Close is a no-op; the SDK keeps no per-store resources.
func (s *Store) Close() error { return nil }

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
