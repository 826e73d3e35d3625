package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/intellinote/intellinote/internal/domain"
)

// S3StoreConfig holds configuration for S3Store
type S3StoreConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool

	// SpoolDir is a local directory for materialized copies. Parsers need a
	// real file path, so remote objects are downloaded here on demand.
	SpoolDir string
}

// S3Store is a content-addressed blob store backed by S3-compatible storage
// (e.g., RustFS or MinIO). Objects are keyed by sharded digest, mirroring
// FileStore's layout, with a local spool for read access.
type S3Store struct {
	client *s3.Client
	bucket string
	spool  *FileStore
}

// NewS3Store creates a new S3Store with the given configuration
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	// Create custom resolver for S3-compatible endpoints
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for S3-compatible services
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	spool, err := NewFileStore(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		spool:  spool,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Put spools r locally, then uploads the object unless the remote already
// has it.
func (s *S3Store) Put(ctx context.Context, r io.Reader) (*PutResult, error) {
	res, err := s.spool.Put(ctx, r)
	if err != nil {
		return nil, err
	}

	key := shardPath(res.Digest)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err == nil {
		res.Existed = true
		return res, nil
	}

	f, err := os.Open(filepath.Join(s.spool.root, key))
	if err != nil {
		return nil, fmt.Errorf("failed to open spooled content: %w", err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(res.Size),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return res, nil
}

// Locate returns a local path for the object, downloading it into the spool
// if it is not already materialized.
func (s *S3Store) Locate(ctx context.Context, digest string) (string, error) {
	if path, err := s.spool.Locate(ctx, digest); err == nil {
		return path, nil
	}

	key := shardPath(digest)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", domain.ErrBlobNotFound
	}
	defer out.Body.Close()

	if _, err := s.spool.Put(ctx, out.Body); err != nil {
		return "", err
	}
	return s.spool.Locate(ctx, digest)
}

// Delete removes the object remotely and from the spool.
func (s *S3Store) Delete(ctx context.Context, digest string) error {
	if !domain.IsValidDigest(digest) {
		return domain.ErrInvalidDigest
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(shardPath(digest)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return s.spool.Delete(ctx, digest)
}
