// Package storage uploads segmentation results to S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/soypat/watershed"
)

// Config locates a bucket on an S3-compatible endpoint such as MinIO.
type Config struct {
	// Endpoint is the service URL. Empty uses the AWS default for Region.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key.
	Prefix string
}

// ConfigFromEnv reads WATERSHED_S3_* variables. ok is false when no bucket is set.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Endpoint:  getEnv("WATERSHED_S3_ENDPOINT", ""),
		Region:    getEnv("WATERSHED_S3_REGION", "us-east-1"),
		AccessKey: getEnv("WATERSHED_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("WATERSHED_S3_SECRET_KEY", ""),
		Bucket:    getEnv("WATERSHED_S3_BUCKET", ""),
		Prefix:    getEnv("WATERSHED_S3_PREFIX", "watershed"),
	}
	return cfg, cfg.Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the fields required to reach the bucket.
func (c Config) Validate() error {
	switch {
	case c.Bucket == "":
		return fmt.Errorf("empty bucket: %w", watershed.ErrInvalidConfig)
	case c.Region == "":
		return fmt.Errorf("empty region: %w", watershed.ErrInvalidConfig)
	case (c.AccessKey == "") != (c.SecretKey == ""):
		return fmt.Errorf("access key and secret key must be set together: %w", watershed.ErrInvalidConfig)
	}
	return nil
}

// Key returns the object key for a local file name.
func (c Config) Key(name string) string {
	return path.Join(c.Prefix, filepath.Base(name))
}

// Uploader puts objects into one bucket.
type Uploader struct {
	cfg    Config
	client *s3.Client
}

// NewUploader loads AWS configuration for cfg. Static credentials are used
// when an access key is given; otherwise the default credential chain applies.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Uploader{cfg: cfg, client: client}, nil
}

// EnsureBucket creates the bucket if it cannot be found.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.cfg.Bucket)})
	if err == nil {
		return nil
	}
	_, err = u.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(u.cfg.Bucket)})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", u.cfg.Bucket, err)
	}
	watershed.Logger().Info("created bucket", "bucket", u.cfg.Bucket)
	return nil
}

// Upload stores body under the key for name and returns the key.
func (u *Uploader) Upload(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	key := u.cfg.Key(name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	watershed.Logger().Info("uploaded", "bucket", u.cfg.Bucket, "key", key)
	return key, nil
}

// UploadFile uploads the file at filename.
func (u *Uploader) UploadFile(ctx context.Context, filename, contentType string) (string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return u.Upload(ctx, filename, contentType, f)
}
