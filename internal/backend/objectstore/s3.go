package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"` // optional, for S3 compatible services
	AccessKey    string `yaml:"accessKey"`
	SecretKey    string `yaml:"secretKey"`
	UsePathStyle bool   `yaml:"usePathStyle"`
	ACL          string `yaml:"acl"` // e.g. public-read; empty keeps the bucket default
	MaxRetries   int    `yaml:"maxRetries"` // 0 uses the SDK default
}

type S3Store struct {
	client        *s3.S3
	config        S3Config
	publicBaseURL string
}

func NewS3Store(config S3Config, publicBaseURL string) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be set")
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(config.UsePathStyle),
	}
	// Zero keeps the SDK's default retryer.
	if config.MaxRetries > 0 {
		awsConfig.MaxRetries = aws.Int(config.MaxRetries)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}

	return &S3Store{
		client:        s3.New(sess),
		config:        config,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, data []byte, options UploadOptions) (string, error) {
	key, err := generateKey(options.Folder, options.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to generate object key: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if options.ContentType != "" {
		input.ContentType = aws.String(options.ContentType)
	}
	if s.config.ACL != "" {
		input.ACL = aws.String(s.config.ACL)
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	slog.Debug("uploaded object to s3", "bucket", s.config.Bucket, "key", key, "size_bytes", len(data))

	return s.objectURL(key), nil
}

func (s *S3Store) objectURL(key string) string {
	switch {
	case s.publicBaseURL != "":
		return joinURL(s.publicBaseURL, key)
	case s.config.Endpoint != "":
		return joinURL(joinURL(s.config.Endpoint, s.config.Bucket), key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.Bucket, s.config.Region, key)
	}
}
