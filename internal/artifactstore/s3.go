package artifactstore

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 stores artifacts in an S3 bucket. Credentials come from the AWS default
// chain (env vars, shared config, IAM role).
type S3 struct {
	client *s3.Client
	cfg    Config
}

// NewS3 loads the AWS configuration and builds a client. The bucket must exist.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	cfg.Backend = BackendS3
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = awsConfig.Region
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return &S3{client: s3.NewFromConfig(awsConfig, s3Opts...), cfg: cfg}, nil
}

// Upload puts the file and returns its URL.
func (s *S3) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	name := objectKey(s.cfg.Prefix, key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(name),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", name, err)
	}
	return s.url(name), nil
}

func (s *S3) url(name string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return objectURL(s.cfg.PublicBaseURL, s.cfg.Bucket, name, false)
	case s.cfg.Endpoint != "":
		return objectURL(s.cfg.Endpoint, s.cfg.Bucket, name, true)
	default:
		return objectURL(fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.cfg.Bucket, s.cfg.Region), s.cfg.Bucket, name, false)
	}
}

var _ Store = (*S3)(nil)
