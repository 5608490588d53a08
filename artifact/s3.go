package artifact

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/BaSui01/renderflow/internal/tlsutil"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Config configures the optional S3 mirror.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket" env:"BUCKET"`
	Prefix       string `json:"prefix" yaml:"prefix" env:"PREFIX"`
	Region       string `json:"region" yaml:"region" env:"REGION"`
	Endpoint     string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// PutObjectAPI is the subset of the S3 client the mirror needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies artifacts into a bucket.
type S3Mirror struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
	logger *zap.Logger
}

// NewS3Mirror builds a mirror from the default AWS credential chain.
func NewS3Mirror(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Mirror, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(tlsutil.NewHTTPClient(0)),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Mirror{
		Client: client,
		Bucket: cfg.Bucket,
		Prefix: cfg.Prefix,
		logger: logger.With(zap.String("component", "s3_mirror")),
	}, nil
}

// Key returns the object key for a file name.
func (m *S3Mirror) Key(name string) string {
	if m.Prefix == "" {
		return name
	}
	return path.Join(strings.Trim(m.Prefix, "/"), name)
}

// Mirror uploads one artifact.
func (m *S3Mirror) Mirror(ctx context.Context, name, contentType string, data []byte, metadata map[string]string) error {
	key := m.Key(name)
	if m.logger != nil {
		m.logger.Debug("mirroring artifact", zap.String("bucket", m.Bucket), zap.String("key", key))
	}
	_, err := m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        bytes.NewReader(data),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.Bucket, key, err)
	}
	return nil
}
