// Package s3x builds S3 clients from hoist configuration and parses
// s3:// URIs. It is shared by the S3 upload transport and the S3 history
// backend so both honor the same region and endpoint overrides.
package s3x

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config configures an S3 client.
type Config struct {
	// Region overrides the region from the default AWS config chain.
	Region string
	// Endpoint is a custom S3 endpoint (R2, MinIO, LocalStack).
	Endpoint string
	// UsePathStyle selects path-style addressing (required by most
	// S3-compatible providers).
	UsePathStyle bool
}

// NewClient loads the default AWS config chain and builds an S3 client.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
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
	return s3.NewFromConfig(awsConfig, s3Opts...), nil
}

// IsURI reports whether dest uses the s3:// scheme.
func IsURI(dest string) bool {
	return strings.HasPrefix(strings.ToLower(dest), "s3://")
}

// ParseURI splits "s3://bucket/key" into bucket and key.
// The key may be empty when requireKey is false.
func ParseURI(uri string, requireKey bool) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI %q: %w", uri, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("invalid S3 URI %q: scheme must be s3", uri)
	}
	if u.Host == "" {
		return "", "", errors.New("S3 bucket is required")
	}
	key = strings.TrimPrefix(u.Path, "/")
	if requireKey && key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: object key is required", uri)
	}
	return u.Host, key, nil
}
