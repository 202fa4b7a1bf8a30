package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Option configures Client.
type Option func(*Config)

// Config holds S3-compatible storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	// MaxObjectBytes caps Get reads; zero means no cap.
	MaxObjectBytes int64
}

func WithEndpoint(endpoint string) Option { return func(c *Config) { c.Endpoint = endpoint } }

func WithCredentials(access, secret string) Option {
	return func(c *Config) {
		c.AccessKey = access
		c.SecretKey = secret
	}
}

func WithBucket(bucket string) Option { return func(c *Config) { c.Bucket = bucket } }

func WithSecure(secure bool) Option { return func(c *Config) { c.Secure = secure } }

func WithMaxObjectBytes(n int64) Option { return func(c *Config) { c.MaxObjectBytes = n } }

// Client reads whole objects from one bucket.
type Client struct {
	cli    *minio.Client
	bucket string
	max    int64
}

// New creates a client. It does not contact the server.
func New(opts ...Option) (*Client, error) {
	cfg := &Config{MaxObjectBytes: 64 << 20}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("objectstore: endpoint and bucket are required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Client{cli: cli, bucket: cfg.Bucket, max: cfg.MaxObjectBytes}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Get returns the object body. A missing object or bucket yields an error
// matching fs.ErrNotExist.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.cli.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(key, err)
	}
	defer obj.Close()

	var r io.Reader = obj
	if c.max > 0 {
		r = io.LimitReader(obj, c.max+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, mapErr(key, err)
	}
	if c.max > 0 && int64(len(data)) > c.max {
		return nil, fmt.Errorf("s3 object %s exceeds %d bytes", key, c.max)
	}
	return data, nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.cli.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket %s: %w", c.bucket, err)
	}
	if !ok {
		return fmt.Errorf("s3 bucket %s: %w", c.bucket, fs.ErrNotExist)
	}
	return nil
}

func mapErr(key string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("s3 object %s: %w", key, fs.ErrNotExist)
	}
	return fmt.Errorf("s3 get object %s: %w", key, err)
}

// IsNotFound reports whether err is an S3 missing key or bucket response.
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}
