package logstore

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// S3Config says where to keep logs in an S3-compatible store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
	Insecure  bool // plain HTTP
}

func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("log store endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("log store bucket is required")
	}
	return nil
}

// S3Store uploads logs as objects in a bucket.
type S3Store struct {
	client *minio.Client
	config S3Config
}

// NewS3Store returns a store for the bucket in the config. Without
// static keys, credentials are taken from the environment or the
// instance role.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.IAM{},
	})
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     creds,
		Secure:    !cfg.Insecure,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating S3 client")
	}
	return &S3Store{client: client, config: cfg}, nil
}

// EnsureBucket creates the bucket if it isn't there.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return errors.Wrapf(err, "checking bucket %s", s.config.Bucket)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.config.Bucket, minio.MakeBucketOptions{Region: s.config.Region})
	if err != nil {
		// someone else may have got there first
		if exists, existsErr := s.client.BucketExists(ctx, s.config.Bucket); existsErr == nil && exists {
			return nil
		}
		return errors.Wrapf(err, "creating bucket %s", s.config.Bucket)
	}
	return nil
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte) (string, error) {
	object := s.objectName(key)
	_, err := s.client.PutObject(ctx, s.config.Bucket, object, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", errors.Wrapf(err, "uploading log %s", object)
	}
	return "s3://" + s.config.Bucket + "/" + object, nil
}

func (s *S3Store) objectName(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return s.config.Prefix + "/" + key
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
