package volume

import (
	"context"
	"net/url"
	"strings"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/gear6io/slate/server/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3 stores segment files as objects in one bucket.
type S3 struct {
	client *minio.Client
	bucket string
	logger zerolog.Logger
}

// NewS3 builds the client from the volume configuration. The endpoint may
// carry an http/https scheme, which then decides TLS use.
func NewS3(cfg config.VolumeConfig, logger zerolog.Logger) (*S3, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, errors.New(ErrSetup, "invalid s3 endpoint", err).AddContext("endpoint", cfg.Endpoint)
		}
		endpoint = parsed.Host
		secure = parsed.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, errors.New(ErrSetup, "failed to create s3 client", err).AddContext("endpoint", endpoint)
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "s3-volume").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Name implements Manager.
func (s *S3) Name() string { return "s3" }

// Exists implements Manager. The probe lists by prefix instead of
// heading the object: a HEAD response carries no body, so S3-compatible
// stores that mangle its headers break the stat path.
func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: path}) {
		if obj.Err != nil {
			return false, errors.New(ErrProbeFailed, "failed to list segment objects", obj.Err).AddContext("path", path)
		}
		if obj.Key == path {
			return true, nil
		}
	}
	return false, nil
}

// Remove implements Manager. S3 deletes are idempotent, so a missing
// object succeeds without a special case.
func (s *S3) Remove(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return errors.New(ErrRemove, "failed to remove segment object", err).AddContext("path", path)
	}
	s.logger.Debug().Str("path", path).Msg("Segment object removed")
	return nil
}
