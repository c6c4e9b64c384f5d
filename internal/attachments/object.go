package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const blobContentType = "application/octet-stream"

var (
	errMissingEndpoint = errors.New("attachments: object store endpoint required")
	errMissingBucket   = errors.New("attachments: object store bucket required")
)

// ObjectStoreConfig configures an S3-compatible object store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Logger    *zap.Logger
}

// ObjectStore keeps blobs as objects named {kind}/{documentId}-{attachmentId}
// in a single bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewObjectStore builds a minio client. The bucket is expected to exist.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errMissingEndpoint
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errMissingBucket
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       strings.TrimSpace(cfg.Region),
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("attachments: create object store client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObjectStore{client: client, bucket: bucket, logger: logger}, nil
}

// WriteBlob uploads the payload as a single object, replacing any previous one.
func (s *ObjectStore) WriteBlob(ctx context.Context, key Key, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := s.client.PutObject(ctx, s.bucket, key.Path(), bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: blobContentType})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return nil
}

// ReadBlob downloads the object.
func (s *ObjectStore) ReadBlob(ctx context.Context, key Key) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key.Path(), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translateReadError(key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, s.translateReadError(key, err)
	}
	return data, nil
}

// DeleteBlob removes the object, ignoring any failure.
func (s *ObjectStore) DeleteBlob(ctx context.Context, key Key) {
	if err := s.client.RemoveObject(ctx, s.bucket, key.Path(), minio.RemoveObjectOptions{}); err != nil {
		s.logger.Debug("blob delete skipped", zap.String("object", key.Path()), zap.Error(err))
	}
}

func (s *ObjectStore) translateReadError(key Key, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, key.Path())
	}
	return fmt.Errorf("%w: %v", ErrIOFailure, err)
}
