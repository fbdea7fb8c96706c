package storage

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicBaseURL = "https://storage.googleapis.com"

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	// PublicACL grants AllUsers read on every uploaded object. Disable it
	// for buckets with uniform bucket-level access.
	PublicACL bool
	// ClientOptions are passed to the client after the credentials, for
	// example an emulator endpoint.
	ClientOptions []option.ClientOption
}

// GCSStore uploads meal photos to a Google Cloud Storage bucket.
type GCSStore struct {
	client    *gcs.Client
	bucket    string
	publicACL bool
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket name is empty", ErrStorageUnavailable)
	}

	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.ClientOptions...)

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gcs client: %v", ErrStorageUnavailable, err)
	}

	return &GCSStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicACL: cfg.PublicACL,
	}, nil
}

func (s *GCSStore) Store(ctx context.Context, ownerID string, data []byte, contentType string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("%w: gcs client not initialized", ErrStorageUnavailable)
	}

	key := ObjectKey(ownerID, contentType)
	obj := s.client.Bucket(s.bucket).Object(key)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("%w: failed to write %s: %v", ErrUploadFailed, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: failed to finalize %s: %v", ErrUploadFailed, key, err)
	}

	if s.publicACL {
		if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
			return "", fmt.Errorf("%w: failed to make %s public: %v", ErrUploadFailed, key, err)
		}
	}

	return PublicGCSURL(s.bucket, key), nil
}

func (s *GCSStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// PublicGCSURL is the stable public address of an object.
func PublicGCSURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", gcsPublicBaseURL, bucket, key)
}
