package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	storage "github.com/supabase-community/storage-go"
	objstore "kcalify-backend/internal/storage"
)

type StorageClient struct {
	client *storage.Client
	bucket string

	// storage-go sets per-upload options on headers shared by the client
	mu sync.Mutex
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) (*StorageClient, error) {
	baseURL := strings.TrimRight(supabaseURL, "/")
	if baseURL == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("%w: supabase url and key are required", objstore.ErrStorageUnavailable)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: supabase storage bucket is empty", objstore.ErrStorageUnavailable)
	}

	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client: client,
		bucket: bucket,
	}, nil
}

// Store uploads a meal photo under {owner}/{uuid}.{ext} and returns its
// public URL. The bucket must be public for the URL to resolve.
func (s *StorageClient) Store(ctx context.Context, ownerID string, data []byte, contentType string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("%w: supabase storage client not initialized", objstore.ErrStorageUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", objstore.ErrUploadFailed, err)
	}

	storagePath := objstore.ObjectKey(ownerID, contentType)
	upsert := false

	s.mu.Lock()
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%w: failed to upload %s: %v", objstore.ErrUploadFailed, storagePath, err)
	}

	return s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return s.client.GetPublicUrl(s.bucket, storagePath).SignedURL
}
