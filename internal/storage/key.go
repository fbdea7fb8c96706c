// Package storage holds the object-storage contract shared by the upload
// backends: key layout, extension mapping and error kinds.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrStorageUnavailable means the adapter was never initialized or is
	// missing its bucket or credentials.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrUploadFailed wraps remote and I/O failures during upload.
	ErrUploadFailed = errors.New("upload failed")
)

const defaultExtension = "jpg"

// ImageStore uploads bytes and returns a public URL for them.
type ImageStore interface {
	Store(ctx context.Context, ownerID string, data []byte, contentType string) (string, error)
}

// ObjectKey returns a fresh key of the form {owner}/{uuid}.{ext}. Every call
// yields a new key, even for identical input.
func ObjectKey(ownerID, contentType string) string {
	return fmt.Sprintf("%s/%s.%s", sanitizeOwner(ownerID), uuid.New().String(), ExtensionFor(contentType))
}

// ExtensionFor maps an image content type to a file extension, defaulting
// to jpg.
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	mediaType = strings.ToLower(mediaType)

	_, subtype, found := strings.Cut(mediaType, "/")
	if !found || subtype == "" {
		return defaultExtension
	}
	subtype, _, _ = strings.Cut(subtype, "+")

	switch subtype {
	case "jpeg", "pjpeg", "jpg":
		return "jpg"
	case "x-png":
		return "png"
	}

	for _, r := range subtype {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '.') {
			return defaultExtension
		}
	}
	return subtype
}

func sanitizeOwner(ownerID string) string {
	owner := strings.TrimSpace(ownerID)
	owner = strings.NewReplacer("/", "_", "\\", "_").Replace(owner)
	if owner == "" || owner == "." || owner == ".." {
		return "anonymous"
	}
	return owner
}
