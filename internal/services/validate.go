package services

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"kcalify-backend/internal/models"
)

const octetStream = "application/octet-stream"

// ValidateScanRequest checks the upload and returns the content type to use
// for the AI call and the object store. A missing or generic declared type
// is replaced by the sniffed one.
func ValidateScanRequest(req models.ScanRequest, maxBytes int64) (string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", &ValidationError{Field: "user_id", Message: "user id is required"}
	}
	if len(req.Image) == 0 {
		return "", &ValidationError{Field: "image", Message: "uploaded file is empty"}
	}
	if maxBytes > 0 && int64(len(req.Image)) > maxBytes {
		return "", &ValidationError{Field: "image", Message: fmt.Sprintf("uploaded file exceeds %d bytes", maxBytes)}
	}

	detected := mimetype.Detect(req.Image)

	contentType := mediaType(req.ContentType)
	if contentType == "" || contentType == octetStream {
		contentType = mediaType(detected.String())
	}

	if !strings.HasPrefix(contentType, "image/") {
		return "", &ValidationError{Field: "content_type", Message: fmt.Sprintf("%q is not an image content type", contentType)}
	}
	if !looksLikeImage(detected) {
		return "", &ValidationError{Field: "content_type", Message: fmt.Sprintf("file content is %s, not an image", detected.String())}
	}

	return contentType, nil
}

// looksLikeImage accepts any image type and unknown binary content, which
// covers formats the sniffer does not know.
func looksLikeImage(m *mimetype.MIME) bool {
	if m.Is(octetStream) {
		return true
	}
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(mt)
}
