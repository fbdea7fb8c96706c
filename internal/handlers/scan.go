package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"kcalify-backend/internal/logger"
	"kcalify-backend/internal/middleware"
	"kcalify-backend/internal/models"
	"kcalify-backend/internal/services"
)

// imageFields are the multipart field names accepted for the photo.
var imageFields = []string{"file", "image", "images", "photo", "photos"}

// multipartOverhead is allowed on top of the image limit for headers and
// other form fields.
const multipartOverhead = 1 << 20

// Scanner runs the scan pipeline.
type Scanner interface {
	Process(ctx context.Context, req models.ScanRequest) (*services.ScanOutcome, error)
}

// ErrorReporter receives critical failures.
type ErrorReporter interface {
	CaptureError(err error, component, route string)
}

type ScanHandler struct {
	scanner        Scanner
	reporter       ErrorReporter
	defaultUserID  string
	maxUploadBytes int64
	log            *slog.Logger
}

func NewScanHandler(scanner Scanner, reporter ErrorReporter, defaultUserID string, maxUploadBytes int64) *ScanHandler {
	return &ScanHandler{
		scanner:        scanner,
		reporter:       reporter,
		defaultUserID:  defaultUserID,
		maxUploadBytes: maxUploadBytes,
		log:            logger.Module("scan_handler"),
	}
}

// ScanMeal godoc
// @Summary     Scan a meal photo
// @Description Analyzes a food photo and returns its estimated nutrition.
// @Description Results for registered users are saved to their meal history.
// @Description If the AI service fails, a 200 is returned with degraded=true and an "Error: ..." food_identification.
// @Tags        scan
// @Accept      multipart/form-data
// @Produce     json
// @Security    Bearer
// @Param       user_id path string false "User ID"
// @Param       file formData file true "Meal photo (also accepted as image, images, photo or photos)"
// @Success     200 {object} models.ScanResponse "Analyzed, not saved"
// @Success     201 {object} models.ScanResponse "Analyzed and saved"
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Failure     429 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /api/v1/scan-meal/{user_id} [post]
// @Router      /predict/calories [post]
func (h *ScanHandler) ScanMeal(c *gin.Context) {
	userID := h.resolveUserID(c)

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Error:   "file too large",
				Message: fmt.Sprintf("uploads are limited to %d bytes", h.maxUploadBytes),
			})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid multipart form", Message: err.Error()})
		return
	}

	fileHeader := firstImage(form)
	if fileHeader == nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "no file uploaded",
			Message: "send the photo in one of the form fields: file, image, images, photo, photos",
		})
		return
	}

	data, err := h.readFile(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read file", Message: err.Error()})
		return
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid request",
			Message: fmt.Sprintf("invalid image: uploaded file exceeds %d bytes", h.maxUploadBytes),
		})
		return
	}

	outcome, err := h.scanner.Process(c.Request.Context(), models.ScanRequest{
		UserID:      userID,
		Image:       data,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Filename:    fileHeader.Filename,
	})
	if err != nil {
		if services.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
			return
		}
		h.log.Error("scan failed", "user_id", userID, "error", err)
		if h.reporter != nil {
			h.reporter.CaptureError(err, "scan", c.FullPath())
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "scan failed", Message: err.Error()})
		return
	}

	status := http.StatusOK
	if outcome.Persisted {
		status = http.StatusCreated
	}
	c.JSON(status, outcome.Response())
}

// resolveUserID picks the path value, then the query value, then the token
// subject, then the configured default.
func (h *ScanHandler) resolveUserID(c *gin.Context) string {
	if id := c.Param("user_id"); id != "" {
		return id
	}
	if id := c.Query("user_id"); id != "" {
		return id
	}
	if id, ok := middleware.AuthenticatedUserID(c); ok {
		return id
	}
	return h.defaultUserID
}

func firstImage(form *multipart.Form) *multipart.FileHeader {
	for _, field := range imageFields {
		if files := form.File[field]; len(files) > 0 {
			return files[0]
		}
	}
	return nil
}

func (h *ScanHandler) readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// one byte past the limit marks the file as oversized
	var r io.Reader = f
	if h.maxUploadBytes > 0 {
		r = io.LimitReader(f, h.maxUploadBytes+1)
	}
	return io.ReadAll(r)
}
