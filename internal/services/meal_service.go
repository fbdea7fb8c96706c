package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"kcalify-backend/internal/logger"
	"kcalify-backend/internal/models"
	"kcalify-backend/internal/nutrition"
	"kcalify-backend/internal/storage"
)

const (
	DefaultAITimeout     = 30 * time.Second
	DefaultMaxImageBytes = 10 << 20
)

// DefaultGuestMarkers are matched case-insensitively against user ids.
var DefaultGuestMarkers = []string{"guest", "test_user"}

// Analyzer turns an image into the model's raw reply text.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (string, error)
}

// MealWriter persists finished scans.
type MealWriter interface {
	InsertMeal(ctx context.Context, rec *models.MealRecord) (string, error)
}

// Recorder receives scan metrics. A nil Recorder is allowed.
type Recorder interface {
	RecordScan(outcome string)
	RecordStepFailure(step string)
	RecordAIDuration(d time.Duration)
}

// HistoryInvalidator drops cached history after a new meal is stored.
type HistoryInvalidator interface {
	Invalidate(userID string)
}

// Scan outcomes reported to the Recorder.
const (
	OutcomePersisted = "persisted"
	OutcomeAnalyzed  = "analyzed"
	OutcomeDegraded  = "degraded"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

type Step string

const (
	StepValidate  Step = "validate"
	StepAnalyze   Step = "analyze"
	StepNormalize Step = "normalize"
	StepStore     Step = "store"
	StepPersist   Step = "persist"
)

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepResult is the outcome of one stage of a scan.
type StepResult struct {
	Step   Step
	Status StepStatus
	Err    error
	// Reason explains a skip.
	Reason string
}

// failurePolicy decides what a failed step does to the rest of the scan.
type failurePolicy int

const (
	// policyAbort stops the scan and returns the error to the caller.
	policyAbort failurePolicy = iota
	// policyDegrade stops the scan and answers with a sentinel result.
	policyDegrade
	// policyAbsorb logs the failure and carries on.
	policyAbsorb
)

var stepPolicies = map[Step]failurePolicy{
	StepValidate:  policyAbort,
	StepAnalyze:   policyDegrade,
	StepNormalize: policyDegrade,
	StepStore:     policyAbsorb,
	StepPersist:   policyAbsorb,
}

// ScanOutcome is everything the transport layer needs to answer a scan.
type ScanOutcome struct {
	MealID    string
	UserID    string
	Result    models.NutritionResult
	ImageURL  string
	Persisted bool
	Degraded  bool
	Steps     []StepResult
}

// Step returns the recorded result for step, if it ran.
func (o *ScanOutcome) Step(step Step) (StepResult, bool) {
	for _, s := range o.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

func (o *ScanOutcome) add(step Step, status StepStatus, err error, reason string) {
	o.Steps = append(o.Steps, StepResult{Step: step, Status: status, Err: err, Reason: reason})
}

// Message is a short human-readable summary of the outcome.
func (o *ScanOutcome) Message() string {
	switch {
	case o.Degraded:
		return "The meal could not be analyzed. Please try again with a clearer photo."
	case o.Persisted:
		return "Meal analyzed and saved to your history."
	}
	if s, ok := o.Step(StepPersist); ok {
		if s.Status == StepFailed {
			return "Meal analyzed, but it could not be saved to your history."
		}
		if s.Reason == skipGuest {
			return "Meal analyzed. History is not saved for guest users."
		}
	}
	return "Meal analyzed."
}

// Response converts the outcome into the public JSON shape.
func (o *ScanOutcome) Response() models.ScanResponse {
	steps := make([]models.StepReport, 0, len(o.Steps))
	for _, s := range o.Steps {
		report := models.StepReport{Step: string(s.Step), Status: string(s.Status)}
		switch {
		case s.Status == StepFailed:
			// upstream error text stays in the logs
			report.Error = failureReasons[s.Step]
		case s.Reason != "":
			report.Error = s.Reason
		}
		steps = append(steps, report)
	}

	return models.ScanResponse{
		MealID:             o.MealID,
		FoodIdentification: o.Result.FoodIdentification,
		PortionEstimate:    o.Result.PortionEstimate,
		NutritionalSummary: o.Result.NutritionalSummary,
		Disclaimer:         o.Result.Disclaimer,
		TotalCalories:      o.Result.NutritionalSummary.Calories,
		Confidence:         o.Result.Confidence,
		ImageURL:           o.ImageURL,
		Persisted:          o.Persisted,
		Degraded:           o.Degraded,
		Message:            o.Message(),
		Steps:              steps,
	}
}

// failureReasons are the public descriptions of failed steps.
var failureReasons = map[Step]string{
	StepValidate:  "invalid request",
	StepAnalyze:   "ai service unavailable",
	StepNormalize: "ai response invalid",
	StepStore:     "image upload failed",
	StepPersist:   "meal could not be saved",
}

const (
	skipGuest      = "guest user"
	skipNoStore    = "no meal store configured"
	skipNoImages   = "no image store configured"
	skipDegraded   = "analysis failed"
	skipStoreAbort = "image storage failed"
)

// MealServiceConfig tunes the scan pipeline.
type MealServiceConfig struct {
	AITimeout       time.Duration
	StorageRequired bool
	GuestMarkers    []string
	MaxImageBytes   int64
}

// MealServiceDeps are the collaborators of MealService. Only Analyzer and
// Normalizer are mandatory.
type MealServiceDeps struct {
	Analyzer   Analyzer
	Normalizer nutrition.Normalizer
	Images     storage.ImageStore
	Meals      MealWriter
	Recorder   Recorder
	History    HistoryInvalidator
}

// MealService runs one scan end to end: validate, analyze, normalize,
// store the image and persist the record.
type MealService struct {
	analyzer   Analyzer
	normalizer nutrition.Normalizer
	images     storage.ImageStore
	meals      MealWriter
	recorder   Recorder
	history    HistoryInvalidator
	cfg        MealServiceConfig
	log        *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewMealService(deps MealServiceDeps, cfg MealServiceConfig) (*MealService, error) {
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if deps.Normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if cfg.StorageRequired && deps.Images == nil {
		return nil, errors.New("image storage is required but no image store is configured")
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = DefaultAITimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	if cfg.GuestMarkers == nil {
		cfg.GuestMarkers = DefaultGuestMarkers
	}

	return &MealService{
		analyzer:   deps.Analyzer,
		normalizer: deps.Normalizer,
		images:     deps.Images,
		meals:      deps.Meals,
		recorder:   deps.Recorder,
		history:    deps.History,
		cfg:        cfg,
		log:        logger.Module("meal_service"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}, nil
}

func (s *MealService) policyFor(step Step) failurePolicy {
	if step == StepStore && s.cfg.StorageRequired {
		return policyAbort
	}
	return stepPolicies[step]
}

// IsGuest reports whether userID matches one of the guest markers.
func (s *MealService) IsGuest(userID string) bool {
	id := strings.ToLower(userID)
	for _, marker := range s.cfg.GuestMarkers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker != "" && strings.Contains(id, marker) {
			return true
		}
	}
	return false
}

// Process runs the scan pipeline. A *ValidationError is returned for bad
// input. When storage is mandatory and fails, the outcome is returned along
// with an error wrapping ErrStorageRequired. Every other failure is folded
// into the outcome.
func (s *MealService) Process(ctx context.Context, req models.ScanRequest) (*ScanOutcome, error) {
	outcome := &ScanOutcome{UserID: req.UserID}
	log := s.log.With("user_id", req.UserID)

	contentType, err := ValidateScanRequest(req, s.cfg.MaxImageBytes)
	if err != nil {
		s.fail(outcome, StepValidate, err)
		s.recordScan(OutcomeRejected)
		log.Info("scan rejected", "error", err)
		return outcome, err
	}
	outcome.add(StepValidate, StepOK, nil, "")

	raw, label, err := s.analyze(ctx, req.Image, contentType)
	if err != nil {
		log.Warn("ai analysis failed", "error", err)
		s.fail(outcome, StepAnalyze, err)
		return s.degrade(outcome, label), nil
	}
	outcome.add(StepAnalyze, StepOK, nil, "")

	result, err := s.normalizer.Normalize(raw)
	if err != nil {
		log.Warn("ai response could not be normalized", "error", err)
		s.fail(outcome, StepNormalize, fmt.Errorf("%w: %w", ErrUpstreamAI, err))
		return s.degrade(outcome, nutrition.InvalidResponseLabel), nil
	}
	outcome.add(StepNormalize, StepOK, nil, "")
	outcome.Result = result

	if err := s.store(ctx, outcome, req.Image, contentType); err != nil {
		s.recordScan(OutcomeFailed)
		outcome.add(StepPersist, StepSkipped, nil, skipStoreAbort)
		log.Error("image storage failed", "error", err)
		return outcome, err
	}

	s.persist(ctx, outcome)

	if outcome.Persisted {
		s.recordScan(OutcomePersisted)
	} else {
		s.recordScan(OutcomeAnalyzed)
	}
	log.Info("scan completed",
		"food", outcome.Result.FoodIdentification,
		"calories", outcome.Result.NutritionalSummary.Calories,
		"persisted", outcome.Persisted,
	)
	return outcome, nil
}

// analyze calls the model under the configured timeout. On failure it also
// returns the sentinel label describing the failure.
func (s *MealService) analyze(ctx context.Context, image []byte, contentType string) (string, string, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.AITimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.analyzer.Analyze(actx, image, contentType)
	if s.recorder != nil {
		s.recorder.RecordAIDuration(time.Since(start))
	}

	if err == nil && actx.Err() != nil {
		err = actx.Err()
	}
	if err == nil {
		return raw, "", nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		return "", nutrition.TimeoutLabel, fmt.Errorf("%w: %w", ErrUpstreamAI, err)
	}
	return "", nutrition.AIErrorLabel(rootCause(err)), fmt.Errorf("%w: %w", ErrUpstreamAI, err)
}

// degrade answers with the sentinel. Nothing is stored or persisted for a
// degraded scan.
func (s *MealService) degrade(outcome *ScanOutcome, label string) *ScanOutcome {
	for _, later := range []Step{StepAnalyze, StepNormalize, StepStore, StepPersist} {
		if _, ran := outcome.Step(later); !ran {
			outcome.add(later, StepSkipped, nil, skipDegraded)
		}
	}

	outcome.Result = nutrition.Sentinel(label)
	outcome.Degraded = true
	s.recordScan(OutcomeDegraded)
	return outcome
}

func (s *MealService) store(ctx context.Context, outcome *ScanOutcome, image []byte, contentType string) error {
	if s.images == nil {
		outcome.add(StepStore, StepSkipped, nil, skipNoImages)
		return nil
	}

	url, err := s.images.Store(ctx, outcome.UserID, image, contentType)
	if err != nil {
		if s.fail(outcome, StepStore, err) == policyAbort {
			return fmt.Errorf("%w: %w", ErrStorageRequired, err)
		}
		s.log.Warn("image storage failed, continuing without image url",
			"user_id", outcome.UserID, "error", err)
		return nil
	}

	outcome.ImageURL = url
	outcome.add(StepStore, StepOK, nil, "")
	return nil
}

func (s *MealService) persist(ctx context.Context, outcome *ScanOutcome) {
	switch {
	case s.IsGuest(outcome.UserID):
		outcome.add(StepPersist, StepSkipped, nil, skipGuest)
		return
	case s.meals == nil:
		outcome.add(StepPersist, StepSkipped, nil, skipNoStore)
		return
	}

	rec := models.NewMealRecord(s.newID(), outcome.UserID, outcome.ImageURL, outcome.Result, s.now())
	id, err := s.meals.InsertMeal(ctx, rec)
	if err != nil {
		s.fail(outcome, StepPersist, fmt.Errorf("%w: %w", ErrPersistence, err))
		s.log.Error("failed to persist meal", "user_id", outcome.UserID, "error", err)
		return
	}

	if id == "" {
		id = rec.ID
	}
	outcome.MealID = id
	outcome.Persisted = true
	outcome.add(StepPersist, StepOK, nil, "")

	if s.history != nil {
		s.history.Invalidate(outcome.UserID)
	}
}

// fail records a failed step and returns the policy that governs it.
func (s *MealService) fail(outcome *ScanOutcome, step Step, err error) failurePolicy {
	outcome.add(step, StepFailed, err, "")
	s.recordFailure(step)
	return s.policyFor(step)
}

func (s *MealService) recordScan(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordScan(outcome)
	}
}

func (s *MealService) recordFailure(step Step) {
	if s.recorder != nil {
		s.recorder.RecordStepFailure(string(step))
	}
}
