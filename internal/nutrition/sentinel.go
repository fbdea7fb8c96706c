package nutrition

import (
	"strings"

	"kcalify-backend/internal/models"
)

const (
	sentinelPrefix = "Error: "

	// InvalidResponseLabel marks a reply the normalizer could not recover.
	InvalidResponseLabel = sentinelPrefix + "AI response invalid"
	// TimeoutLabel marks an AI call that exceeded its deadline.
	TimeoutLabel = sentinelPrefix + "AI request timed out"

	sentinelDisclaimer = "No nutritional estimate is available for this image. Please try again."
	causeLimit         = 20
)

// Sentinel returns a fully-shaped result that signals failure in-band.
// All numeric fields are zero.
func Sentinel(label string) models.NutritionResult {
	if !strings.HasPrefix(label, sentinelPrefix) {
		label = sentinelPrefix + label
	}
	return models.NutritionResult{
		FoodIdentification: label,
		PortionEstimate:    "Unknown",
		Disclaimer:         sentinelDisclaimer,
	}
}

// AIErrorLabel describes an upstream AI failure using the first characters
// of its message.
func AIErrorLabel(cause error) string {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	runes := []rune(msg)
	if len(runes) > causeLimit {
		msg = string(runes[:causeLimit]) + "..."
	}
	return sentinelPrefix + "AI service unavailable (" + msg + ")"
}
