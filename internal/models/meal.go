package models

import "time"

// DefaultDisclaimer is attached to results whose model reply carried none.
const DefaultDisclaimer = "Nutritional values are AI-generated estimates and may not be accurate. Consult a professional for dietary advice."

// NutritionalSummary is the macronutrient breakdown for one portion.
type NutritionalSummary struct {
	Calories      int     `json:"calories"`
	ProteinG      float64 `json:"protein_g"`
	CarbohydrateG float64 `json:"carbohydrates_g"`
	FatG          float64 `json:"fat_g"`
}

// NutritionResult is the canonical structured answer for a scanned meal.
type NutritionResult struct {
	FoodIdentification string             `json:"food_identification"`
	PortionEstimate    string             `json:"portion_estimate"`
	NutritionalSummary NutritionalSummary `json:"nutritional_summary"`
	Disclaimer         string             `json:"disclaimer"`
	Confidence         float64            `json:"confidence"`
}

// MealRecord is a single row of meal history. Records are written once and
// never updated.
type MealRecord struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	FoodIdentification string          `json:"food_identification"`
	TotalCalories      int             `json:"total_calories"`
	ImageURL           string          `json:"image_url,omitempty"`
	NutritionData      NutritionResult `json:"nutrition_data"`
	CreatedAt          time.Time       `json:"created_at"`
}

// NewMealRecord builds the record for a finished scan.
func NewMealRecord(id, userID, imageURL string, result NutritionResult, createdAt time.Time) *MealRecord {
	return &MealRecord{
		ID:                 id,
		UserID:             userID,
		FoodIdentification: result.FoodIdentification,
		TotalCalories:      result.NutritionalSummary.Calories,
		ImageURL:           imageURL,
		NutritionData:      result,
		CreatedAt:          createdAt,
	}
}
