package models

type ScanResponse struct {
	MealID             string             `json:"meal_id,omitempty"`
	FoodIdentification string             `json:"food_identification"`
	PortionEstimate    string             `json:"portion_estimate"`
	NutritionalSummary NutritionalSummary `json:"nutritional_summary"`
	Disclaimer         string             `json:"disclaimer"`
	TotalCalories      int                `json:"total_calories"`
	Confidence         float64            `json:"confidence"`
	ImageURL           string             `json:"image_url,omitempty"`
	Persisted          bool               `json:"persisted"`
	Degraded           bool               `json:"degraded"`
	Message            string             `json:"message"`
	Steps              []StepReport       `json:"steps,omitempty"`
}

// StepReport is the public view of one orchestrator step.
type StepReport struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type MealListResponse struct {
	Meals []MealRecord `json:"meals"`
	Count int          `json:"count"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
