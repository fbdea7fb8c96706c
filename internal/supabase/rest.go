package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	postgrest "github.com/supabase-community/postgrest-go"
	"kcalify-backend/internal/models"
)

const (
	DefaultMealTable = "meal_history"

	defaultListLimit = 20
	maxListLimit     = 100
)

// MealRestStore reads and writes meal history through the project's
// PostgREST API instead of a direct database connection.
type MealRestStore struct {
	client *Client
	table  string
}

func NewMealRestStore(client *Client, table string) *MealRestStore {
	if table == "" {
		table = DefaultMealTable
	}
	return &MealRestStore{client: client, table: table}
}

type mealRow struct {
	ID                 string                 `json:"id"`
	UserID             string                 `json:"user_id"`
	FoodIdentification string                 `json:"food_identification"`
	TotalCalories      int                    `json:"total_calories"`
	ImageURL           *string                `json:"image_url"`
	NutritionData      models.NutritionResult `json:"nutrition_data"`
	CreatedAt          time.Time              `json:"created_at"`
}

func toRow(rec *models.MealRecord) mealRow {
	row := mealRow{
		ID:                 rec.ID,
		UserID:             rec.UserID,
		FoodIdentification: rec.FoodIdentification,
		TotalCalories:      rec.TotalCalories,
		NutritionData:      rec.NutritionData,
		CreatedAt:          rec.CreatedAt.UTC(),
	}
	if rec.ImageURL != "" {
		url := rec.ImageURL
		row.ImageURL = &url
	}
	return row
}

func (r mealRow) record() models.MealRecord {
	rec := models.MealRecord{
		ID:                 r.ID,
		UserID:             r.UserID,
		FoodIdentification: r.FoodIdentification,
		TotalCalories:      r.TotalCalories,
		NutritionData:      r.NutritionData,
		CreatedAt:          r.CreatedAt,
	}
	if r.ImageURL != nil {
		rec.ImageURL = *r.ImageURL
	}
	return rec
}

func (s *MealRestStore) InsertMeal(ctx context.Context, rec *models.MealRecord) (string, error) {
	if s == nil || s.client == nil || s.client.Supabase == nil {
		return "", errors.New("supabase client not initialized")
	}
	if rec == nil {
		return "", errors.New("meal record is nil")
	}
	// postgrest-go has no context support; honour cancellation up front
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("failed to insert meal: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var inserted []mealRow
	_, err := s.client.Supabase.From(s.table).
		Insert(toRow(rec), false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return "", fmt.Errorf("failed to insert meal: %w", err)
	}
	if len(inserted) == 0 || inserted[0].ID == "" {
		return rec.ID, nil
	}

	return inserted[0].ID, nil
}

func (s *MealRestStore) ListMeals(ctx context.Context, userID string, limit int) ([]models.MealRecord, error) {
	if s == nil || s.client == nil || s.client.Supabase == nil {
		return nil, errors.New("supabase client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var rows []mealRow
	_, err := s.client.Supabase.From(s.table).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}

	meals := make([]models.MealRecord, 0, len(rows))
	for _, row := range rows {
		meals = append(meals, row.record())
	}
	return meals, nil
}

func (s *MealRestStore) GetMeal(ctx context.Context, userID, mealID string) (*models.MealRecord, error) {
	if s == nil || s.client == nil || s.client.Supabase == nil {
		return nil, errors.New("supabase client not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}
	if _, err := uuid.Parse(mealID); err != nil {
		return nil, models.ErrMealNotFound
	}

	var rows []mealRow
	_, err := s.client.Supabase.From(s.table).
		Select("*", "", false).
		Eq("id", mealID).
		Eq("user_id", userID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}
	if len(rows) == 0 {
		return nil, models.ErrMealNotFound
	}

	rec := rows[0].record()
	return &rec, nil
}

// Close is a no-op; the REST client holds no pooled resources.
func (s *MealRestStore) Close() error {
	return nil
}
