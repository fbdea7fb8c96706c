package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"kcalify-backend/internal/models"
)

const (
	mealColumns = "id, user_id, food_identification, total_calories, image_url, nutrition_data, created_at"

	// DefaultListLimit and MaxListLimit bound history queries.
	DefaultListLimit = 20
	MaxListLimit     = 100

	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// mealQueries holds the dialect-specific statements for meal_history.
type mealQueries struct {
	insert string
	list   string
	get    string
}

// sqlMealStore implements insert and read access to meal_history over
// database/sql. Dialects differ only in placeholders and time encoding.
type sqlMealStore struct {
	db         *sql.DB
	queries    mealQueries
	encodeTime func(time.Time) any
}

func (s *sqlMealStore) InsertMeal(ctx context.Context, rec *models.MealRecord) (string, error) {
	if rec == nil {
		return "", errors.New("meal record is nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	nutritionJSON, err := json.Marshal(rec.NutritionData)
	if err != nil {
		return "", fmt.Errorf("failed to encode nutrition data: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, s.queries.insert,
		rec.ID, rec.UserID, rec.FoodIdentification, rec.TotalCalories,
		nullString(rec.ImageURL), string(nutritionJSON), s.encodeTime(rec.CreatedAt),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert meal: %w", err)
	}

	return id, nil
}

func (s *sqlMealStore) ListMeals(ctx context.Context, userID string, limit int) ([]models.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.list, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	meals := make([]models.MealRecord, 0)
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, meal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}

	return meals, nil
}

func (s *sqlMealStore) GetMeal(ctx context.Context, userID, mealID string) (*models.MealRecord, error) {
	meal, err := scanMeal(s.db.QueryRowContext(ctx, s.queries.get, mealID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrMealNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}
	return &meal, nil
}

func (s *sqlMealStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlMealStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (models.MealRecord, error) {
	var (
		meal      models.MealRecord
		imageURL  sql.NullString
		data      []byte
		createdAt scanTime
	)
	if err := row.Scan(&meal.ID, &meal.UserID, &meal.FoodIdentification, &meal.TotalCalories,
		&imageURL, &data, &createdAt); err != nil {
		return models.MealRecord{}, err
	}

	meal.ImageURL = imageURL.String
	meal.CreatedAt = createdAt.Time
	if err := json.Unmarshal(data, &meal.NutritionData); err != nil {
		return models.MealRecord{}, fmt.Errorf("invalid nutrition data for meal %s: %w", meal.ID, err)
	}

	return meal, nil
}

// scanTime accepts the timestamp representations returned by the supported
// drivers.
type scanTime struct {
	Time time.Time
}

func (t *scanTime) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		t.Time = x
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	case int64:
		t.Time = time.UnixMilli(x).UTC()
	case nil:
		t.Time = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", v)
	}
	return nil
}

func (t *scanTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparsable timestamp %q", s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
