package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"kcalify-backend/internal/models"
)

// PostgresStore persists meal history in Postgres (including the database
// behind a Supabase project). meal_history.user_id is a UUID column.
type PostgresStore struct {
	sqlMealStore
}

func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresStoreFromDB(db), nil
}

// NewPostgresStoreFromDB wraps an already opened lib/pq handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlMealStore{
		db: db,
		queries: mealQueries{
			insert: `
				INSERT INTO meal_history (id, user_id, food_identification, total_calories, image_url, nutrition_data, created_at)
				VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
				RETURNING id`,
			list: `
				SELECT ` + mealColumns + `
				FROM meal_history
				WHERE user_id = $1
				ORDER BY created_at DESC
				LIMIT $2`,
			get: `
				SELECT ` + mealColumns + `
				FROM meal_history
				WHERE id = $1 AND user_id = $2`,
		},
		encodeTime: func(t time.Time) any { return t.UTC() },
	}}
}

func (p *PostgresStore) InsertMeal(ctx context.Context, rec *models.MealRecord) (string, error) {
	if rec != nil {
		if _, err := uuid.Parse(rec.UserID); err != nil {
			return "", fmt.Errorf("failed to insert meal: user id %q is not a uuid", rec.UserID)
		}
	}
	return p.sqlMealStore.InsertMeal(ctx, rec)
}

func (p *PostgresStore) ListMeals(ctx context.Context, userID string, limit int) ([]models.MealRecord, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []models.MealRecord{}, nil
	}
	return p.sqlMealStore.ListMeals(ctx, userID, limit)
}

func (p *PostgresStore) GetMeal(ctx context.Context, userID, mealID string) (*models.MealRecord, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, models.ErrMealNotFound
	}
	if _, err := uuid.Parse(mealID); err != nil {
		return nil, models.ErrMealNotFound
	}
	return p.sqlMealStore.GetMeal(ctx, userID, mealID)
}
