package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kcalify-backend/internal/database"
	"kcalify-backend/internal/models"
)

func newSQLiteStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	store, err := database.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleMeal(userID, food string, calories int, createdAt time.Time) *models.MealRecord {
	result := models.NutritionResult{
		FoodIdentification: food,
		PortionEstimate:    "1 plate",
		NutritionalSummary: models.NutritionalSummary{Calories: calories, ProteinG: 10, CarbohydrateG: 20.5, FatG: 3},
		Disclaimer:         models.DefaultDisclaimer,
	}
	return models.NewMealRecord(uuid.New().String(), userID, "", result, createdAt)
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	rec := sampleMeal("user-1", "Pasta", 620, time.Now().UTC())
	rec.ImageURL = "https://cdn.example.com/user-1/a.jpg"

	id, err := store.InsertMeal(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, id)

	got, err := store.GetMeal(ctx, "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, "Pasta", got.FoodIdentification)
	assert.Equal(t, 620, got.TotalCalories)
	assert.Equal(t, rec.ImageURL, got.ImageURL)
	assert.Equal(t, rec.NutritionData, got.NutritionData)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestSQLiteStore_GetScopedToUser(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	id, err := store.InsertMeal(ctx, sampleMeal("user-1", "Soup", 150, time.Now()))
	require.NoError(t, err)

	_, err = store.GetMeal(ctx, "user-2", id)
	assert.ErrorIs(t, err, models.ErrMealNotFound)

	_, err = store.GetMeal(ctx, "user-1", uuid.New().String())
	assert.ErrorIs(t, err, models.ErrMealNotFound)
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, food := range []string{"Oats", "Salad", "Steak"} {
		_, err := store.InsertMeal(ctx, sampleMeal("user-1", food, 100*(i+1), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := store.InsertMeal(ctx, sampleMeal("user-2", "Cake", 400, base))
	require.NoError(t, err)

	meals, err := store.ListMeals(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, meals, 3)
	assert.Equal(t, "Steak", meals[0].FoodIdentification)
	assert.Equal(t, "Oats", meals[2].FoodIdentification)

	limited, err := store.ListMeals(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := store.ListMeals(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_AssignsIDAndTimestamp(t *testing.T) {
	store := newSQLiteStore(t)

	rec := sampleMeal("user-1", "Tea", 2, time.Time{})
	rec.ID = ""

	id, err := store.InsertMeal(context.Background(), rec)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestSQLiteStore_RejectsDuplicateID(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	rec := sampleMeal("user-1", "Rice", 200, time.Now())
	_, err := store.InsertMeal(ctx, rec)
	require.NoError(t, err)

	_, err = store.InsertMeal(ctx, rec)
	assert.Error(t, err)
}

func TestMigrationNames(t *testing.T) {
	names, err := database.MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_create_meal_history.sql", names[0])
}
