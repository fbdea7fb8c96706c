package supabase_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kcalify-backend/internal/models"
	"kcalify-backend/internal/supabase"
)

const restURL = `=~^https://project\.supabase\.co/rest/v1/meal_history`

func newRestStore(t *testing.T) *supabase.MealRestStore {
	t.Helper()
	client, err := supabase.NewClient(testSupabaseURL, "service-key")
	require.NoError(t, err)
	return supabase.NewMealRestStore(client, "")
}

func TestNewClient_RequiresURLAndKey(t *testing.T) {
	_, err := supabase.NewClient("", "key")
	assert.Error(t, err)
}

func TestMealRestStore_InsertMeal(t *testing.T) {
	setupHTTPMock(t)

	var body map[string]any
	var prefer, apiKey string
	httpmock.RegisterResponder("POST", restURL,
		func(req *http.Request) (*http.Response, error) {
			prefer = req.Header.Get("Prefer")
			apiKey = req.Header.Get("apikey")
			raw, _ := io.ReadAll(req.Body)
			_ = json.Unmarshal(raw, &body)
			return httpmock.NewStringResponse(http.StatusCreated, "["+string(raw)+"]"), nil
		})

	store := newRestStore(t)
	rec := models.NewMealRecord(uuid.New().String(), uuid.New().String(), "", models.NutritionResult{
		FoodIdentification: "Apple",
		NutritionalSummary: models.NutritionalSummary{Calories: 95},
	}, time.Now())

	id, err := store.InsertMeal(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, id)
	assert.Contains(t, prefer, "return=representation")
	assert.Equal(t, "service-key", apiKey)
	assert.Equal(t, "Apple", body["food_identification"])
	assert.EqualValues(t, 95, body["total_calories"])
	assert.Nil(t, body["image_url"])
	assert.IsType(t, map[string]any{}, body["nutrition_data"])
}

func TestMealRestStore_InsertMealError(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("POST", restURL,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"code":"22P02","message":"invalid input syntax for type uuid: \"guest_user\""}`))

	store := newRestStore(t)
	rec := models.NewMealRecord(uuid.New().String(), "guest_user", "", models.NutritionResult{FoodIdentification: "Apple"}, time.Now())

	_, err := store.InsertMeal(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "22P02")
}

func TestMealRestStore_ListMeals(t *testing.T) {
	setupHTTPMock(t)

	var query string
	httpmock.RegisterResponder("GET", restURL,
		func(req *http.Request) (*http.Response, error) {
			query = req.URL.RawQuery
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"id":"b6f4f7d2-8d3e-4b43-9d55-0f3a1c1f8a01","user_id":"u1","food_identification":"Soup","total_calories":150,
				 "image_url":"https://cdn/x.jpg","nutrition_data":{"food_identification":"Soup","nutritional_summary":{"calories":150}},
				 "created_at":"2026-03-01T12:00:00Z"},
				{"id":"b6f4f7d2-8d3e-4b43-9d55-0f3a1c1f8a02","user_id":"u1","food_identification":"Bread","total_calories":80,
				 "image_url":null,"nutrition_data":{"food_identification":"Bread"},"created_at":"2026-03-01T08:00:00Z"}
			]`), nil
		})

	meals, err := newRestStore(t).ListMeals(context.Background(), "u1", 500)
	require.NoError(t, err)
	require.Len(t, meals, 2)

	assert.Equal(t, "Soup", meals[0].FoodIdentification)
	assert.Equal(t, "https://cdn/x.jpg", meals[0].ImageURL)
	assert.Equal(t, 150, meals[0].NutritionData.NutritionalSummary.Calories)
	assert.Empty(t, meals[1].ImageURL)

	assert.Contains(t, query, "user_id=eq.u1")
	assert.Contains(t, query, "limit=100")
	assert.Contains(t, query, "order=created_at.desc")
}

func TestMealRestStore_GetMeal(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", restURL, httpmock.NewStringResponder(http.StatusOK, `[]`))

	store := newRestStore(t)
	_, err := store.GetMeal(context.Background(), "u1", uuid.New().String())
	assert.ErrorIs(t, err, models.ErrMealNotFound)

	_, err = store.GetMeal(context.Background(), "u1", "not-a-uuid")
	assert.ErrorIs(t, err, models.ErrMealNotFound)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
