package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"kcalify-backend/internal/models"
	"kcalify-backend/internal/services"
)

// HistoryReader serves meal history.
type HistoryReader interface {
	List(ctx context.Context, userID string, limit int) ([]models.MealRecord, error)
	Get(ctx context.Context, userID, mealID string) (*models.MealRecord, error)
}

type MealsHandler struct {
	history HistoryReader
}

func NewMealsHandler(history HistoryReader) *MealsHandler {
	return &MealsHandler{history: history}
}

// ListMeals godoc
// @Summary     List meal history
// @Description Returns the user's saved meals, newest first
// @Tags        meals
// @Produce     json
// @Security    Bearer
// @Param       user_id path string true "User ID"
// @Param       limit query int false "Maximum number of meals (default 20, max 100)"
// @Success     200 {object} models.MealListResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /api/v1/meals/{user_id} [get]
func (h *MealsHandler) ListMeals(c *gin.Context) {
	userID := c.Param("user_id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid limit", Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	meals, err := h.history.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MealListResponse{Meals: meals, Count: len(meals)})
}

// GetMeal godoc
// @Summary     Get a meal
// @Description Returns one saved meal owned by the user
// @Tags        meals
// @Produce     json
// @Security    Bearer
// @Param       user_id path string true "User ID"
// @Param       meal_id path string true "Meal ID"
// @Success     200 {object} models.MealRecord
// @Failure     404 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /api/v1/meals/{user_id}/{meal_id} [get]
func (h *MealsHandler) GetMeal(c *gin.Context) {
	meal, err := h.history.Get(c.Request.Context(), c.Param("user_id"), c.Param("meal_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meal)
}

func (h *MealsHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrMealNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "meal not found"})
	case errors.Is(err, services.ErrHistoryUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "meal history not available"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load meal history", Message: err.Error()})
	}
}
