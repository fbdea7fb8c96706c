package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"kcalify-backend/internal/models"
)

const (
	DefaultHistoryLimit    = 20
	MaxHistoryLimit        = 100
	DefaultHistoryCacheTTL = 30 * time.Second
)

// MealReader reads meal history. Implementations scope every read to the
// given user.
type MealReader interface {
	ListMeals(ctx context.Context, userID string, limit int) ([]models.MealRecord, error)
	GetMeal(ctx context.Context, userID, mealID string) (*models.MealRecord, error)
}

// HistoryService serves meal history with a short-lived per-user cache.
type HistoryService struct {
	reader MealReader
	cache  *cache.Cache
}

// NewHistoryService returns a service backed by reader. A nil reader yields
// a service whose reads fail with ErrHistoryUnavailable. A ttl of zero or
// less disables caching.
func NewHistoryService(reader MealReader, ttl time.Duration) *HistoryService {
	h := &HistoryService{reader: reader}
	if ttl > 0 {
		h.cache = cache.New(ttl, 2*ttl)
	}
	return h
}

// ClampLimit applies the default and the ceiling for history page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func historyKey(userID string, limit int) string {
	return fmt.Sprintf("%s|%d", userID, limit)
}

// List returns up to limit meals for userID, newest first.
func (h *HistoryService) List(ctx context.Context, userID string, limit int) ([]models.MealRecord, error) {
	if h.reader == nil {
		return nil, ErrHistoryUnavailable
	}
	limit = ClampLimit(limit)
	key := historyKey(userID, limit)

	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			return slices.Clone(cached.([]models.MealRecord)), nil
		}
	}

	meals, err := h.reader.ListMeals(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if meals == nil {
		meals = []models.MealRecord{}
	}

	if h.cache != nil {
		// callers own the returned slice
		h.cache.SetDefault(key, slices.Clone(meals))
	}
	return meals, nil
}

// Get returns one meal owned by userID or models.ErrMealNotFound.
func (h *HistoryService) Get(ctx context.Context, userID, mealID string) (*models.MealRecord, error) {
	if h.reader == nil {
		return nil, ErrHistoryUnavailable
	}
	return h.reader.GetMeal(ctx, userID, mealID)
}

// Invalidate drops every cached page for userID.
func (h *HistoryService) Invalidate(userID string) {
	if h.cache == nil {
		return
	}
	prefix := userID + "|"
	for key := range h.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			h.cache.Delete(key)
		}
	}
}
