// Package nutrition turns free-text model replies into NutritionResult values.
package nutrition

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"kcalify-backend/internal/models"
)

// ErrMalformedResponse means no valid structured payload could be recovered
// from the model reply.
var ErrMalformedResponse = errors.New("malformed ai response")

// DefaultPortionEstimate is used when the reply carries no portion text.
const DefaultPortionEstimate = "Not specified"

// Normalizer converts raw model output into a NutritionResult.
type Normalizer interface {
	Normalize(raw string) (models.NutritionResult, error)
}

// JSONNormalizer extracts the outermost {...} block from the reply and maps
// it onto the result schema. It is a heuristic, not a grammar-aware repair:
// prose before the first '{' and after the last '}' is discarded.
type JSONNormalizer struct{}

func NewNormalizer() *JSONNormalizer {
	return &JSONNormalizer{}
}

var (
	fenceRe  = regexp.MustCompile("(?i)```(?:json)?")
	amountRe = regexp.MustCompile(`^\s*([+-]?(?:\d{1,3}(?:,\d{3})+(?:\.\d*)?|\d+(?:\.\d*)?|\.\d+))\s*([a-zA-Z%]*)\s*$`)
)

// Keys accepted for each field, in lookup order. Both the structured
// nutritional_summary shape and the flat food_name/calories shape are read.
var (
	foodKeys     = []string{"food_identification", "food_name", "name"}
	calorieKeys  = []string{"calories", "total_calories"}
	proteinKeys  = []string{"protein_g", "protein"}
	carbKeys     = []string{"carbohydrates_g", "carbs", "carbohydrates"}
	fatKeys      = []string{"fat_g", "fat"}
	portionKeys  = []string{"portion_estimate", "portion"}
	disclaimKeys = []string{"disclaimer"}
)

func (n *JSONNormalizer) Normalize(raw string) (models.NutritionResult, error) {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return models.NutritionResult{}, err
	}

	obj, err := decodeObject(payload)
	if err != nil {
		return models.NutritionResult{}, err
	}

	return mapResult(obj)
}

// ExtractJSON strips code fences and returns the text between the first '{'
// and the last '}'.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	return text[start : end+1], nil
}

func decodeObject(payload string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrMalformedResponse)
	}

	return obj, nil
}

func mapResult(obj map[string]any) (models.NutritionResult, error) {
	summary, _ := obj["nutritional_summary"].(map[string]any)

	food, ok := lookup(obj, nil, foodKeys)
	name, isString := food.(string)
	if !ok || !isString || strings.TrimSpace(name) == "" {
		return models.NutritionResult{}, fmt.Errorf("%w: missing food identification", ErrMalformedResponse)
	}

	calories, err := requiredAmount(obj, summary, "calories", calorieKeys)
	if err != nil {
		return models.NutritionResult{}, err
	}
	if calories > math.MaxInt32 {
		return models.NutritionResult{}, fmt.Errorf("%w: calories out of range", ErrMalformedResponse)
	}
	protein, err := requiredAmount(obj, summary, "protein", proteinKeys)
	if err != nil {
		return models.NutritionResult{}, err
	}
	carbs, err := requiredAmount(obj, summary, "carbohydrates", carbKeys)
	if err != nil {
		return models.NutritionResult{}, err
	}
	fat, err := requiredAmount(obj, summary, "fat", fatKeys)
	if err != nil {
		return models.NutritionResult{}, err
	}

	result := models.NutritionResult{
		FoodIdentification: strings.TrimSpace(name),
		PortionEstimate:    optionalText(obj, portionKeys, DefaultPortionEstimate),
		NutritionalSummary: models.NutritionalSummary{
			Calories:      int(math.Round(calories)),
			ProteinG:      protein,
			CarbohydrateG: carbs,
			FatG:          fat,
		},
		Disclaimer: optionalText(obj, disclaimKeys, models.DefaultDisclaimer),
	}

	// confidence is optional; an unusable value falls back to zero
	if v, ok := lookup(obj, summary, []string{"confidence"}); ok {
		if c, err := coerceAmount(v); err == nil {
			result.Confidence = c
		}
	}

	return result, nil
}

// lookup returns the first key present, checking the nested summary object
// before the top level.
func lookup(obj, summary map[string]any, keys []string) (any, bool) {
	for _, scope := range []map[string]any{summary, obj} {
		if scope == nil {
			continue
		}
		for _, key := range keys {
			if v, ok := scope[key]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

func requiredAmount(obj, summary map[string]any, field string, keys []string) (float64, error) {
	v, ok := lookup(obj, summary, keys)
	if !ok {
		return 0, fmt.Errorf("%w: missing required field %q", ErrMalformedResponse, field)
	}
	amount, err := coerceAmount(v)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", ErrMalformedResponse, field, err)
	}
	return amount, nil
}

// coerceAmount accepts JSON numbers and numeric strings with an optional unit
// suffix such as "12g", "250 kcal" or "1,200 kcal". The suffix is dropped, never converted.
func coerceAmount(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t.String())
		}
		f = parsed
	case float64:
		f = t
	case string:
		m := amountRe.FindStringSubmatch(t)
		if m == nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		// "1,200" groups thousands; "1,2" is rejected by amountRe
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	if f < 0 {
		return 0, fmt.Errorf("negative value %v", f)
	}
	return f, nil
}

func optionalText(obj map[string]any, keys []string, fallback string) string {
	v, ok := lookup(obj, nil, keys)
	if !ok {
		return fallback
	}
	s, isString := v.(string)
	if !isString || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}
