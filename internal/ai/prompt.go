package ai

// Prompt asks the model for a single JSON object. The reply is still run
// through the normalizer because compliance is not guaranteed.
const Prompt = `Analyze this food image. Identify the dish and estimate its nutritional content for the visible portion.
Return ONLY valid JSON. Do not add any text before or after the JSON.
Format:
{
    "food_identification": "Dish Name",
    "portion_estimate": "e.g. 1 plate (~300g)",
    "nutritional_summary": {
        "calories": 0,
        "protein_g": 0.0,
        "carbohydrates_g": 0.0,
        "fat_g": 0.0
    },
    "confidence": 0.9,
    "disclaimer": "A brief note that these values are estimates."
}`
