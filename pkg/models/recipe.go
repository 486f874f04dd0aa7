package models

// RecipeSummary is one row of the recipe list. The list endpoint is queried
// with select=name, so only ID and Name are populated.
type RecipeSummary struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RecipeList is the upstream list payload.
type RecipeList struct {
	Recipes []RecipeSummary `json:"recipes"`
	Total   int             `json:"total"`
	Skip    int             `json:"skip"`
	Limit   int             `json:"limit"`
}

// RecipeDetail is the upstream payload for a single recipe.
type RecipeDetail struct {
	ID                 int      `json:"id"`
	Name               string   `json:"name"`
	Image              string   `json:"image"`
	Cuisine            string   `json:"cuisine"`
	CookTimeMinutes    int      `json:"cookTimeMinutes"`
	PrepTimeMinutes    int      `json:"prepTimeMinutes"`
	Servings           int      `json:"servings"`
	CaloriesPerServing int      `json:"caloriesPerServing"`
	Difficulty         string   `json:"difficulty"`
	Ingredients        []string `json:"ingredients"`
	Instructions       []string `json:"instructions"`
	Tags               []string `json:"tags,omitempty"`
	MealType           []string `json:"mealType,omitempty"`
	Rating             float64  `json:"rating,omitempty"`
	ReviewCount        int      `json:"reviewCount,omitempty"`
	UserID             int      `json:"userId,omitempty"`
}
