package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pario-ai/larder/pkg/models"
)

func TestPrintList(t *testing.T) {
	var buf bytes.Buffer
	list := models.RecipeList{
		Recipes: []models.RecipeSummary{{ID: 1, Name: "Classic Margherita Pizza"}, {ID: 2, Name: "Vegetarian Stir-Fry"}},
		Total:   1500,
	}
	if err := printList(&buf, list); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Vegetarian Stir-Fry") {
		t.Errorf("missing recipe name in %q", out)
	}
	if !strings.Contains(out, "Showing 2 of 1,500 recipes.") {
		t.Errorf("missing total line in %q", out)
	}
}

func TestPrintListEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printList(&buf, models.RecipeList{}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "No recipes found." {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPrintDetail(t *testing.T) {
	var buf bytes.Buffer
	printDetail(&buf, models.RecipeDetail{
		ID:                 7,
		Name:               "Chicken Biryani",
		Cuisine:            "Pakistani",
		Difficulty:         "Medium",
		CaloriesPerServing: 1200,
		Ingredients:        []string{"Basmati rice", "Chicken"},
		Instructions:       []string{"Soak the rice.", "Cook the chicken."},
	})
	out := buf.String()
	for _, want := range []string{"Chicken Biryani (#7)", "Pakistani, Medium", "1,200 per serving", "  - Chicken", "  2. Cook the chicken."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
