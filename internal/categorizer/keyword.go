package categorizer

import (
	"strings"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"
)

type keywordRule struct {
	category models.Category
	terms    []string
}

// Rules are checked in order; the first rule with a matching term wins.
// The street light phrases come first so "street light" is not taken as a road issue.
var keywordRules = []keywordRule{
	{models.CategoryStreetLight, []string{"street light", "streetlight"}},
	{models.CategoryRoad, []string{"road", "pothole", "street"}},
	{models.CategoryWater, []string{"water", "leak"}},
	{models.CategoryGarbage, []string{"garbage", "waste", "trash"}},
	{models.CategoryElectricity, []string{"electricity", "power", "electric"}},
	{models.CategoryDrainage, []string{"drainage", "drain", "sewer"}},
	{models.CategoryStreetLight, []string{"light", "lamp", "lighting"}},
}

// CategorizeByKeyword returns the first category whose indicative terms occur in
// text, case-insensitively, or OTHER.
func CategorizeByKeyword(text string) models.Category {
	category, _ := matchKeyword(text)
	return category
}

func matchKeyword(text string) (models.Category, bool) {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				return rule.category, true
			}
		}
	}
	return models.CategoryOther, false
}

// KeywordPrediction wraps the keyword match in a Prediction.
func KeywordPrediction(text string) Prediction {
	category, matched := matchKeyword(text)
	confidence := 0.0
	if matched {
		confidence = config.KeywordMatchConfidence
	}
	return Prediction{
		Category:   category,
		Confidence: confidence,
		Ranked:     []Score{{Category: category, Probability: confidence}},
		Source:     SourceKeyword,
	}
}
