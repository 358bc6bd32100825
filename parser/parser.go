package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/catalog-scraper/models"
)

// ValidateItem ensures an extracted record is fit for export.
func ValidateItem(item *models.Item) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if strings.TrimSpace(item.URL) == "" {
		return fmt.Errorf("item missing url for %q", item.Title)
	}
	if strings.TrimSpace(item.Rating) == "" {
		return fmt.Errorf("item missing rating for %s", item.URL)
	}
	return nil
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(text)
}

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "Zero":
		return 0
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}
