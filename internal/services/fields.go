package services

import (
	"strconv"
	"strings"

	"ticketing/internal/models"

	"github.com/shopspring/decimal"
)

// parseFieldValue converts a recommended value into what the pending event
// column for category holds.
func parseFieldValue(category models.RecommendationCategory, raw string) (any, error) {
	value := strings.TrimSpace(raw)
	switch category {
	case models.CategoryLocation, models.CategoryVenue, models.CategoryCategory:
		if value == "" || len(value) > 255 {
			return nil, ErrInvalidRecommendationValue
		}
		return value, nil
	case models.CategoryTickets:
		tickets, err := strconv.Atoi(value)
		if err != nil || tickets <= 0 {
			return nil, ErrInvalidRecommendationValue
		}
		return tickets, nil
	case models.CategoryPricing:
		price, err := decimal.NewFromString(value)
		if err != nil || price.IsNegative() || price.Exponent() < -2 {
			return nil, ErrInvalidRecommendationValue
		}
		return price, nil
	}
	return nil, ErrInvalidCategory
}
