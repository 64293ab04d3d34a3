// Package validator checks request fields before they reach the services.
package validator

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ticketing/internal/money"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidPagination = errors.New("invalid pagination")
	ErrInvalidWait       = errors.New("invalid wait")
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
	MaxQuantity  = 20
	MaxWait      = 60 * time.Second
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ParseAmountMinor accepts a positive major-unit amount such as "1000" or
// "12.50" and returns it in minor units.
func ParseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

func ValidateQuantity(quantity int) error {
	if quantity <= 0 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

func ValidateID(id string) error {
	if !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// ParsePagination reads limit and offset query values. Empty values take
// the defaults and limit is capped at MaxLimit.
func ParsePagination(limitRaw, offsetRaw string) (int, int, error) {
	limit, offset := DefaultLimit, 0
	if strings.TrimSpace(limitRaw) != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			return 0, 0, ErrInvalidPagination
		}
		limit = min(parsed, MaxLimit)
	}
	if strings.TrimSpace(offsetRaw) != "" {
		parsed, err := strconv.Atoi(offsetRaw)
		if err != nil || parsed < 0 {
			return 0, 0, ErrInvalidPagination
		}
		offset = parsed
	}
	return limit, offset, nil
}

// ParseWait reads a long-poll duration such as "30s". Empty means no wait.
func ParseWait(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil || wait < 0 || wait > MaxWait {
		return 0, ErrInvalidWait
	}
	return wait, nil
}
