// Package money converts between gateway minor units, decimal amounts and coins.
package money

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

var (
	// PlatformFeeRate is taken from every wallet top-up before coin conversion.
	PlatformFeeRate = decimal.RequireFromString("0.05")
	// CoinPrice is the amount, in major currency units, one coin costs.
	CoinPrice = decimal.NewFromInt(10)
)

// ParseMinor parses a positive major-unit string such as "1000" or "12.50"
// into minor units (12.50 -> 1250).
func ParseMinor(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "+") {
		return 0, ErrInvalidAmount
	}
	whole, frac, hasFrac := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasFrac && (frac == "" || !isDigits(frac))) {
		return 0, ErrInvalidAmount
	}
	if len(frac) > 2 {
		return 0, ErrTooManyDecimals
	}
	value, err := strconv.ParseInt(whole+(frac+"00")[:2], 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return value, nil
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FormatMinor(minor int64) string {
	return FromMinor(minor).StringFixed(2)
}

// TopUpSplit is how a paid top-up amount divides between the platform and the wallet.
type TopUpSplit struct {
	Amount decimal.Decimal
	Fee    decimal.Decimal
	Net    decimal.Decimal
	Coins  int64
}

// SplitTopUp charges PlatformFeeRate on amount and converts the remainder to
// whole coins, rounding down. The sub-coin remainder is not credited.
func SplitTopUp(amount decimal.Decimal) TopUpSplit {
	fee := amount.Mul(PlatformFeeRate).Round(2)
	net := amount.Sub(fee)
	coins := net.Div(CoinPrice).Floor().IntPart()
	if coins < 0 {
		coins = 0
	}
	return TopUpSplit{Amount: amount, Fee: fee, Net: net, Coins: coins}
}

// UnitPrice divides an order amount evenly across quantity tickets.
func UnitPrice(amount decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return amount.Div(decimal.NewFromInt(int64(quantity))).Round(2)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
