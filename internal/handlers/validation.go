package handlers

import (
	"errors"
	"strconv"
	"time"

	"parking/internal/money"
)

var (
	errInvalidAmount = errors.New("invalid amount")
	errInvalidTime   = errors.New("invalid time")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parseAmountMinor(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

// parseTime accepts RFC 3339 with or without fractional seconds.
func parseTime(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errInvalidTime
	}
	return parsed.UTC(), nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := parseTime(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// parsePage turns 1-based page/limit query values into limit and offset.
func parsePage(pageRaw, limitRaw string) (int, int) {
	limit := parseInt(limitRaw, defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := parseInt(pageRaw, 1)
	return limit, (page - 1) * limit
}
