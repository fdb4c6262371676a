package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1500.00 BRL", formatBRL(decimal.NewFromInt(1500)))
	assert.Equal(t, "0.50 BRL", formatBRL(decimal.RequireFromString("0.5")))

	assert.Equal(t, "-", formatTime(nil))
	at := time.Date(2025, 3, 10, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2025-03-10 15:04:05", formatTime(&at))

	assert.Equal(t, "└  ", listPrefix(true))
	assert.Equal(t, "│  ", listPrefix(false))
}
