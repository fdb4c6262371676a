// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pix-settlement-bridge/internal/database"
	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// NewDatabase opens a fresh SQLite database in a temp dir, closed when the test ends
func NewDatabase(t *testing.T) *database.Service {
	t.Helper()
	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(service.Close)
	return service
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// D parses a decimal literal, failing loudly on typos
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
