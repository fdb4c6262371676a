/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"pix-settlement-bridge/internal/models"
	"pix-settlement-bridge/internal/provider"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

type Reconciler interface {
	ReconcileOpen(ctx context.Context, minAge time.Duration, batch int) (*models.ReconcileResult, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (*models.SweepResult, error)
}

// Config contains configuration for Listener
type Config struct {
	Reconciler      Reconciler
	Sweeper         Sweeper
	PollingInterval time.Duration
	CleanupInterval time.Duration
	MinAge          time.Duration
	BatchSize       int
	// Output receives the console summaries; defaults to stdout.
	Output io.Writer
}

// Listener periodically reconciles open transactions with the provider and
// expires the ones that stayed open too long.
type Listener struct {
	reconciler      Reconciler
	sweeper         Sweeper
	pollingInterval time.Duration
	cleanupInterval time.Duration
	minAge          time.Duration
	batchSize       int
	out             io.Writer
	outMu           sync.Mutex

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Listener {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	return &Listener{
		reconciler:      cfg.Reconciler,
		sweeper:         cfg.Sweeper,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		minAge:          cfg.MinAge,
		batchSize:       cfg.BatchSize,
		out:             out,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start launches the reconcile and cleanup loops. Both run once immediately.
func (l *Listener) Start(ctx context.Context) error {
	if l.pollingInterval <= 0 || l.cleanupInterval <= 0 {
		return fmt.Errorf("polling and cleanup intervals must be positive")
	}

	zap.L().Info("Starting settlement listener")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.loop(ctx, l.pollingInterval, l.reconcile)
	}()
	go func() {
		defer wg.Done()
		l.loop(ctx, l.cleanupInterval, l.cleanup)
	}()
	go func() {
		wg.Wait()
		close(l.doneChan)
	}()

	zap.L().Info("Settlement listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("cleanup_interval", l.cleanupInterval),
		zap.Duration("min_age", l.minAge),
		zap.Int("batch_size", l.batchSize))
	return nil
}

// Stop gracefully stops the listener and waits for the loops to finish
func (l *Listener) Stop() {
	zap.L().Info("Stopping settlement listener")
	l.stopOnce.Do(func() { close(l.stopChan) })
	<-l.doneChan
	zap.L().Info("Settlement listener stopped")
}

func (l *Listener) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run(ctx)

	for {
		select {
		case <-ticker.C:
			run(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) reconcile(ctx context.Context) {
	l.printf("\n%s[%s] Reconciling open transactions (min age: %s)%s\n",
		colorCyan, time.Now().Format("15:04:05"), l.minAge, colorReset)

	result, err := l.reconciler.ReconcileOpen(ctx, l.minAge, l.batchSize)
	if err != nil {
		l.printf("  %s✗ reconcile: %s%s\n", colorRed, err, colorReset)
		if errors.Is(err, provider.ErrAuthFailure) {
			zap.L().Error("Provider rejected credentials, update the provider token", zap.Error(err))
		} else {
			zap.L().Error("Reconcile sweep failed", zap.Error(err))
		}
		if result == nil {
			return
		}
	}

	switch {
	case result.Checked == 0:
		l.printf("  %s· nothing to reconcile%s\n", colorGray, colorReset)
	case result.Failed > 0 || result.Deferred > 0:
		l.printf("  %s~ checked %d, settled %d, deferred %d, failed %d%s\n",
			colorYellow, result.Checked, result.Changed, result.Deferred, result.Failed, colorReset)
	default:
		l.printf("  %s✓ checked %d, settled %d%s\n",
			colorGreen, result.Checked, result.Changed, colorReset)
	}
}

func (l *Listener) cleanup(ctx context.Context) {
	result, err := l.sweeper.Sweep(ctx)
	if err != nil {
		l.printf("  %s✗ cleanup: %s%s\n", colorRed, err, colorReset)
		zap.L().Error("Cleanup sweep failed", zap.Error(err))
		return
	}
	if result.Examined == 0 {
		return
	}

	color := colorGreen
	if result.Failed > 0 {
		color = colorYellow
	}
	l.printf("  %s⌛ expired %d of %d stale transactions (cutoff %s)%s\n",
		color, result.Expired, result.Examined, result.Cutoff.Format("15:04:05"), colorReset)
}

func (l *Listener) printf(format string, args ...any) {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	fmt.Fprintf(l.out, format, args...)
}
