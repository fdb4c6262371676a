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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pix-settlement-bridge/internal/api"
	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/listener"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	noHTTP := flag.Bool("no-http", false, "Run only the background loops, without the webhook/admin HTTP listener")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting PIX settlement listener")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Payments.HealthCheck(ctx); err != nil {
		// the loops retry on their own; a down provider at boot is not fatal
		zap.L().Warn("Health check failed at startup", zap.Error(err))
	}

	l := listener.New(listener.Config{
		Reconciler:      services.Payments,
		Sweeper:         services.Sweeper,
		PollingInterval: cfg.Listener.PollingInterval,
		CleanupInterval: cfg.Listener.CleanupInterval,
		MinAge:          cfg.Listener.ReconcileMinAge,
		BatchSize:       cfg.Listener.ReconcileBatchSize,
	})
	if err := l.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start listener", zap.Error(err))
	}

	var httpServer *http.Server
	if !*noHTTP {
		gin.SetMode(gin.ReleaseMode)
		server := api.NewServer(services.Payments, services.Runtime)
		httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			zap.L().Info("HTTP listener running", zap.String("addr", cfg.HTTP.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("HTTP listener failed", zap.Error(err))
				cancel()
			}
		}()
	}

	zap.L().Info("Listener running",
		zap.Duration("polling_interval", cfg.Listener.PollingInterval),
		zap.Duration("cleanup_interval", cfg.Listener.CleanupInterval),
		zap.Duration("cleanup_timeout", cfg.Listener.CleanupTimeout))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping...")
	case <-ctx.Done():
		zap.L().Warn("Context cancelled, stopping...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("HTTP listener did not shut down cleanly", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Listener stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
