// cmd/relay/main.go
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wiki-explorer/internal/common/cache"
	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/common/observability"
	"wiki-explorer/internal/gemini"
	"wiki-explorer/internal/relay"
)

// retryWithBackoff runs op until it succeeds, doubling the pause after each
// failure. Each attempt gets its own timeout. A cancelled ctx ends the wait.
func retryWithBackoff(ctx context.Context, name string, attempts int, delay, timeout time.Duration, log logger.Logger, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err = op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		log.Warn(name+" failed, retrying", map[string]interface{}{
			"error":       err.Error(),
			"attempt":     attempt,
			"maxAttempts": attempts,
			"nextRetryIn": delay.String(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s interrupted after %d attempts: %w", name, attempt, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	// The credential is checked once here; requests never see a missing key.
	if err := cfg.ValidateRelay(); err != nil {
		zapLog.Fatal("relay configuration invalid", zap.Error(err))
	}

	// Interrupts during startup abort the Redis wait; later ones drain the server.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLog.Info("Starting relay...",
		zap.String("environment", cfg.App.Environment),
		zap.String("model", cfg.Gemini.Model),
		zap.String("language", cfg.Article.Language),
	)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.App.Name,
		TracingEnabled: cfg.Tracing.Enabled,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
	}, log)
	defer obs.Shutdown()

	model, err := gemini.NewClient(cfg, log)
	if err != nil {
		zapLog.Fatal("gemini client init failed", zap.Error(err))
	}

	// --- Disambiguation cache (optional) ---
	var (
		svcCache relay.Cache
		pinger   relay.Pinger
	)
	if cfg.Cache.Enabled {
		rc := cache.NewRedis(cfg.Cache)
		err = retryWithBackoff(ctx, "Redis connection", 5, time.Second, 3*time.Second, log, rc.Ping)
		if err != nil {
			zapLog.Warn("redis unavailable, disambiguation cache disabled", zap.Error(err))
			_ = rc.Close()
		} else {
			defer rc.Close()
			svcCache, pinger = rc, rc
			zapLog.Info("Redis connected successfully", zap.String("address", cfg.Cache.Address))
		}
	}

	if ctx.Err() != nil {
		zapLog.Info("Shutdown requested during startup")
		return
	}

	svc := relay.NewService(cfg, model, svcCache, obs, log)
	handler := relay.NewHandler(cfg, svc, pinger, log)
	router := relay.NewRouter(cfg, handler, log)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("Relay listening",
			zap.String("addr", server.Addr),
			zap.Int("rateLimitPerMinute", cfg.Server.RateLimitPerMinute),
			zap.String("allowedOrigins", cfg.Server.AllowedOrigins),
		)
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("relay server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	zapLog.Info("Shutdown signal received, draining streams...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error during relay shutdown", zap.Error(err))
	}

	zapLog.Info("Relay stopped gracefully")
}
