package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// waitReady blocks until the streaming server answers its status endpoint or
// the attempt budget is exhausted. Delays grow exponentially from
// InitialDelay up to MaxDelay. Without a probe URL the historical fixed
// delay is honoured instead, since there is nothing to poll.
func waitReady(ctx context.Context, cfg ReadinessConfig, client *http.Client, logger *slog.Logger) error {
	if cfg.ProbeURL == "" {
		logger.Info("no readiness probe configured, waiting fixed delay", "delay", cfg.FixedDelay.String())
		return sleepCtx(ctx, cfg.FixedDelay)
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := probe(ctx, client, cfg.ProbeURL); err == nil {
			logger.Info("streaming server ready", "attempts", attempt)
			return nil
		} else {
			lastErr = err
			logger.Debug("readiness probe failed",
				"attempt", attempt,
				"max_attempts", cfg.Attempts,
				"error", err,
			)
		}
		if attempt == cfg.Attempts {
			break
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return fmt.Errorf("streaming server not ready after %d attempts: %w", cfg.Attempts, lastErr)
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
