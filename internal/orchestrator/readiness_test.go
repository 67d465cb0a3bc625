package orchestrator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"radiowave/internal/testsupport/icecaststub"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestWaitReadyFixedDelayWithoutProbe(t *testing.T) {
	cfg := ReadinessConfig{FixedDelay: 10 * time.Millisecond}
	start := time.Now()
	if err := waitReady(context.Background(), cfg, nil, testLogger()); err != nil {
		t.Fatalf("waitReady returned error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected fixed delay to elapse")
	}
}

func TestWaitReadySucceedsAfterRetries(t *testing.T) {
	stub := icecaststub.Start(icecaststub.Options{FailProbes: 2})
	defer stub.Close()

	cfg := ReadinessConfig{
		ProbeURL:     stub.StatusURL(),
		Attempts:     5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
	if err := waitReady(context.Background(), cfg, nil, testLogger()); err != nil {
		t.Fatalf("waitReady returned error: %v", err)
	}
	if stub.Requests() != 3 {
		t.Fatalf("expected 3 probe attempts, got %d", stub.Requests())
	}
}

func TestWaitReadyExhaustsAttempts(t *testing.T) {
	stub := icecaststub.Start(icecaststub.Options{FailProbes: 100})
	defer stub.Close()

	cfg := ReadinessConfig{
		ProbeURL:     stub.StatusURL(),
		Attempts:     3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}
	err := waitReady(context.Background(), cfg, nil, testLogger())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if stub.Requests() != 3 {
		t.Fatalf("expected exactly 3 probe attempts, got %d", stub.Requests())
	}
}

func TestWaitReadyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := ReadinessConfig{FixedDelay: time.Minute}
	if err := waitReady(ctx, cfg, nil, testLogger()); err == nil {
		t.Fatal("expected context error")
	}
}
