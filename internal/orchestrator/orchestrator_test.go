package orchestrator

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"radiowave/internal/testsupport/icecaststub"
)

func TestRunWithoutIcecastServesDirectly(t *testing.T) {
	orch := New(Config{}, testLogger(), nil)
	sentinel := errors.New("listener closed")

	err := orch.Run(context.Background(), func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected serve error to pass through, got %v", err)
	}
}

func TestRunLaunchesBeforeServing(t *testing.T) {
	stub := icecaststub.Start(icecaststub.Options{})
	defer stub.Close()

	cfg := Config{
		Icecast: IcecastProcessConfig{Config: "/etc/icecast2/icecast.xml"},
		Readiness: ReadinessConfig{
			ProbeURL:     stub.StatusURL(),
			Attempts:     3,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		},
	}
	orch := New(cfg, testLogger(), nil)

	var mu sync.Mutex
	var order []string
	orch.startProcess = func(ctx context.Context) (*exec.Cmd, error) {
		mu.Lock()
		order = append(order, "launch")
		mu.Unlock()
		cmd := exec.CommandContext(ctx, "sleep", "60")
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	}

	err := orch.Run(context.Background(), func(context.Context) error {
		mu.Lock()
		order = append(order, "serve")
		mu.Unlock()
		if stub.Requests() == 0 {
			t.Error("expected readiness probe before serving")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 2 || order[0] != "launch" || order[len(order)-1] != "serve" {
		t.Fatalf("unexpected startup order %v", order)
	}
}

func TestRunLaunchFailureIsNotFatal(t *testing.T) {
	cfg := Config{
		Icecast:   IcecastProcessConfig{Config: "/etc/icecast2/icecast.xml"},
		Readiness: ReadinessConfig{FixedDelay: time.Millisecond},
	}
	orch := New(cfg, testLogger(), nil)
	orch.startProcess = func(context.Context) (*exec.Cmd, error) {
		return nil, errors.New("binary not found")
	}

	served := false
	err := orch.Run(context.Background(), func(context.Context) error {
		served = true
		return nil
	})
	if err != nil {
		t.Fatalf("launch failure must not surface through Run, got %v", err)
	}
	if !served {
		t.Fatal("expected API to serve despite launch failure")
	}
}

func TestRunReturnsServeError(t *testing.T) {
	cfg := Config{
		Icecast:   IcecastProcessConfig{Config: "/etc/icecast2/icecast.xml"},
		Readiness: ReadinessConfig{FixedDelay: time.Millisecond},
	}
	orch := New(cfg, testLogger(), nil)
	orch.startProcess = func(context.Context) (*exec.Cmd, error) {
		return nil, errors.New("binary not found")
	}

	sentinel := errors.New("bind: address already in use")
	err := orch.Run(context.Background(), func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected serve error, got %v", err)
	}
}

func TestRunFailsFastOnOwnershipErrors(t *testing.T) {
	cfg := Config{
		Icecast: IcecastProcessConfig{
			Config: "/etc/icecast2/icecast.xml",
			User:   "radiowave-no-such-account",
			LogDir: t.TempDir(),
		},
	}
	orch := New(cfg, testLogger(), nil)
	orch.startProcess = func(context.Context) (*exec.Cmd, error) {
		t.Error("icecast must not launch when ownership cannot be fixed")
		return nil, errors.New("unreachable")
	}

	served := false
	err := orch.Run(context.Background(), func(context.Context) error {
		served = true
		return nil
	})
	if err == nil {
		t.Fatal("expected ownership failure to be fatal")
	}
	if served {
		t.Fatal("API must not start after a fatal ownership error")
	}
}

func TestRunRestartPolicy(t *testing.T) {
	cfg := Config{
		Icecast:   IcecastProcessConfig{Config: "/etc/icecast2/icecast.xml"},
		Readiness: ReadinessConfig{FixedDelay: time.Millisecond},
		Restart:   RestartPolicy{Enabled: true, MaxRestarts: 2, Backoff: time.Millisecond},
	}
	orch := New(cfg, testLogger(), nil)

	var mu sync.Mutex
	launches := 0
	orch.startProcess = func(context.Context) (*exec.Cmd, error) {
		mu.Lock()
		launches++
		mu.Unlock()
		return nil, errors.New("crash on start")
	}

	err := orch.Run(context.Background(), func(context.Context) error {
		// Give the supervisor time to burn its restart budget.
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if launches != 3 {
		t.Fatalf("expected initial launch plus 2 restarts, got %d", launches)
	}
}

func TestFixPermissionsSkippedWithoutUser(t *testing.T) {
	orch := New(Config{Icecast: IcecastProcessConfig{LogDir: t.TempDir()}}, testLogger(), nil)
	if err := orch.fixPermissions(); err != nil {
		t.Fatalf("expected no-op without a user, got %v", err)
	}
}
