package serverutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestRunRequiresServer(t *testing.T) {
	if err := Run(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing server")
	}
}

func TestRunRejectsPartialTLSConfig(t *testing.T) {
	cfg := Config{
		Server: &http.Server{Addr: "127.0.0.1:0"},
		TLS:    TLSConfig{CertFile: "cert.pem"},
	}
	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected error for cert without key")
	}
}

// startServer runs the server on an ephemeral port and returns its bound
// address, a cancel func, and the Run result channel.
func startServer(t *testing.T, cfg Config) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	cfg.Ready = ready
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	select {
	case addr := <-ready:
		return addr.String(), cancel, done
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server never became ready")
		return "", nil, nil
	}
}

func TestRunServesAndShutsDownGracefully(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	})
	server := &http.Server{Addr: "127.0.0.1:0", Handler: handler}

	var drained []string
	cfg := Config{
		Server:          server,
		ShutdownTimeout: 2 * time.Second,
		Drain: []DrainFunc{
			func(context.Context) error { drained = append(drained, "player"); return nil },
			func(context.Context) error { drained = append(drained, "store"); return nil },
		},
	}
	addr, cancel, done := startServer(t, cfg)

	resp, err := http.Get("http://" + addr)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if len(drained) != 2 || drained[0] != "player" || drained[1] != "store" {
		t.Fatalf("unexpected drain order %v", drained)
	}
}

func TestRunSurfacesDrainError(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sentinel := errors.New("drain exploded")
	cfg := Config{
		Server:          server,
		ShutdownTimeout: 2 * time.Second,
		Drain: []DrainFunc{
			func(context.Context) error { return sentinel },
		},
	}
	_, cancel, done := startServer(t, cfg)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected drain error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunDrainsAfterBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer ln.Close()

	drained := false
	err = Run(context.Background(), Config{
		Server: &http.Server{Addr: ln.Addr().String()},
		Drain: []DrainFunc{
			func(context.Context) error { drained = true; return nil },
		},
	})
	if err == nil {
		t.Fatal("expected bind error")
	}
	if !drained {
		t.Fatal("drain hook did not run after bind failure")
	}
}
