package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"radiowave/internal/observability/metrics"
)

// Orchestrator brings up the streaming server before the API starts
// accepting playback requests. The icecast child is launched detached under
// a low-privilege account; the API server runs in the calling goroutine and
// its result is the process exit status.
type Orchestrator struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	probes  *http.Client

	// startProcess is swapped in tests to avoid spawning real processes.
	startProcess func(ctx context.Context) (*exec.Cmd, error)
}

func New(cfg Config, logger *slog.Logger, recorder *metrics.Recorder) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Default()
	}
	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		metrics: recorder,
		probes:  &http.Client{Timeout: 2 * time.Second},
	}
	o.startProcess = o.launchIcecast
	return o
}

// Run executes the startup sequence and then serves the API. The returned
// error is always the API server's own result: an icecast that never comes
// up is logged and surfaced through health checks, never through the exit
// code.
func (o *Orchestrator) Run(ctx context.Context, serve func(context.Context) error) error {
	if !o.cfg.Enabled() {
		o.logger.Info("no streaming server configured, serving API only")
		return serve(ctx)
	}

	// Ownership must be fixed before anything starts: icecast cannot open
	// its logs otherwise, and proceeding would mask the misconfiguration.
	if err := o.fixPermissions(); err != nil {
		return fmt.Errorf("fix log ownership: %w", err)
	}

	superviseCtx, stopSupervise := context.WithCancel(ctx)
	defer stopSupervise()

	launched := make(chan struct{})
	var group errgroup.Group
	group.Go(func() error {
		o.supervise(superviseCtx, launched)
		return nil
	})

	// The launch attempt strictly precedes the readiness wait, and the API
	// server starts strictly after the wait resolves.
	select {
	case <-launched:
	case <-ctx.Done():
		_ = group.Wait()
		return ctx.Err()
	}
	if err := waitReady(ctx, o.cfg.Readiness, o.probes, o.logger); err != nil {
		if ctx.Err() != nil {
			_ = group.Wait()
			return ctx.Err()
		}
		// The historical deployment never checked readiness at all, so
		// an unready streaming server does not block the API.
		o.logger.Warn("streaming server not ready, serving API anyway", "error", err)
	}

	serveErr := serve(ctx)
	stopSupervise()
	_ = group.Wait()
	return serveErr
}

// fixPermissions recursively hands the icecast log directory to the service
// account so the child can open its logs after dropping privileges.
func (o *Orchestrator) fixPermissions() error {
	logDir := o.cfg.Icecast.LogDir
	account := o.cfg.Icecast.User
	if logDir == "" || account == "" {
		return nil
	}
	uid, gid, err := lookupAccount(account)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", logDir, err)
	}
	err = filepath.WalkDir(logDir, func(path string, _ fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.logger.Info("log directory ownership fixed", "dir", logDir, "user", account)
	return nil
}

// supervise launches icecast and applies the restart policy. Launch failures
// are logged, never fatal: the API must come up regardless. The launched
// channel closes after the first start attempt so the caller can hold the
// startup ordering.
func (o *Orchestrator) supervise(ctx context.Context, launched chan<- struct{}) {
	restarts := 0
	first := true
	for {
		cmd, err := o.startProcess(ctx)
		if first {
			close(launched)
			first = false
		}
		if err != nil {
			o.metrics.SetIcecastHealth("icecast", "error")
			o.logger.Warn("streaming server launch failed", "error", err)
			if !o.retryAllowed(ctx, &restarts) {
				return
			}
			continue
		}
		o.metrics.SetIcecastHealth("icecast", "ok")
		o.logger.Info("streaming server started", "pid", cmd.Process.Pid)

		waitErr := waitProcess(ctx, cmd)
		if ctx.Err() != nil {
			return
		}
		o.metrics.SetIcecastHealth("icecast", "error")
		if waitErr != nil {
			o.logger.Warn("streaming server exited", "error", waitErr)
		} else {
			o.logger.Warn("streaming server exited cleanly")
		}
		if !o.retryAllowed(ctx, &restarts) {
			return
		}
	}
}

func (o *Orchestrator) retryAllowed(ctx context.Context, restarts *int) bool {
	if !o.cfg.Restart.Enabled {
		o.logger.Info("restart policy disabled, leaving streaming server down")
		return false
	}
	if *restarts >= o.cfg.Restart.MaxRestarts {
		o.logger.Error("restart budget exhausted", "restarts", *restarts)
		return false
	}
	*restarts++
	o.logger.Info("restarting streaming server",
		"attempt", *restarts,
		"max", o.cfg.Restart.MaxRestarts,
		"backoff", o.cfg.Restart.Backoff.String(),
	)
	if err := sleepCtx(ctx, o.cfg.Restart.Backoff); err != nil {
		return false
	}
	return true
}

func (o *Orchestrator) launchIcecast(ctx context.Context) (*exec.Cmd, error) {
	cfg := o.cfg.Icecast
	cmd := exec.CommandContext(ctx, cfg.Binary, "-c", cfg.Config)
	cmd.Stdout = newProcessLogWriter(o.logger, "stdout")
	cmd.Stderr = newProcessLogWriter(o.logger, "stderr")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if cfg.User != "" {
		uid, gid, err := lookupAccount(cfg.User)
		if err != nil {
			return nil, err
		}
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(uid),
			Gid: uint32(gid),
		}
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Binary, err)
	}
	return cmd, nil
}

func waitProcess(ctx context.Context, cmd *exec.Cmd) error {
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
			return <-done
		}
	}
}

func lookupAccount(name string) (int, int, error) {
	account, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("lookup account %s: %w", name, err)
	}
	uid, err := strconv.Atoi(account.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse uid for %s: %w", name, err)
	}
	gid, err := strconv.Atoi(account.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse gid for %s: %w", name, err)
	}
	return uid, gid, nil
}

type processLogWriter struct {
	logger *slog.Logger
	stream string
}

func newProcessLogWriter(logger *slog.Logger, stream string) *processLogWriter {
	return &processLogWriter{logger: logger, stream: stream}
}

func (w *processLogWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		w.logger.Debug("icecast output", "stream", w.stream, "line", string(trimmed))
	}
	return len(p), nil
}
