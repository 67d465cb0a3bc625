package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"radiowave/internal/icecast"
	"radiowave/internal/observability/metrics"
)

type processState struct {
	sessionID string
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	done      chan struct{}
}

// ExecControllerConfig configures the local ffmpeg controller.
type ExecControllerConfig struct {
	// Binary is the encoder executable, default "ffmpeg".
	Binary  string
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// OnExit is invoked when a feed process terminates for any reason other
	// than an explicit Stop, with the session ID and exit error.
	OnExit func(sessionID string, err error)
	// StopTimeout bounds how long Stop waits for the process to exit.
	StopTimeout time.Duration
}

// ExecController runs ffmpeg directly. Used when no standalone encoder
// daemon is configured.
type ExecController struct {
	binary      string
	logger      *slog.Logger
	metrics     *metrics.Recorder
	onExit      func(string, error)
	stopTimeout time.Duration

	mu      sync.Mutex
	current *processState
}

// NewExecController constructs an ExecController with defaults applied.
func NewExecController(cfg ExecControllerConfig) *ExecController {
	binary := cfg.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	timeout := cfg.StopTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ExecController{
		binary:      binary,
		logger:      logger,
		metrics:     recorder,
		onExit:      cfg.OnExit,
		stopTimeout: timeout,
	}
}

// Start launches ffmpeg for the given feed, replacing any live feed first.
func (c *ExecController) Start(ctx context.Context, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	c.stopCurrent()

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, c.binary, BuildArgs(params.AudioURL, params.Target)...)
	cmd.Stdout = newLogWriter(c.logger, params.SessionID, "stdout")
	cmd.Stderr = newLogWriter(c.logger, params.SessionID, "stderr")
	if err := cmd.Start(); err != nil {
		cancel()
		c.metrics.FeedFailed("live")
		return fmt.Errorf("start %s: %w", c.binary, err)
	}

	proc := &processState{
		sessionID: params.SessionID,
		cmd:       cmd,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	c.current = proc
	c.mu.Unlock()

	c.metrics.FeedStarted("live")
	c.logger.Info("feed started", "session_id", params.SessionID, "target", params.Target)

	go func() {
		err := cmd.Wait()
		cancel()
		close(proc.done)

		c.mu.Lock()
		stillCurrent := c.current == proc
		if stillCurrent {
			c.current = nil
		}
		c.mu.Unlock()

		if err != nil {
			c.metrics.FeedFailed("live")
			c.logger.Warn("feed exited with error", "session_id", proc.sessionID, "error", err)
		} else {
			c.metrics.FeedCompleted("live")
			c.logger.Info("feed completed", "session_id", proc.sessionID)
		}
		if stillCurrent && c.onExit != nil {
			c.onExit(proc.sessionID, err)
		}
	}()

	return nil
}

// Stop terminates the feed for the given session. Stopping a session that is
// no longer live is not an error.
func (c *ExecController) Stop(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	proc := c.current
	if proc == nil || proc.sessionID != sessionID {
		c.mu.Unlock()
		return nil
	}
	c.current = nil
	c.mu.Unlock()

	proc.cancel()
	select {
	case <-proc.done:
		return nil
	case <-time.After(c.stopTimeout):
		return fmt.Errorf("timeout waiting for feed %s to stop", sessionID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports whether the encoder binary is resolvable on PATH.
func (c *ExecController) Health(_ context.Context) icecast.HealthStatus {
	status := icecast.HealthStatus{Component: "encoder"}
	if _, err := exec.LookPath(c.binary); err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return status
	}
	status.Status = "ok"
	return status
}

func (c *ExecController) stopCurrent() {
	c.mu.Lock()
	proc := c.current
	c.current = nil
	c.mu.Unlock()
	if proc == nil {
		return
	}
	proc.cancel()
	select {
	case <-proc.done:
	case <-time.After(c.stopTimeout):
		c.logger.Warn("timeout replacing live feed", "session_id", proc.sessionID)
	}
}

type logWriter struct {
	logger    *slog.Logger
	sessionID string
	stream    string
}

func newLogWriter(logger *slog.Logger, sessionID, stream string) *logWriter {
	return &logWriter{logger: logger, sessionID: sessionID, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		var line []byte
		if idx == -1 {
			line = p
			p = nil
		} else {
			line = p[:idx]
			p = p[idx+1:]
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.logger.Debug("ffmpeg output", "session_id", w.sessionID, "stream", w.stream, "line", string(line))
	}
	return total, nil
}
