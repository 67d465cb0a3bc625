// Package serverutil owns the HTTP serving lifecycle: listener setup, TLS,
// graceful shutdown, and ordered draining of the resources behind a server.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// TLSConfig defines certificate and key paths for enabling TLS listeners.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// DrainFunc releases a resource during shutdown, bounded by the shutdown
// budget.
type DrainFunc func(context.Context) error

// Config controls the HTTP server runtime behaviour.
type Config struct {
	Server *http.Server
	TLS    TLSConfig
	// ShutdownTimeout bounds graceful shutdown and the drain hooks.
	ShutdownTimeout time.Duration
	// Ready receives the bound listener address once the server is accepting
	// connections. The send never blocks; buffer the channel.
	Ready chan<- net.Addr
	// Drain hooks run in order once the server has stopped, whatever the
	// reason, so stateful resources close after their last request.
	Drain  []DrainFunc
	Logger *slog.Logger
}

// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
const DefaultShutdownTimeout = 10 * time.Second

// Run starts the provided HTTP server and blocks until it stops. When the
// context is cancelled, Run shuts the server down gracefully within
// ShutdownTimeout and then runs the Drain hooks in order. Drain hooks also
// run when serving fails, so resources never outlive the server.
func Run(ctx context.Context, cfg Config) (err error) {
	if cfg.Server == nil {
		return fmt.Errorf("server is required")
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	defer func() {
		if drainErr := drainAll(cfg, timeout); drainErr != nil && err == nil {
			err = drainErr
		}
	}()

	ln, err := listen(cfg.Server, cfg.TLS)
	if err != nil {
		return err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("http server listening", "addr", ln.Addr().String())
	}
	if cfg.Ready != nil {
		select {
		case cfg.Ready <- ln.Addr():
		default:
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- cfg.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := cfg.Server.Shutdown(shutdownCtx)
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && shutdownErr == nil {
			shutdownErr = err
		}
	case <-shutdownCtx.Done():
		if shutdownErr == nil {
			shutdownErr = shutdownCtx.Err()
		}
	}
	return shutdownErr
}

// listen binds the server address, wrapping the listener with TLS when
// certificate material is configured.
func listen(server *http.Server, cfg TLSConfig) (net.Listener, error) {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, fmt.Errorf("both TLS cert file and key file must be provided")
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	if cfg.CertFile == "" {
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		ln.Close()
		return nil, err
	}
	base := server.TLSConfig
	if base == nil {
		base = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		base = base.Clone()
	}
	base.Certificates = append([]tls.Certificate{cert}, base.Certificates...)
	server.TLSConfig = base
	return tls.NewListener(ln, base), nil
}

func drainAll(cfg Config, timeout time.Duration) error {
	if len(cfg.Drain) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	for _, drain := range cfg.Drain {
		if err := drain(ctx); err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Warn("shutdown drain failed", "error", err)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
