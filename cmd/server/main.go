// Command server starts the radiowave playback API and brings up the
// streaming server it fronts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"radiowave/internal/api"
	"radiowave/internal/catalog"
	"radiowave/internal/feed"
	"radiowave/internal/icecast"
	"radiowave/internal/nowplaying"
	"radiowave/internal/observability/logging"
	"radiowave/internal/observability/metrics"
	"radiowave/internal/orchestrator"
	"radiowave/internal/radio"
	"radiowave/internal/server"
	"radiowave/internal/serverutil"
	"radiowave/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	historyLimit := flag.Int("history-limit", 0, "maximum playback sessions retained in history")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	playLimit := flag.Int("rate-play-limit", 0, "maximum playback control requests per window for a single IP")
	playWindow := flag.Duration("rate-play-window", 0, "window for counting playback control requests")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed playback throttling")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed playback throttling")
	rateRedisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis rate limit operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API (empty allows all)")
	eventsDriver := flag.String("events-driver", "", "playback event queue driver (memory or redis)")
	eventsRedisAddr := flag.String("events-redis-addr", "", "Redis address for the playback event stream")
	eventsRedisAddrs := flag.String("events-redis-addrs", "", "comma separated Redis addresses for the playback event stream")
	eventsRedisUsername := flag.String("events-redis-username", "", "Redis username for the playback event stream")
	eventsRedisPassword := flag.String("events-redis-password", "", "Redis password for the playback event stream")
	eventsRedisStream := flag.String("events-redis-stream", "", "Redis stream key for playback events")
	eventsRedisGroup := flag.String("events-redis-group", "", "Redis consumer group for playback events")
	eventsRedisMasterName := flag.String("events-redis-sentinel-master", "", "Redis sentinel master name for the playback event stream")
	eventsRedisPoolSize := flag.Int("events-redis-pool-size", 0, "maximum Redis connections for the playback event stream")
	ffmpegBinary := flag.String("ffmpeg-bin", "", "encoder binary used to push audio into the streaming server")
	controlTokenHash := flag.String("control-token-hash", "", "pbkdf2 hash guarding the playback control endpoints")
	flag.Parse()

	logger := logging.New(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("RADIOWAVE_LOG_LEVEL"))})
	recorder := metrics.Default()

	listenAddr := resolveListenAddr(*addr)

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		logger.Error("failed to load orchestration config", "error", err)
		os.Exit(1)
	}

	icecastClient, err := buildIcecastClient()
	if err != nil {
		logger.Error("invalid icecast configuration", "error", err)
		os.Exit(1)
	}
	if orchCfg.Readiness.ProbeURL == "" && icecastClient != nil {
		orchCfg.Readiness.ProbeURL = os.Getenv("RADIOWAVE_ICECAST_STATUS_URL")
	}

	resolverCfg, err := catalog.LoadResolverConfigFromEnv()
	if err != nil {
		logger.Error("invalid resolver configuration", "error", err)
		os.Exit(1)
	}
	var searcher catalog.Searcher
	if resolverCfg.Enabled() {
		client, err := resolverCfg.NewClient()
		if err != nil {
			logger.Error("failed to initialise resolver client", "error", err)
			os.Exit(1)
		}
		searcher = client
	}
	catalogService := catalog.NewService(catalog.ServiceConfig{
		Searcher: searcher,
		Logger:   logging.WithComponent(logger, "catalog"),
		Metrics:  recorder,
	})

	store, err := openStore(storeSettings{
		driver:          firstNonEmpty(*storageDriver, os.Getenv("RADIOWAVE_STORAGE_DRIVER")),
		dataPath:        *dataPath,
		dsn:             *postgresDSN,
		maxConns:        resolveInt(*postgresMaxConns, "RADIOWAVE_POSTGRES_MAX_CONNS"),
		minConns:        resolveInt(*postgresMinConns, "RADIOWAVE_POSTGRES_MIN_CONNS"),
		maxConnLifetime: resolveDuration(*postgresMaxConnLifetime, "RADIOWAVE_POSTGRES_MAX_CONN_LIFETIME", 0),
		maxConnIdle:     resolveDuration(*postgresMaxConnIdle, "RADIOWAVE_POSTGRES_MAX_CONN_IDLE", 0),
		healthInterval:  resolveDuration(*postgresHealthInterval, "RADIOWAVE_POSTGRES_HEALTH_INTERVAL", 0),
		acquireTimeout:  resolveDuration(*postgresAcquireTimeout, "RADIOWAVE_POSTGRES_ACQUIRE_TIMEOUT", 0),
		appName:         firstNonEmpty(*postgresAppName, os.Getenv("RADIOWAVE_POSTGRES_APP_NAME")),
		historyLimit:    resolveInt(*historyLimit, "RADIOWAVE_HISTORY_LIMIT"),
	})
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	queueCfg := nowplaying.RedisQueueConfig{
		Addr:       firstNonEmpty(*eventsRedisAddr, os.Getenv("RADIOWAVE_EVENTS_REDIS_ADDR")),
		Addrs:      splitAndTrim(firstNonEmpty(*eventsRedisAddrs, os.Getenv("RADIOWAVE_EVENTS_REDIS_ADDRS"))),
		Username:   firstNonEmpty(*eventsRedisUsername, os.Getenv("RADIOWAVE_EVENTS_REDIS_USERNAME")),
		Password:   firstNonEmpty(*eventsRedisPassword, os.Getenv("RADIOWAVE_EVENTS_REDIS_PASSWORD")),
		Stream:     firstNonEmpty(*eventsRedisStream, os.Getenv("RADIOWAVE_EVENTS_REDIS_STREAM")),
		Group:      firstNonEmpty(*eventsRedisGroup, os.Getenv("RADIOWAVE_EVENTS_REDIS_GROUP")),
		MasterName: firstNonEmpty(*eventsRedisMasterName, os.Getenv("RADIOWAVE_EVENTS_REDIS_SENTINEL_MASTER")),
		PoolSize:   resolveInt(*eventsRedisPoolSize, "RADIOWAVE_EVENTS_REDIS_POOL_SIZE"),
		Logger:     logging.WithComponent(logger, "events"),
	}
	queue, err := configureEventQueue(firstNonEmpty(*eventsDriver, os.Getenv("RADIOWAVE_EVENTS_DRIVER")), queueCfg)
	if err != nil {
		logger.Error("failed to configure event queue", "error", err)
		os.Exit(1)
	}

	var (
		player     *radio.Player
		controller feed.Controller
	)
	encoderCfg, err := feed.LoadHTTPConfigFromEnv()
	if err != nil {
		logger.Error("invalid encoder configuration", "error", err)
		os.Exit(1)
	}
	if encoderCfg.Enabled() {
		httpController, err := encoderCfg.NewController()
		if err != nil {
			logger.Error("failed to initialise encoder controller", "error", err)
			os.Exit(1)
		}
		controller = httpController
	} else {
		controller = feed.NewExecController(feed.ExecControllerConfig{
			Binary:  firstNonEmpty(*ffmpegBinary, os.Getenv("RADIOWAVE_FFMPEG_BIN")),
			Logger:  logging.WithComponent(logger, "feed"),
			Metrics: recorder,
			OnExit: func(sessionID string, err error) {
				if player != nil {
					player.HandleFeedExit(sessionID, err)
				}
			},
		})
	}

	var sourceTarget, listenerURL string
	if icecastClient != nil {
		if target, err := icecastClient.SourceTarget(); err == nil {
			sourceTarget = target
		} else {
			logger.Warn("icecast source target unavailable", "error", err)
		}
		listenerURL = icecastClient.ListenerURL()
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	player, err = radio.NewPlayer(bootCtx, radio.Config{
		Catalog:      catalogService,
		Store:        store,
		Feed:         controller,
		Events:       queue,
		Logger:       logging.WithComponent(logger, "player"),
		Metrics:      recorder,
		SourceTarget: sourceTarget,
		ListenerURL:  listenerURL,
	})
	bootCancel()
	if err != nil {
		logger.Error("failed to initialise player", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(player, store)
	handler.Metrics = recorder
	if icecastClient != nil {
		handler.Checks = append(handler.Checks, icecastClient)
	}
	handler.Checks = append(handler.Checks, healthAdapter{controller})

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("RADIOWAVE_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("RADIOWAVE_TLS_KEY")),
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "RADIOWAVE_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "RADIOWAVE_RATE_GLOBAL_BURST"),
			PlayLimit:     resolveInt(*playLimit, "RADIOWAVE_RATE_PLAY_LIMIT"),
			PlayWindow:    resolveDuration(*playWindow, "RADIOWAVE_RATE_PLAY_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*rateRedisAddr, os.Getenv("RADIOWAVE_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*rateRedisPassword, os.Getenv("RADIOWAVE_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*rateRedisTimeout, "RADIOWAVE_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("RADIOWAVE_CORS_ORIGINS"))),
		},
		ControlTokenHash: firstNonEmpty(*controlTokenHash, os.Getenv("RADIOWAVE_CONTROL_TOKEN_HASH")),
		Logger:           logger,
		Metrics:          recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(orchCfg, logging.WithComponent(logger, "orchestrator"), recorder)
	serveErr := orch.Run(ctx, func(ctx context.Context) error {
		certFile, keyFile := srv.TLSFiles()
		return serverutil.Run(ctx, serverutil.Config{
			Server: srv.HTTPServer(),
			TLS: serverutil.TLSConfig{
				CertFile: certFile,
				KeyFile:  keyFile,
			},
			Logger: logger,
			// Playback stops before the datastore closes so the final
			// session update still lands.
			Drain: []serverutil.DrainFunc{
				func(ctx context.Context) error {
					if _, err := player.Stop(ctx); err != nil && !errors.Is(err, radio.ErrNothingPlaying) {
						logger.Warn("failed to stop playback", "error", err)
					}
					return nil
				},
				func(ctx context.Context) error {
					if err := store.Close(ctx); err != nil {
						logger.Warn("failed to close datastore", "error", err)
					}
					return nil
				},
			},
		})
	})

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) && !errors.Is(serveErr, http.ErrServerClosed) {
		logger.Error("server error", "error", serveErr)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type healthAdapter struct {
	controller feed.Controller
}

func (h healthAdapter) Health(ctx context.Context) icecast.HealthStatus {
	if h.controller == nil {
		return icecast.HealthStatus{Component: "feed", Status: "disabled"}
	}
	return h.controller.Health(ctx)
}

type storeSettings struct {
	driver          string
	dataPath        string
	dsn             string
	maxConns        int
	minConns        int
	maxConnLifetime time.Duration
	maxConnIdle     time.Duration
	healthInterval  time.Duration
	acquireTimeout  time.Duration
	appName         string
	historyLimit    int
}

func openStore(settings storeSettings) (storage.Repository, error) {
	dsn := firstNonEmpty(settings.dsn, os.Getenv("RADIOWAVE_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
	driver := strings.ToLower(strings.TrimSpace(settings.driver))
	if driver == "" {
		if dsn != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}

	var options []storage.Option
	if settings.historyLimit > 0 {
		options = append(options, storage.WithHistoryLimit(settings.historyLimit))
	}

	switch driver {
	case "json":
		dataFile := firstNonEmpty(settings.dataPath, os.Getenv("RADIOWAVE_DATA"), "data/radiowave.json")
		return storage.NewStore(dataFile, options...)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage selected without DSN")
		}
		if settings.maxConns > 0 || settings.minConns > 0 {
			options = append(options, storage.WithPostgresPoolLimits(int32(settings.maxConns), int32(settings.minConns)))
		}
		if settings.maxConnLifetime > 0 || settings.maxConnIdle > 0 || settings.healthInterval > 0 {
			options = append(options, storage.WithPostgresPoolDurations(settings.maxConnLifetime, settings.maxConnIdle, settings.healthInterval))
		}
		if settings.acquireTimeout > 0 {
			options = append(options, storage.WithPostgresAcquireTimeout(settings.acquireTimeout))
		}
		if settings.appName != "" {
			options = append(options, storage.WithPostgresApplicationName(settings.appName))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return storage.NewPostgresRepository(ctx, dsn, options...)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func configureEventQueue(driver string, cfg nowplaying.RedisQueueConfig) (nowplaying.Queue, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		if cfg.Addr != "" || len(cfg.Addrs) > 0 {
			driver = "redis"
		} else {
			driver = "memory"
		}
	}
	switch driver {
	case "memory":
		return nowplaying.NewMemoryQueue(0), nil
	case "redis":
		return nowplaying.NewRedisQueue(cfg)
	default:
		return nil, fmt.Errorf("unsupported event queue driver %q", driver)
	}
}

func buildIcecastClient() (*icecast.Client, error) {
	statusURL := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_STATUS_URL"))
	sourceURL := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_SOURCE"))
	publicBase := strings.TrimSpace(os.Getenv("RADIOWAVE_PUBLIC_BASE_URL"))
	mount := strings.TrimSpace(os.Getenv("RADIOWAVE_ICECAST_MOUNT"))
	if statusURL == "" && sourceURL == "" && publicBase == "" {
		return nil, nil
	}
	return icecast.New(icecast.Config{
		StatusURL:     statusURL,
		SourceURL:     sourceURL,
		Mount:         mount,
		PublicBaseURL: publicBase,
	})
}

func resolveListenAddr(flagValue string) string {
	if addr := strings.TrimSpace(flagValue); addr != "" {
		return addr
	}
	if addr := strings.TrimSpace(os.Getenv("RADIOWAVE_ADDR")); addr != "" {
		return addr
	}
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}
	return ":" + port
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
