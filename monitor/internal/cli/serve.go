package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cybermonitor/monitor-stack/common/config"
	"github.com/cybermonitor/monitor-stack/common/logging"
	"github.com/cybermonitor/monitor-stack/common/messaging"
	natsclient "github.com/cybermonitor/monitor-stack/common/messaging/nats"
	"github.com/cybermonitor/monitor-stack/monitor/internal/bridge"
	"github.com/cybermonitor/monitor-stack/monitor/internal/broadcast"
	"github.com/cybermonitor/monitor-stack/monitor/internal/handlers"
	"github.com/cybermonitor/monitor-stack/monitor/internal/ratelimit"
	"github.com/cybermonitor/monitor-stack/monitor/internal/realtime"
	"github.com/cybermonitor/monitor-stack/monitor/internal/relay"
	"github.com/cybermonitor/monitor-stack/monitor/internal/repository"
	"github.com/cybermonitor/monitor-stack/monitor/internal/server"
	"github.com/cybermonitor/monitor-stack/monitor/internal/service"
	"github.com/cybermonitor/monitor-stack/monitor/internal/stats"
	"github.com/cybermonitor/monitor-stack/monitor/internal/supervisor"
	"github.com/cybermonitor/monitor-stack/monitor/migrations"
)

const statsFlushInterval = 10 * time.Second

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collector session and the HTTP/WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.Logger)
		},
	}
}

// launchConfig maps the producer section onto supervisor options.
func launchConfig(p config.ProducerConfig) (supervisor.LaunchConfig, error) {
	resolved, err := p.Resolved()
	if err != nil {
		return supervisor.LaunchConfig{}, err
	}
	return supervisor.LaunchConfig{
		ExecutablePath:   resolved.ExecutablePath,
		ScriptPath:       resolved.ScriptPath,
		WorkingDirectory: resolved.WorkingDirectory,
		Args:             resolved.Args,
		StopTimeout:      resolved.StopTimeout,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Repository, handlers.Pinger, error) {
	if cfg.Database.Type != "postgres" {
		logger.Warn("Using in-memory anomaly store; anomalies are lost on restart",
			slog.String("database_type", cfg.Database.Type))
		return repository.NewMemoryRepository(), nil, nil
	}

	conn, err := storeURL(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Up(conn); err != nil {
		return nil, nil, err
	}
	repo, err := repository.NewPostgresRepository(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to PostgreSQL",
		slog.String("host", cfg.Database.Postgres.Host),
		slog.String("database", cfg.Database.Postgres.Database),
	)
	return repo, repo, nil
}

func openRedis(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(rc.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if rc.MaxRetries > 0 {
		opt.MaxRetries = rc.MaxRetries
	}
	if rc.PoolSize > 0 {
		opt.PoolSize = rc.PoolSize
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting monitor",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)

	launch, err := launchConfig(cfg.Producer)
	if err != nil {
		return fmt.Errorf("invalid producer config: %w", err)
	}

	repo, pinger, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	hub := broadcast.New(cfg.Broadcast.SendTimeout, logger)

	// Redis backs anomaly counters and the kill rate limit. Both are
	// optional; the monitor runs without them.
	var (
		limiter  ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
		summary  handlers.SummaryReader
		bridgeOp = []bridge.Option{bridge.WithLogger(logger)}
	)
	if cfg.Redis.Enabled {
		rdb, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable; anomaly statistics and rate limiting disabled", logging.Error(err))
		} else {
			defer rdb.Close()

			hostname, _ := os.Hostname()
			statsClient := stats.NewClientFromRedis(rdb, fmt.Sprintf("%s-%d", hostname, os.Getpid()))
			collector := stats.NewCollector(statsClient, statsFlushInterval, logger)
			defer collector.Stop()
			summary = statsClient
			bridgeOp = append(bridgeOp, bridge.WithRecorder(collector))

			if cfg.RateLimit.Enabled {
				limiter = ratelimit.NewWithClient(rdb, cfg.RateLimit.KillLimit, cfg.RateLimit.KillWindow)
				logger.Info("Kill rate limit enabled",
					slog.Int("limit", cfg.RateLimit.KillLimit),
					slog.Duration("window", cfg.RateLimit.KillWindow),
				)
			}
		}
	} else {
		logger.Info("Redis disabled - anomaly statistics and kill rate limiting not available")
	}
	defer limiter.Close()

	processes := service.NewProcessService(nil, hub, limiter, logger)

	var broker messaging.Client
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		natsCfg.Logger = logger

		nc, err := natsclient.NewClient(natsCfg)
		if err != nil {
			logger.Warn("NATS unavailable; telemetry relay disabled", logging.Error(err))
		} else {
			defer func() { _ = nc.Drain() }()
			broker = nc
			hub.Join(relay.New(nc, logger))
			responder := relay.NewKillResponder(nc, processes, logger)
			if err := responder.Start(); err != nil {
				logger.Warn("Kill responder not started", logging.Error(err))
			}
			logger.Info("NATS relay enabled", slog.String("url", cfg.NATS.URL))
		}
	}

	ws := realtime.NewHub(hub, processes, logger, realtime.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	sup := supervisor.New(supervisor.NewLogSink(logger), logger)
	br := bridge.New(sup, hub, repo, bridgeOp...)

	h := handlers.NewMonitorHandler(handlers.Deps{
		History: service.NewHistoryService(repo, cfg.History.DefaultLimit, cfg.History.MaxLimit),
		Summary: summary,
		Session: br,
		Host:    service.NewHostService(nil),
		Killer:  processes,
		Store:   pinger,
		Broker:  broker,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.NewRouter(h, ws),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Monitor listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// The server stays up after the session ends; dashboards just stop
	// receiving updates.
	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		if err := br.Run(ctx, launch); err != nil {
			logger.Error("Collector session failed", logging.Error(err))
			return
		}
		logger.Info("Collector session ended", logging.State(sup.State().String()))
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-serverErr:
		logger.Error("Server error", logging.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	ws.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logging.Error(err))
	}

	// Make sure the producer is gone before the store closes.
	sup.Stop()
	select {
	case <-sessionDone:
	case <-shutdownCtx.Done():
		logger.Warn("Collector session did not finish before shutdown timeout")
	}

	logger.Info("Monitor stopped")
	return runErr
}
