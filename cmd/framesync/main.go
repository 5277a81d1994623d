package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/zsiec/framesync/internal/config"
	"github.com/zsiec/framesync/internal/dashboard"
	"github.com/zsiec/framesync/internal/health"
	"github.com/zsiec/framesync/internal/logger"
	"github.com/zsiec/framesync/internal/playback/memory"
	"github.com/zsiec/framesync/internal/playback/pool"
	"github.com/zsiec/framesync/internal/server"
	"github.com/zsiec/framesync/internal/simulate"
	"github.com/zsiec/framesync/internal/telemetry"
	"github.com/zsiec/framesync/pkg/version"
	"golang.org/x/sync/errgroup"
)

func main() {
	fs := pflag.NewFlagSet("framesync", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	showVersion := fs.Bool("version", false, "Show version information")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	// Show version and exit if requested
	if *showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	base, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cfg.Dashboard.Enabled && (cfg.Logging.Output == "stdout" || cfg.Logging.Output == "stderr") {
		// The dashboard owns the terminal
		base.SetOutput(io.Discard)
	}
	log := logger.ForService(base)

	log.WithField("version", version.GetInfo().Short()).Info("Starting framesync playback simulator")
	log.WithField("config_path", *configPath).Debug("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, base, log); err != nil {
		log.WithError(err).Error("Playback failed")
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, base *logrus.Logger, log logger.Logger) error {
	var (
		budget     pool.Budget
		controller *memory.Controller
	)
	if cfg.Playback.Memory.MaxTotal > 0 {
		controller = memory.NewController(cfg.Playback.Memory.MaxTotal, cfg.Playback.Memory.MaxPerPool)
		budget = controller
	}

	session, err := simulate.NewSession(cfg, budget, log)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addresses[0],
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.WithError(err).Error("Failed to close Redis connection")
			}
		}()

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Telemetry is best effort; the health check reports the outage
			log.WithError(err).Warn("Redis is not reachable")
		} else {
			log.Info("Connected to Redis successfully")
		}
	}

	healthMgr := health.NewManager(log)
	healthMgr.Register(health.NewPoolChecker(session.Pool))
	if controller != nil {
		healthMgr.Register(health.NewMemoryChecker(controller, 0.9))
	}
	if redisClient != nil {
		healthMgr.Register(health.NewRedisChecker(redisClient))
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// The session ending stops everything else
		defer cancel()
		err := session.Run(runCtx)
		if simulate.IsShutdown(err) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		healthMgr.StartPeriodicChecks(runCtx, 5*time.Second)
		return nil
	})

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(runCtx, cfg.Metrics, log)
		})
	}

	if cfg.Server.Enabled {
		srv := server.New(&cfg.Server, base, healthMgr, session.Pool, session.Engine, session.Reset)
		g.Go(func() error {
			return srv.Start(runCtx)
		})
	}

	if cfg.Telemetry.Enabled && redisClient != nil {
		pub := telemetry.NewPublisher(redisClient, session.ID, session.Pool, session.Engine, cfg.Telemetry, log)
		g.Go(func() error {
			return pub.Run(runCtx)
		})
	}

	if cfg.Dashboard.Enabled {
		started := time.Now()
		collect := func() dashboard.Stats {
			frames, ticks := session.Presenter.Presented()
			return dashboard.Stats{
				SessionID: session.ID,
				Pool:      session.Pool.Snapshot(),
				Sync:      session.Engine.Stats(),
				Presented: frames,
				Ticks:     ticks,
				Restarts:  session.Restarts(),
				Elapsed:   time.Since(started),
			}
		}
		g.Go(func() error {
			// Quitting the dashboard ends the run
			defer cancel()
			return dashboard.Run(runCtx, dashboard.New(collect, cfg.Dashboard.RefreshInterval))
		})
	}

	return g.Wait()
}

// serveMetrics serves the Prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, cfg config.MetricsConfig, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.WithField("addr", addr).Info("Starting metrics server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// A dead metrics endpoint does not stop playback
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Metrics server error")
	}
	return nil
}
