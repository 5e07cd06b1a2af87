package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/analytics/snapshots"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/service"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/static-site-search/pkg/sqlite"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"base_url", cfg.Resources.BaseURL,
		"store", cfg.Store.Backend,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	svc, err := service.New(cfg, m)
	if err != nil {
		slog.Error("failed to build search pipeline", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator(nil)
	var tracker analytics.Tracker = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Search.AnalyticsBuffer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		// Every replica must see every announcement, so each joins its own group.
		triggerCfg := cfg.Kafka
		triggerCfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-reload-" + uuid.NewString()
		trigger := kafka.NewConsumer(triggerCfg, cfg.Kafka.Topics.IndexPublished, svc.Loader.PublishedHandler(svc.BaseURL))
		go func() {
			if err := trigger.Start(ctx); err != nil {
				slog.Error("index-published consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
			"reload_topic", cfg.Kafka.Topics.IndexPublished,
		)
	}

	if cfg.Analytics.Snapshots != "" {
		db, dialect, closeDB, err := openSnapshotDB(cfg)
		if err != nil {
			slog.Warn("analytics snapshots disabled", "error", err)
		} else {
			defer closeDB()
			snaps, err := snapshots.New(ctx, db, dialect)
			if err != nil {
				slog.Warn("analytics snapshots disabled", "error", err)
			} else {
				saved := snaps.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
				defer func() { <-saved }()
			}
		}
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st := svc.Loader.State()
		if snap := svc.Index.Current(); snap != nil {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%s: %d terms, %d documents", st, len(snap.Terms), len(snap.URLs)),
			}
		}
		msg := st.String()
		if err := svc.Loader.LastError(); err != nil {
			msg += ": " + err.Error()
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: msg}
	})
	checker.Register("store", func(ctx context.Context) health.ComponentHealth {
		if err := svc.Store.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: cfg.Store.Backend}
	})
	checker.RegisterOptional("origin", func(ctx context.Context) health.ComponentHealth {
		state := svc.Origin.BreakerState()
		if state == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDown, Message: "circuit open"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "circuit " + state.String()}
	})
	if cfg.Kafka.Enabled {
		checker.RegisterOptional("kafka", func(ctx context.Context) health.ComponentHealth {
			if err := kafka.Ping(ctx, cfg.Kafka.Brokers); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := handler.New(svc.Engine, svc.Loader, tracker, cfg.Search)
	var reload http.Handler
	if cfg.Admin.Token != "" {
		reload = middleware.AdminToken(cfg.Admin.Token)(http.HandlerFunc(h.Reload))
	}

	mux := http.NewServeMux()
	h.Routes(mux, reload)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Search.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(cfg.Search.RateLimit, cfg.Search.RateLimitWindow, nil))(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *grpc.Server
	if cfg.RPC.Enabled {
		rpcServer = grpc.NewServer(apperrors.HTTPStatusCode)
		h.RegisterRPC(rpcServer)
		go func() {
			if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	if cfg.Resources.LoadOnStart {
		go func() {
			if err := svc.Loader.Load(ctx); err != nil {
				slog.Error("initial index load failed", "error", err)
			}
		}()
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if rpcServer != nil {
			rpcServer.Stop()
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped

	slog.Info("search service stopped")
}

func openSnapshotDB(cfg *config.Config) (*sql.DB, snapshots.Dialect, func() error, error) {
	switch cfg.Analytics.Snapshots {
	case "postgres":
		c, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, snapshots.Dialect{}, nil, err
		}
		return c.DB, snapshots.Postgres, c.Close, nil
	default:
		c, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, snapshots.Dialect{}, nil, err
		}
		return c.DB, snapshots.SQLite, c.Close, nil
	}
}
