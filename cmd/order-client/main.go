// Command order-client runs the cart and order tracking core behind a local
// HTTP API for the UI shell.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/config"
	orchestrator "github.com/dmehra2102/Order-Lifecycle-Core/internal/orchestrator/application"
	redemptionapp "github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/application"
	redemption "github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/domain"
	carthttp "github.com/dmehra2102/Order-Lifecycle-Core/internal/redemption/infrastructure/http"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/session"
	trackerapp "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/application"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/domain"
	trackergrpc "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/grpc"
	trackerhttp "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/http"
	trackerkafka "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/kafka"
	trackerpg "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/postgres"
	trackerredis "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/redis"
	trackerws "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/websocket"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/idempotency"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/logging"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/metrics"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/shutdown"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/tracing"
)

type runnableChannel interface {
	trackerapp.EventChannel
	Run(ctx context.Context) error
}

func main() {
	cfgPath := env("CONFIG_PATH", defaultConfigPath())
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.New("info").Error("config load failed", "path", cfgPath, "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-client", cfg.Tracing.Endpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	sess, err := session.New(cfg, cfgPath)
	if err != nil {
		log.Error("session init failed", "err", err)
		os.Exit(1)
	}
	log = log.With("device_id", sess.DeviceID())

	var rdb *redis.Client
	if cfg.Snapshot.Backend == config.SnapshotRedis || cfg.Channel.Kind == config.ChannelKafka {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Snapshot.RedisAddr})
		defer rdb.Close()
	}

	// Snapshot store
	var store trackerapp.SnapshotStore
	switch cfg.Snapshot.Backend {
	case config.SnapshotPostgres:
		pool, err := pgxpool.New(ctx, cfg.Snapshot.PGURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		pgStore := trackerpg.NewSnapshotStore(log, pool, sess.DeviceID())
		if err := pgStore.Migrate(ctx); err != nil {
			log.Error("snapshot migrate failed", "err", err)
			os.Exit(1)
		}
		store = pgStore
	default:
		store = trackerredis.NewSnapshotStore(log, rdb, sess.DeviceID())
	}

	// Status channel
	var channel runnableChannel
	switch cfg.Channel.Kind {
	case config.ChannelWebsocket:
		channel = trackerws.NewChannel(log, cfg.Channel.WebsocketURL, cfg.Channel.ReconnectBackoff)
	default:
		reader := trackerkafka.NewReader(cfg.Channel.KafkaBrokers, cfg.Channel.Topic, "order-client-"+sess.DeviceID())
		idem := idempotency.NewStore(rdb, sess.DeviceID(), cfg.Channel.DedupeTTL)
		channel = trackerkafka.NewChannel(log, reader, idem)
	}

	// Remote order service
	orders, conn, err := trackergrpc.NewOrderClient(log, cfg.OrderService.Addr, trackergrpc.WithCallTimeout(cfg.OrderService.Timeout))
	if err != nil {
		log.Error("order service client failed", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	hub := trackerhttp.NewUIHub(log)
	tracker := trackerapp.NewTracker(log, store, channel, orders, sess, hub)
	engine := redemptionapp.NewEngine(log, redemption.EarnPolicy{PointsPerPaidUnit: cfg.Loyalty.PointsPerPaidUnit})
	coordinator := orchestrator.NewCoordinator(log, engine, tracker, sess)

	if err := tracker.Recover(ctx); err != nil {
		if errors.Is(err, domain.ErrStaleSnapshot) {
			log.Warn("stale order snapshot discarded", "err", err)
		} else {
			log.Error("order recovery failed", "err", err)
		}
	}

	// Consume only once the recovered order is watched.
	go func() {
		if err := channel.Run(ctx); err != nil {
			log.Error("status channel stopped", "err", err)
			cancel()
		}
	}()

	shutdown.OnSignal(ctx, func(ctx context.Context, sig os.Signal) {
		switch sig {
		case syscall.SIGUSR1:
			if err := tracker.PersistOnSuspend(ctx); err != nil {
				log.Error("suspend persist failed", "err", err)
			}
		case syscall.SIGUSR2:
			if err := tracker.Resume(ctx); err != nil {
				log.Warn("resume reconciliation", "err", err)
			}
		}
	}, syscall.SIGUSR1, syscall.SIGUSR2)

	// HTTP server
	r := chi.NewRouter()
	carthttp.NewHandler(log, engine, coordinator).Register(r)
	trackerhttp.NewHandler(log, tracker, sess, hub).Register(r)
	r.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     r,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tracker.PersistOnSuspend(shutdownCtx); err != nil {
		log.Error("persist on shutdown failed", "err", err)
	}
	_ = srv.Shutdown(shutdownCtx)
	log.Info("order-client shutdown complete")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "client.yaml"
	}
	return filepath.Join(home, ".orderflow", "client.yaml")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
