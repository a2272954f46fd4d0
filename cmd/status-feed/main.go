// Command status-feed is the development order backend. It serves the order
// API over gRPC and lets an operator advance orders, pushing every status
// change to Kafka and to websocket clients.
package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/application"
	ordergrpc "github.com/dmehra2102/Order-Lifecycle-Core/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/Order-Lifecycle-Core/internal/order/infrastructure/http"
	"github.com/dmehra2102/Order-Lifecycle-Core/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/Order-Lifecycle-Core/internal/order/infrastructure/postgres"
	trackergrpc "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/grpc"
	trackerkafka "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/kafka"
	trackerws "github.com/dmehra2102/Order-Lifecycle-Core/internal/tracker/infrastructure/websocket"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/logging"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/metrics"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/outbox"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/shutdown"
	"github.com/dmehra2102/Order-Lifecycle-Core/pkg/tracing"
)

func main() {
	log := logging.New(env("LOG_LEVEL", "info"))

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	// Configuration
	pgURL := env("PG_URL", "")
	kafkaBrokers := strings.Split(env("KAFKA_ADDR", "localhost:9092"), ",")
	topic := env("STATUS_TOPIC", "order.status")
	otlp := env("OTLP_ENDPOINT", "")
	httpAddr := env("HTTP_ADDR", ":8090")
	grpcAddr := env("GRPC_ADDR", ":9090")

	tp, err := tracing.Init(ctx, "status-feed", otlp, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	writer := trackerkafka.NewWriter(kafkaBrokers)
	writer.AllowAutoTopicCreation = true
	defer writer.Close()

	feed := trackerws.NewFeed(log)

	var (
		repo     application.OrderRepository
		kafkaPub application.StatusPublisher
	)
	if pgURL == "" {
		log.Info("running without postgres: orders kept in memory, kafka published directly")
		repo = memory.NewRepository()
		kafkaPub = trackerkafka.NewPublisher(log, writer, topic)
	} else {
		pool, err := pgxpool.New(ctx, pgURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		pgRepo := orderpg.NewRepository(log, pool)
		store := orderpg.NewOutboxStore(log, pool)
		if err := pgRepo.Migrate(ctx); err != nil {
			log.Error("migrate failed", "err", err)
			os.Exit(1)
		}
		if err := store.Migrate(ctx); err != nil {
			log.Error("migrate failed", "err", err)
			os.Exit(1)
		}
		repo, kafkaPub = pgRepo, store

		relay := outbox.NewRelay(log, store, outbox.NewDispatcher(log, writer, topic), "status-feed-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	}

	svc := application.NewService(log, repo, application.Publishers{kafkaPub, feed})

	gs, err := trackergrpc.Run(grpcAddr, ordergrpc.NewServer(svc))
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	defer gs.GracefulStop()
	log.Info("grpc listening", "addr", grpcAddr)

	// HTTP server
	r := chi.NewRouter()
	r.Mount("/", orderhttp.NewHandler(log, svc).Routes())
	r.Handle("/feed", feed)
	r.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:        httpAddr,
		Handler:     r,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	feed.CloseAll()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("status-feed shutdown complete")
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
