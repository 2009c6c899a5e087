// Package main implements the vehicle pricing API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/engine/pricing"
	"github.com/WessleyAI/wessley-pricing/engine/store"
	"github.com/WessleyAI/wessley-pricing/pkg/auth"
	"github.com/WessleyAI/wessley-pricing/pkg/fn"
	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
	"github.com/WessleyAI/wessley-pricing/pkg/natsutil"
	"github.com/WessleyAI/wessley-pricing/pkg/resilience"
)

const serviceName = "wessley-pricing"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	// --- Artifacts ---
	arts := artifact.NewStore(cfg.artifactPaths(), reg, logger)
	if cfg.WarmArtifacts {
		if err := arts.EnsureLoaded(ctx); err != nil {
			return fmt.Errorf("warm artifacts: %w", err)
		}
	}

	// --- Postgres ---
	if cfg.MigrateOnStart {
		v, err := store.Migrate(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		logger.Info("database migrated", "version", v)
	}
	db, err := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[*sqlx.DB] {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("database not reachable", "err", err)
		}
		return fn.FromPair(db, err)
	}).Unwrap()
	if err != nil {
		return err
	}
	defer db.Close()

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.tokenTTL())
	if err != nil {
		return err
	}

	// --- NATS (optional) ---
	var events *natsutil.Publisher[store.PredictionCreated]
	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(ctx, cfg.NATSURL, serviceName, fn.DefaultRetry, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		events = natsutil.NewPublisher[store.PredictionCreated](nc, store.SubjectPredictionCreated, newEventBreaker(reg, logger), reg, logger)
	}

	srv := &server{
		predictor:   pricing.NewPredictor(arts, reg, logger),
		users:       store.NewUsers(db),
		predictions: store.NewPredictions(db),
		events:      events,
		tokens:      tokens,
		ready:       func() bool { return arts.Stats().Ready() },
		reg:         reg,
		logger:      logger,
	}

	// --- gRPC health ---
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go func() {
		logger.Info("grpc health server starting", "port", cfg.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "err", err)
		}
	}()
	go warmUp(ctx, arts, healthSrv, logger)

	// --- HTTP ---
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			grpcSrv.Stop()
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	healthSrv.Shutdown()
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpSrv.Shutdown(shutCtx)
	grpcSrv.GracefulStop()
	return err
}

// warmUp loads the artifacts if they are not in memory yet and flips the
// gRPC health status to SERVING once they are.
func warmUp(ctx context.Context, arts *artifact.Store, hs *health.Server, logger *slog.Logger) {
	if err := arts.EnsureLoaded(ctx); err != nil {
		logger.Error("artifact warm-up failed", "err", err)
		return
	}
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
}

// newEventBreaker guards event publication and exports its state.
func newEventBreaker(reg *metrics.Registry, logger *slog.Logger) *resilience.Breaker {
	state := reg.Gauge("event_breaker_state", "Event publisher circuit state (0 closed, 1 open, 2 half-open).")
	opts := resilience.DefaultBreakerOpts
	opts.OnStateChange = func(from, to resilience.State) {
		state.WithLabelValues().Set(float64(to))
		logger.Warn("event breaker state changed", "from", from.String(), "to", to.String())
	}
	return resilience.NewBreaker(opts)
}
