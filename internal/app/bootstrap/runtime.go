// Package bootstrap wires the shared runtime every pipeline binary starts
// from: env config, logger, Postgres pool, store, metrics registry and the
// ops HTTP server.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/northstaff/hragent/internal/config"
	"github.com/northstaff/hragent/internal/observability/metrics"
	"github.com/northstaff/hragent/internal/ops"
	"github.com/northstaff/hragent/internal/store"
	"github.com/northstaff/hragent/pkg/logging"
)

// Runtime holds the pieces every binary needs before it builds its own
// pipeline on top.
type Runtime struct {
	Cfg      *config.Config
	Logger   *logging.Logger
	Pool     *pgxpool.Pool
	Store    *store.Store
	Registry *prometheus.Registry
	Metrics  *metrics.PipelineMetrics
}

// Init loads configuration, connects to Postgres and prepares the metrics
// registry. A missing .env file is not an error.
func Init(ctx context.Context) (*Runtime, error) {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	reg := prometheus.NewRegistry()
	return &Runtime{
		Cfg:      cfg,
		Logger:   logger,
		Pool:     pool,
		Store:    store.New(pool, logger),
		Registry: reg,
		Metrics:  metrics.NewPipelineMetrics(reg),
	}, nil
}

// Close releases the runtime's connections.
func (r *Runtime) Close() {
	r.Pool.Close()
}

// StartOps serves /healthz and /metrics in the background.
func (r *Runtime) StartOps() *http.Server {
	port, err := strconv.Atoi(r.Cfg.OpsPort)
	if err != nil {
		r.Logger.Warn("invalid OPS_PORT, using 9090", "value", r.Cfg.OpsPort)
		port = 9090
	}
	srv := ops.NewServer(port, r.Registry, r.Pool, r.Logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.Logger.Error("ops server failed", "error", err)
		}
	}()
	return srv
}

// BuildRedisClient returns a configured Redis client or nil when REDIS_ADDR
// is unset. When verify is true a ping is issued and failures return nil,
// letting callers degrade to their non-cached path.
func BuildRedisClient(ctx context.Context, cfg *config.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:      strings.TrimPrefix(cfg.RedisAddr, "redis://"),
		TLSConfig: redisTLS(cfg),
	})
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, continuing without cache", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func redisTLS(cfg *config.Config) *tls.Config {
	if !strings.Contains(cfg.RedisAddr, ":6380") {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// Fatal reports a startup failure and exits.
func Fatal(msg string, err error) {
	logging.Default().Error(msg, "error", err)
	os.Exit(1)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then stops the ops server
// and cancels the pipeline context.
func WaitForShutdown(cancel context.CancelFunc, opsSrv *http.Server, logger *logging.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	if opsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = opsSrv.Shutdown(shutdownCtx)
	}
}
