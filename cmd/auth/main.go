package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/atrium-auth/internal/audit"
	"github.com/smallbiznis/atrium-auth/internal/bootstrap"
	"github.com/smallbiznis/atrium-auth/internal/config"
	httptransport "github.com/smallbiznis/atrium-auth/internal/http"
	"github.com/smallbiznis/atrium-auth/internal/http/handler"
	"github.com/smallbiznis/atrium-auth/internal/metrics"
	"github.com/smallbiznis/atrium-auth/internal/password"
	"github.com/smallbiznis/atrium-auth/internal/repository"
	"github.com/smallbiznis/atrium-auth/internal/server"
	"github.com/smallbiznis/atrium-auth/internal/service"
	"github.com/smallbiznis/atrium-auth/internal/telemetry"
	"github.com/smallbiznis/atrium-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRepositories,
			newTxManager,
			newTokenCodec,
			newHasher,
			newRedisClient,
			newAuditRecorder,
			newRegistry,
			newMetrics,
			newAuthService,
			handler.NewAuthHandler,
			newRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSystemAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	for _, warning := range cfg.ExpiryWarnings {
		logger.Warn("suspect token TTL value, using default", zap.String("value", warning))
	}
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRepositories(pool *pgxpool.Pool) repository.Repositories {
	return repository.NewRepositories(pool)
}

func newTxManager(pool *pgxpool.Pool) repository.TxManager {
	return repository.NewPgxTxManager(pool)
}

func newTokenCodec(cfg config.Config) (*token.Codec, error) {
	return token.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newHasher(cfg config.Config) *password.Hasher {
	return password.NewHasher(password.Params{
		MemoryKiB:   uint32(cfg.HashMemoryKiB),
		Iterations:  uint32(cfg.HashIterations),
		Parallelism: uint8(cfg.HashParallelism),
		SaltLength:  uint32(cfg.HashSaltLength),
		KeyLength:   uint32(cfg.HashKeyLength),
	})
}

// newRedisClient connects to Redis when REDIS_ADDR is set. Redis only backs
// the audit stream sink, so an unset address yields a nil client rather than
// a startup failure.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newAuditRecorder(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool, client redis.UniversalClient, reg *prometheus.Registry, logger *zap.Logger) audit.Recorder {
	sinks := []audit.Sink{
		audit.NewZapSink(logger),
		audit.NewPostgresSink(pool),
	}
	if client != nil {
		sinks = append(sinks, audit.NewRedisStreamSink(client, cfg.AuditStream))
	}
	dispatcher := audit.NewDispatcher(logger, cfg.AuditBuffer, sinks...)
	metrics.RegisterAuditDropped(reg, dispatcher.Dropped)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			dispatcher.Close()
			return nil
		},
	})
	return dispatcher
}

func newRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func newAuthService(
	cfg config.Config,
	repos repository.Repositories,
	tx repository.TxManager,
	codec *token.Codec,
	hasher *password.Hasher,
	recorder audit.Recorder,
	m *metrics.Metrics,
	node *snowflake.Node,
	logger *zap.Logger,
) *service.AuthService {
	return service.NewAuthService(repos, tx, codec, hasher, recorder, m, node, cfg.AutoActivate, logger)
}

func newRouter(cfg config.Config, authHandler *handler.AuthHandler, auth *service.AuthService, reg *prometheus.Registry) *gin.Engine {
	return httptransport.NewRouter(cfg, authHandler, auth, reg)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
