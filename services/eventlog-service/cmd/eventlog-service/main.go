package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/seqlog/libs/auth"
	"github.com/md-rashed-zaman/seqlog/libs/controlrpc"
	"github.com/md-rashed-zaman/seqlog/libs/db"
	"github.com/md-rashed-zaman/seqlog/libs/eventstore"
	"github.com/md-rashed-zaman/seqlog/libs/grpcx"
	"github.com/md-rashed-zaman/seqlog/libs/httpx"
	"github.com/md-rashed-zaman/seqlog/libs/kafkax"
	otelx "github.com/md-rashed-zaman/seqlog/libs/otel"
	"github.com/md-rashed-zaman/seqlog/libs/runtime"
	"github.com/md-rashed-zaman/seqlog/libs/subscription"
	"github.com/md-rashed-zaman/seqlog/services/eventlog-service/internal/config"
	"github.com/md-rashed-zaman/seqlog/services/eventlog-service/internal/handlers"
	"github.com/md-rashed-zaman/seqlog/services/eventlog-service/internal/sinks"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName, runtime.LogOptions{Level: cfg.LogLevel, OTel: cfg.OTelLogs})
	if err := run(cfg, logger); err != nil {
		logger.Error("eventlog-service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		otelShutdown = nil
	}

	file, err := config.LoadFile(cfg.SubscriptionsFile)
	if err != nil {
		return err
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{
		MaxConns:         int32(cfg.DBMaxConns),
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()

	if cfg.DBMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	deps := sinks.Deps{Logger: logger}
	var closers []func(context.Context) error

	if file.NeedsKafka() {
		if cfg.KafkaBrokers == "" {
			return errors.New("kafka sinks configured but KAFKA_BROKERS is empty")
		}
		writer := sinks.NewKafkaWriter(cfg.KafkaBrokers)
		deps.Kafka = writer
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
		closers = append(closers, func(context.Context) error { return writer.Close() })
	}

	if file.NeedsRedis() && cfg.RedisAddr == "" {
		return errors.New("redis sinks configured but REDIS_ADDR is empty")
	}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		deps.Redis = rdb
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		closers = append(closers, func(context.Context) error { return rdb.Close() })
	}

	appender := eventstore.NewAppender(pool, logger)
	projector := eventstore.NewProjector(pool, logger, cfg.PageSize)
	container := subscription.NewContainer(subscription.NewComponent(pool, logger), logger)
	for _, spec := range file.Subscriptions {
		subCfg, intervals, err := sinks.Build(spec, deps)
		if err != nil {
			return err
		}
		if err := container.Add(subCfg, intervals); err != nil {
			return err
		}
	}

	var validator eventstore.Validator
	if len(file.EventTypes) > 0 {
		registry := eventstore.NewTypeRegistry()
		for _, t := range file.EventTypes {
			registry.Register(eventstore.EventName(t.Name), t.Required...)
		}
		validator = registry
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(appender, projector, container, validator, logger).Register(mux, handlers.Guards{
		Append:  httpx.WithBearerAuth(cfg.JWTSecret, auth.RoleWriter, auth.RoleAdmin),
		Operate: httpx.WithBearerAuth(cfg.JWTSecret, auth.RoleOperator, auth.RoleAdmin),
		Read:    httpx.WithBearerAuth(cfg.JWTSecret),
	})

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
	}
	if cfg.RateLimit > 0 {
		limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow, "seqlog:ratelimit")
		middleware = append(middleware, limiter.Middleware(logger, true, http.MethodPost))
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpx.Chain(mux, middleware...), "eventlog"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	container.Start(ctx)

	grpcSrv := grpcx.NewServer(logger)
	controlrpc.RegisterControlServer(grpcSrv, controlrpc.NewServer(container))
	if err := grpcx.Serve(ctx, logger, grpcSrv, ":"+cfg.GRPCPort); err != nil {
		container.Stop()
		return fmt.Errorf("grpc server failed to start: %w", err)
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "subscriptions", container.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdown := []func(context.Context) error{
		srv.Shutdown,
		func(context.Context) error {
			container.Stop()
			return nil
		},
	}
	shutdown = append(shutdown, closers...)
	shutdown = append(shutdown, otelShutdown)
	return runtime.Shutdown(10*time.Second, shutdown...)
}
