// Package main runs the flash loan executor service:
//   - stores (memory or Postgres, optional ClickHouse analytics mirror)
//   - chain access (gas polling on a cron schedule, new-head subscription, oracle)
//   - the in-process execution environment
//   - the read-only HTTP query API with Prometheus metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flashloan-executor/internal/api"
	"flashloan-executor/internal/chain"
	"flashloan-executor/internal/config"
	"flashloan-executor/internal/events"
	"flashloan-executor/internal/logging"
	"flashloan-executor/internal/metrics"
	"flashloan-executor/internal/observability"
	"flashloan-executor/internal/oracle"
	"flashloan-executor/internal/sandbox"
	"flashloan-executor/internal/scheduler"
	"flashloan-executor/internal/storage"
	chstore "flashloan-executor/internal/storage/clickhouse"
	"flashloan-executor/internal/storage/memory"
	"flashloan-executor/internal/storage/migrations"
	pgstore "flashloan-executor/internal/storage/postgres"
)

var version = "dev"

func main() {
	cfgPath := flag.String("config", envOr("FLE_CONFIG", "config/config.yaml"), "YAML config file")
	envOnly := flag.Bool("env-only", false, "Ignore the config file and read FLE_ environment variables only")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, *envOnly)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	stores, closeStores, err := createStores(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer closeStores()

	publisher, closePublisher, err := createPublisher(ctx, cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer closePublisher()

	deps := sandbox.Deps{
		Strategies: stores.strategies,
		Executions: stores.executions,
		Mirror:     stores.mirror,
		Profits:    stores.profits,
		Publisher:  publisher,
		Logger:     logger,
	}

	cron := scheduler.New(ctx, logger.Named("scheduler"))
	defer cron.Stop()

	if cfg.Chain.RPCEndpoint != "" {
		rpc, err := chain.NewHTTPClient(cfg.Chain.RPCEndpoint,
			chain.WithTimeout(cfg.Chain.RequestTimeout),
			chain.WithMaxRetries(cfg.Chain.MaxRetries),
		)
		if err != nil {
			return fmt.Errorf("create rpc client: %w", err)
		}
		defer rpc.Close()
		deps.Gas = chain.NewGasTracker(rpc, logger.Named("gas"))
		if err := cron.ScheduleGasPolling(cfg.Chain.GasPollSpec, deps.Gas); err != nil {
			return fmt.Errorf("schedule gas polling: %w", err)
		}
		if cfg.Chain.OracleAddress != "" {
			deps.Prices = oracle.NewRPCOracle(rpc, common.HexToAddress(cfg.Chain.OracleAddress))
		}
	}

	env, err := sandbox.Build(cfg, deps)
	if err != nil {
		return fmt.Errorf("build environment: %w", err)
	}
	observability.SetEmergencyStop(env.System.Governor.IsEmergencyStopped())

	if cfg.Chain.WSEndpoint != "" {
		ws, err := chain.NewWSClient(ctx, cfg.Chain.WSEndpoint, nil, logger.Named("ws"))
		if err != nil {
			return fmt.Errorf("connect ws: %w", err)
		}
		defer ws.Close()
		heads, err := ws.SubscribeNewHeads(ctx)
		if err != nil {
			return fmt.Errorf("subscribe new heads: %w", err)
		}
		go env.Gas.Follow(ctx, heads)
	}
	cron.Start()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.NewRouter(api.Options{
		System:    env.System,
		Registry:  env.Registry,
		Pool:      env.Pool,
		Quoter:    env.Adapter,
		Gas:       env.Gas,
		Stats:     metrics.NewAggregator(stores.executions),
		GasModel:  env.Executor.Gas(),
		Analytics: stores.analytics,
		Version:   version,
		Logger:    logger.Named("api"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// allStores holds the storage implementations selected by config.
type allStores struct {
	strategies storage.StrategyStore
	executions storage.ExecutionStore
	profits    storage.ProfitStore
	mirror     storage.ExecutionStore     // nil without ClickHouse
	analytics  storage.StrategyStatsStore // nil without ClickHouse
}

func createStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*allStores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	stores := &allStores{}
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		if cfg.Migrate {
			n, err := migrations.ApplyPostgres(ctx, pool)
			if err != nil {
				cleanup()
				return nil, func() {}, err
			}
			logger.Info("postgres migrations applied", zap.Int("count", n))
		}
		stores.strategies = pgstore.NewStrategyStore(pool)
		stores.executions = pgstore.NewExecutionStore(pool)
		stores.profits = pgstore.NewProfitStore(pool)
		logger.Info("using postgres storage")
	default:
		stores.strategies = memory.NewStrategyStore()
		stores.executions = memory.NewExecutionStore()
		stores.profits = memory.NewProfitStore()
		logger.Info("using in-memory storage")
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := openClickHouse(ctx, cfg.ClickHouseDSN, cfg.Migrate, logger)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		history := chstore.NewExecutionHistoryStore(conn)
		stores.mirror = history
		stores.analytics = history
		logger.Info("clickhouse analytics mirror enabled")
	}

	return stores, cleanup, nil
}

func openClickHouse(ctx context.Context, dsn string, migrate bool, logger *zap.Logger) (*chstore.Conn, error) {
	if migrate {
		if err := chstore.EnsureDatabase(ctx, dsn); err != nil {
			return nil, err
		}
	}
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if migrate {
		n, err := migrations.ApplyClickHouse(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		logger.Info("clickhouse migrations applied", zap.Int("count", n))
	}
	return conn, nil
}

func createPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (events.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		return events.Nop{}, func() {}, nil
	}
	amqpCfg := events.DefaultAMQPConfig(cfg.AMQPURL)
	if cfg.Queue != "" {
		amqpCfg.Queue = cfg.Queue
	}
	pub, err := events.NewAMQPPublisher(ctx, amqpCfg, logger.Named("events"))
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { _ = pub.Close() }, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
