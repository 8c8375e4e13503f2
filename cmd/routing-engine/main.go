// Command routing-engine runs the multi-tenant voice-call routing engine:
// the carrier webhook HTTP server, the orphaned-session retention sweep, and
// the cache-invalidation gRPC listener, sharing one Postgres pool and one
// Redis-backed coordination store.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/cloudonix/voicerouter/internal/api"
	"github.com/cloudonix/voicerouter/internal/config"
	"github.com/cloudonix/voicerouter/internal/events"
	"github.com/cloudonix/voicerouter/internal/idempotency"
	"github.com/cloudonix/voicerouter/internal/pgstore"
	"github.com/cloudonix/voicerouter/internal/routing"
	"github.com/cloudonix/voicerouter/internal/rpc"
	"github.com/cloudonix/voicerouter/internal/statemachine"
	"github.com/cloudonix/voicerouter/internal/store"
	"github.com/cloudonix/voicerouter/internal/sweep"
	"github.com/cloudonix/voicerouter/internal/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// routingRepo combines the two relational repos that together satisfy
// routing.Repository — agents/groups live in AgentRepo, rules/trunks in
// RuleRepo, and neither alone covers the full interface.
type routingRepo struct {
	*pgstore.AgentRepo
	*pgstore.RuleRepo
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", ""), "Path to YAML config file")
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		log.Printf("no .env file loaded from %s: %v", *envPath, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgstore.Open(ctx, pgstore.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database pool", "error", err)
		}
	}()
	logger.Info("connected to postgres", "host", cfg.Database.Host, "database", cfg.Database.Database)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Addr,
		Password: cfg.Store.Password,
		DB:       cfg.Store.DB,
		PoolSize: cfg.Store.PoolSize,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis client", "error", err)
		}
	}()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to reach redis: %v", err)
	}
	logger.Info("connected to redis", "addr", cfg.Store.Addr)

	coord := store.New(rdb, cfg.Store.CallTimeout)

	tenants := pgstore.NewTenantRepo(db)
	agents := pgstore.NewAgentRepo(db)
	rules := pgstore.NewRuleRepo(db)
	sessions := pgstore.NewSessionRepo(db)
	cdrs := pgstore.NewCDRRepo(db)

	repo := routingRepo{AgentRepo: agents, RuleRepo: rules}
	cachedRepo := routing.NewCachedRepository(repo, 30*time.Second)

	machine := statemachine.New(coord, sessions, cfg.Store.SessionTTL)
	ledger := idempotency.New(coord, cfg.Store.IdempotentTTL)
	engine := routing.New(cachedRepo, coord, logger)
	pub := events.New(coord, logger)

	pipeline := webhook.New(tenants, machine, ledger, engine, cdrs, cdrs, pub, coord, logger)

	sweeper := sweep.New(sessions, machine, pub, cfg.Sweep.Interval, cfg.Sweep.Threshold, logger)
	if cfg.Sweep.Enabled {
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	httpServer := api.NewServer()
	httpServer.SetTenantReader(tenants)
	httpServer.SetSessionReader(sessions)
	httpServer.SetPipeline(pipeline)
	httpServer.SetDB(db)
	httpServer.SetStore(coord)
	if err := httpServer.ValidateWiring(); err != nil {
		log.Fatalf("http server wiring incomplete: %v", err)
	}

	grpcServer := grpc.NewServer()
	rpc.Register(grpcServer, rpc.NewServer(cachedRepo))

	grpcListener, err := net.Listen("tcp", cfg.RPC.Addr)
	if err != nil {
		log.Fatalf("failed to listen for grpc on %s: %v", cfg.RPC.Addr, err)
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("grpc server listening", "addr", cfg.RPC.Addr)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
