package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"visitproof/internal/geo"
	"visitproof/internal/platform/config"
	"visitproof/internal/platform/database"
	"visitproof/internal/platform/health"
	"visitproof/internal/platform/httpserver"
	"visitproof/internal/platform/kafka"
	"visitproof/internal/platform/kafka/consumer"
	"visitproof/internal/platform/kafka/producer"
	"visitproof/internal/platform/logger"
	"visitproof/internal/platform/redis"
	"visitproof/internal/stamps/catalog"
	"visitproof/internal/stamps/handler"
	"visitproof/internal/stamps/issuance"
	"visitproof/internal/stamps/ledger"
	"visitproof/internal/stamps/metrics"
	"visitproof/internal/stamps/reconcile"
	"visitproof/internal/stamps/store"
	httptransport "visitproof/internal/transport/http"
	"visitproof/pkg/platform/circuit"
	"visitproof/pkg/platform/middleware/auth"
	"visitproof/pkg/platform/middleware/request"
	"visitproof/pkg/platform/tracer"
)

const (
	shutdownTimeout          = 30 * time.Second
	reconciliationPartitions = 3
)

// stampStore is what every stamps component needs from persistence.
type stampStore interface {
	issuance.CredentialStore
	catalog.Store
	reconcile.Store
}

// infra holds the optional backing services so main can close what it opened.
type infra struct {
	pool     *database.Pool
	redis    *redis.Client
	producer *producer.Producer
	consumer *consumer.Consumer
	rpcClose func()
}

func (i *infra) close(log *slog.Logger) {
	if i.consumer != nil {
		i.consumer.Close()
	}
	if i.producer != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := i.producer.Close(flushCtx); err != nil {
			log.Error("failed to close kafka producer", "error", err)
		}
	}
	if i.rpcClose != nil {
		i.rpcClose()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Error("failed to close redis", "error", err)
		}
	}
	if err := i.pool.Close(); err != nil {
		log.Error("failed to close database", "error", err)
	}
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log.Info("initializing visitproof",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"location_verification", cfg.Geo.Enabled,
		"ledger_configured", cfg.Ledger.Configured(),
	)

	res := &infra{}
	defer res.close(log)

	stampMetrics := metrics.New()
	healthHandler := health.New(cfg.Environment)

	st, err := buildStore(ctx, cfg, log, res, healthHandler)
	if err != nil {
		return err
	}
	cache, err := buildCatalogCache(ctx, cfg, log, res, healthHandler)
	if err != nil {
		return err
	}
	chain, err := buildLedger(ctx, cfg, log, res, healthHandler)
	if err != nil {
		return err
	}

	issuanceTracer := tracer.NewOTel("issuance")
	notifier, err := buildReconciliation(ctx, cfg, log, res, healthHandler, st, chain, stampMetrics)
	if err != nil {
		return err
	}

	verifier := geo.NewVerifier(geo.Config{
		Enabled:                 cfg.Geo.Enabled,
		MaxDistanceMeters:       cfg.Geo.MaxDistanceMeters,
		AccuracyThresholdMeters: cfg.Geo.AccuracyThresholdMeters,
	})
	orchestrator := issuance.New(st, chain, verifier,
		issuance.WithClaimTimeout(cfg.Ledger.ClaimTimeout),
		issuance.WithNotifier(notifier),
		issuance.WithMetrics(stampMetrics),
		issuance.WithTracer(issuanceTracer),
		issuance.WithLogger(log),
	)
	catalogService := catalog.NewService(st, cache,
		catalog.WithMetrics(stampMetrics),
		catalog.WithLogger(log),
		catalog.WithExplorerURL(cfg.Ledger.ExplorerURL),
	)

	var holders auth.HolderValidator
	if cfg.Auth.HolderTokenSigningKey != "" {
		holders = auth.NewHolderTokens(cfg.Auth.HolderTokenSigningKey, cfg.Auth.HolderTokenIssuer)
	} else {
		log.Warn("holder tokens disabled, holder ids are taken from request bodies")
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        request.NewMetrics(),
		Health:         healthHandler,
		Routes: []httptransport.Registrar{
			handler.New(orchestrator, catalogService, holders, log, cfg.Ledger.ExplorerURL),
		},
	})
	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if res.consumer != nil {
		g.Go(func() error {
			log.Info("starting reconciliation worker", "topic", cfg.Kafka.ReconciliationTopic)
			return res.consumer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		// Claims whose caller left still owe a store write.
		if err := orchestrator.Wait(shutdownCtx); err != nil {
			log.Error("detached issuances did not finish before shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger, res *infra, h *health.Handler) (stampStore, error) {
	pool, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if pool == nil {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	res.pool = pool

	if err := database.Migrate(ctx, pool.DB()); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	h.RegisterCheck("database", pool.Health)
	log.Info("database connected")
	return store.NewPostgres(pool.DB()), nil
}

func buildCatalogCache(ctx context.Context, cfg config.Server, log *slog.Logger, res *infra, h *health.Handler) (catalog.Cache, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		log.Info("REDIS_URL not set, using in-process catalog cache")
		return catalog.NewMemoryCache(cfg.Redis.CatalogTTL), nil
	}
	res.redis = client
	h.RegisterOptionalCheck("redis", client.Health)
	return catalog.NewRedisCache(client.Client, cfg.Redis.CatalogTTL), nil
}

func buildLedger(ctx context.Context, cfg config.Server, log *slog.Logger, res *infra, h *health.Handler) (issuance.Ledger, error) {
	if !cfg.Ledger.Configured() {
		log.Warn("ledger not configured, credentials are issued in test mode")
		return ledger.Unconfigured{}, nil
	}

	breaker := circuit.New("ledger",
		circuit.WithFailureThreshold(5),
		circuit.WithCooldown(30*time.Second),
	)
	client, rpc, err := ledger.Dial(ctx, cfg.Ledger.RPCURL, ledger.Config{
		ContractAddress: cfg.Ledger.ContractAddress,
		SignerKey:       cfg.Ledger.SignerKey,
		ChainID:         cfg.Ledger.ChainID,
		Confirmations:   cfg.Ledger.Confirmations,
	}, ledger.WithBreaker(breaker), ledger.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("connect ledger: %w", err)
	}
	res.rpcClose = rpc.Close
	h.RegisterCheck("ledger", func(ctx context.Context) error {
		_, err := rpc.BlockNumber(ctx)
		return err
	})
	log.Info("ledger connected",
		"chain_id", cfg.Ledger.ChainID,
		"contract", cfg.Ledger.ContractAddress,
		"signer", client.SignerAddress(),
	)
	return client, nil
}

// buildReconciliation returns the notifier the orchestrator reports to and,
// when Kafka is configured, prepares the worker that backfills the store.
func buildReconciliation(
	ctx context.Context,
	cfg config.Server,
	log *slog.Logger,
	res *infra,
	h *health.Handler,
	st stampStore,
	chain reconcile.Ledger,
	m *metrics.Metrics,
) (issuance.Notifier, error) {
	if cfg.Kafka.Brokers == "" {
		log.Warn("KAFKA_BROKERS not set, reconciliation events are only logged")
		return reconcile.NewLogNotifier(log), nil
	}

	topic := cfg.Kafka.ReconciliationTopic
	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, topic, reconciliationPartitions, 1); err != nil {
		return nil, fmt.Errorf("ensure reconciliation topic: %w", err)
	}

	prod, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	res.producer = prod
	h.RegisterOptionalCheck("kafka", prod.Health)

	worker := reconcile.NewWorker(st, chain, m, tracer.NewOTel("reconcile"), log)
	cons, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroup,
		Topics:  []string{topic},
	}, worker, log)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	res.consumer = cons

	return reconcile.NewKafkaNotifier(prod, topic), nil
}
