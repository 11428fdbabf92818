package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/kevin07696/transaction-orchestrator/internal/adapters/bolt"
	"github.com/kevin07696/transaction-orchestrator/internal/adapters/collaborators"
	"github.com/kevin07696/transaction-orchestrator/internal/adapters/iso8583"
	"github.com/kevin07696/transaction-orchestrator/internal/adapters/postgres"
	"github.com/kevin07696/transaction-orchestrator/internal/adapters/processor"
	"github.com/kevin07696/transaction-orchestrator/internal/adapters/secrets"
	"github.com/kevin07696/transaction-orchestrator/internal/adapters/webhook"
	"github.com/kevin07696/transaction-orchestrator/internal/config"
	"github.com/kevin07696/transaction-orchestrator/internal/domain"
	"github.com/kevin07696/transaction-orchestrator/internal/domain/ports"
	"github.com/kevin07696/transaction-orchestrator/internal/handlers/orchestration"
	"github.com/kevin07696/transaction-orchestrator/internal/middleware"
	"github.com/kevin07696/transaction-orchestrator/internal/services/amount"
	"github.com/kevin07696/transaction-orchestrator/internal/services/antifraud"
	"github.com/kevin07696/transaction-orchestrator/internal/services/capture"
	"github.com/kevin07696/transaction-orchestrator/internal/services/charge"
	"github.com/kevin07696/transaction-orchestrator/internal/services/deferred"
	"github.com/kevin07696/transaction-orchestrator/internal/services/events"
	"github.com/kevin07696/transaction-orchestrator/internal/services/idempotency"
	"github.com/kevin07696/transaction-orchestrator/internal/services/routing"
	"github.com/kevin07696/transaction-orchestrator/internal/services/tokenization"
	"github.com/kevin07696/transaction-orchestrator/internal/services/void"
	"github.com/kevin07696/transaction-orchestrator/pkg/httpclient"
	"github.com/kevin07696/transaction-orchestrator/pkg/observability"
	"github.com/kevin07696/transaction-orchestrator/pkg/resilience"
	"github.com/kevin07696/transaction-orchestrator/pkg/security"
	"github.com/kevin07696/transaction-orchestrator/pkg/shutdown"
)

const (
	shutdownTimeout    = 30 * time.Second
	poolStatsInterval  = 15 * time.Second
	healthCheckTimeout = 2 * time.Second
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC, REST and ops servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := security.NewLogger(cfg.Logger.Level, cfg.Logger.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return serve(cmd.Context(), cfg, logger, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply PostgreSQL migrations before serving")
	return cmd
}

// stores groups the persistence ports of the selected backend
type stores struct {
	transactions ports.TransactionStore
	tokens       ports.TokenStore
	merchants    ports.MerchantFetcher
	// bus receives events; the outbox in postgres mode, the webhook publisher otherwise
	bus ports.MessageBus
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) error {
	logger.Info("Starting transaction orchestrator",
		zap.String("version", Version),
		zap.String("store", cfg.Store.Driver),
		zap.String("secrets", cfg.Secrets.Backend),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	portLogger := security.NewZapLogger(logger)
	mgr := shutdown.NewManager(logger, shutdownTimeout)
	health := observability.NewHealthChecker(healthCheckTimeout)

	opsServer := observability.NewOpsServer(listenAddr(cfg.Server.Host, cfg.Server.OpsPort), health)
	mgr.Register("ops-server", opsServer.Shutdown)

	secretStore, err := secrets.New(ctx, cfg.Secrets, logger)
	if err != nil {
		return fmt.Errorf("secret store: %w", err)
	}
	apiKey, err := secrets.Value(ctx, secretStore, cfg.Collaborator.APIKeySecretPath, "")
	if err != nil {
		return fmt.Errorf("read collaborator api key: %w", err)
	}
	signingKey, err := secrets.Value(ctx, secretStore, cfg.Collaborator.EventSecretPath, "")
	if err != nil {
		return fmt.Errorf("read event signing key: %w", err)
	}
	if apiKey == "" || signingKey == "" {
		logger.Warn("Collaborator credentials missing; requests go out unauthenticated or unsigned",
			zap.Bool("api_key", apiKey != ""),
			zap.Bool("signing_key", signingKey != ""),
		)
	}

	publisher := webhook.NewPublisher(webhook.Config{
		BaseURL: cfg.Collaborator.EventBusURL,
		Secret:  signingKey,
	}, httpclient.New(httpclient.WebhookClientConfig(), 0), logger)

	st, err := openStores(ctx, cfg, logger, publisher, mgr, health, migrate)
	if err != nil {
		return err
	}

	registry := buildRegistry(cfg, apiKey, logger, portLogger, mgr)

	policy := cfg.Policy
	timeouts := &resilience.TimeoutConfig{
		External:                policy.Timeouts.External,
		FailoverSafetyThreshold: policy.Timeouts.FailoverSafetyThreshold,
		DefaultRequestBudget:    policy.Timeouts.DefaultRequestBudget,
	}

	collaboratorClient := httpclient.New(httpclient.DefaultClientConfig(), 0)
	collab := cfg.Collaborator
	ruleEngine := collaborators.NewRuleEngine(collab.RuleEngineURL, apiKey, collaboratorClient)
	bins := collaborators.NewBins(collab.BinLookupURL, apiKey, collaboratorClient)
	conversion := collaborators.NewConversion(collab.ConversionURL, apiKey, collaboratorClient)
	var alerter ports.OperationalAlerter
	if collab.AlertingURL != "" {
		alerter = collaborators.NewAlerting(collab.AlertingURL, apiKey, collaboratorClient)
	}

	guard := idempotency.NewGuard(st.tokens, portLogger)
	amounts := amount.NewPolicy(policy)
	eventPublisher := events.NewPublisher(st.bus, alerter, policy, portLogger)

	charges := charge.NewOrchestrator(charge.Dependencies{
		Guard:        guard,
		Router:       routing.NewRouter(ruleEngine, bins, conversion, policy, timeouts, portLogger),
		Antifraud:    antifraud.NewGate(collaborators.NewAntifraud(collab.AntifraudURL, apiKey, collaboratorClient), policy, timeouts, portLogger),
		Deferred:     deferred.NewValidator(ruleEngine, st.merchants, policy, timeouts, portLogger),
		Amounts:      amounts,
		Publisher:    eventPublisher,
		Registry:     registry,
		Transactions: st.transactions,
		Merchants:    st.merchants,
		Bins:         bins,
		Policy:       policy,
		Timeouts:     timeouts,
		Logger:       portLogger,
	})
	voids := void.NewOrchestrator(void.Dependencies{
		Amounts:      amounts,
		Publisher:    eventPublisher,
		Registry:     registry,
		Transactions: st.transactions,
		Receivables:  collaborators.NewReceivables(collab.ReceivableURL, apiKey, collaboratorClient),
		Policy:       policy,
		Timeouts:     timeouts,
		Logger:       portLogger,
	})
	captures := capture.NewOrchestrator(capture.Dependencies{
		Amounts:      amounts,
		Publisher:    eventPublisher,
		Registry:     registry,
		Transactions: st.transactions,
		Timeouts:     timeouts,
		Logger:       portLogger,
	})
	tokens := tokenization.NewOrchestrator(tokenization.Dependencies{
		Guard:     guard,
		Registry:  registry,
		Merchants: st.merchants,
		Converter: conversion,
		Policy:    policy,
		Timeouts:  timeouts,
		Logger:    portLogger,
	})

	server := orchestration.NewServer(charges, voids, captures, tokens, st.transactions, logger)
	tracker := shutdown.NewInFlightTracker("orchestrations", logger)
	mgr.Register("in-flight-orchestrations", tracker.Shutdown)

	limiter := middleware.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	mgr.RegisterNoErr("rate-limiter", limiter.Shutdown)

	rest, err := orchestration.NewRESTHandler(server)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr: listenAddr(cfg.Server.Host, cfg.Server.HTTPPort),
		Handler: middleware.Chain(rest,
			middleware.Recover(logger),
			middleware.RequestLogging(logger),
			middleware.SecurityHeaders,
			limiter.Middleware,
			middleware.InFlight(tracker),
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      timeouts.DefaultRequestBudget + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	mgr.Register("http-server", httpServer.Shutdown)

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.UnaryRecovery(logger),
			observability.UnaryServerInterceptor(),
			middleware.UnaryLogging(logger),
			middleware.UnaryInFlight(tracker),
			middleware.UnaryDeadline(timeouts.DefaultRequestBudget),
		),
	)
	orchestration.Register(grpcServer, server)
	mgr.Register("grpc-server", func(ctx context.Context) error {
		return gracefulStop(ctx, grpcServer)
	})

	grpcLis, err := net.Listen("tcp", listenAddr(cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	serveErr := make(chan error, 3)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", grpcLis.Addr().String()))
		serveErr <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Info("REST server listening", zap.String("addr", httpServer.Addr))
		serveErr <- ignoreClosed(httpServer.ListenAndServe())
	}()
	go func() {
		logger.Info("Ops server listening", zap.String("addr", opsServer.Addr))
		serveErr <- ignoreClosed(opsServer.ListenAndServe())
	}()
	go func() {
		if err := <-serveErr; err != nil {
			logger.Error("Server stopped unexpectedly", zap.Error(err))
			cancel()
		}
	}()

	errs := mgr.WaitForShutdown(ctx)
	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d error(s)", len(errs))
	}
	return nil
}

// openStores opens the configured backend and registers its shutdown and health checks
func openStores(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	publisher *webhook.Publisher,
	mgr *shutdown.Manager,
	health *observability.HealthChecker,
	migrate bool,
) (*stores, error) {
	switch cfg.Store.Driver {
	case "bolt":
		store, err := bolt.Open(cfg.Store.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		mgr.RegisterCloser("bolt-store", store)
		health.Add("store", observability.PingFunc(store.Ping))
		return &stores{
			transactions: store.Transactions(),
			tokens:       store.Tokens(),
			merchants:    store.Merchants(),
			bus:          publisher,
		}, nil

	default:
		db, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		mgr.RegisterNoErr("postgres", db.Close)
		health.Add("store", observability.PingFunc(db.Ping))

		if migrate {
			applied, err := db.Migrate(ctx)
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Migrations applied", zap.Int("count", applied))
		}

		relay := shutdown.NewBackgroundWorker("outbox-relay", logger)
		relay.Start(postgres.NewRelay(db, publisher, postgres.DefaultRelayConfig(), logger).Run)
		mgr.Register("outbox-relay", relay.Shutdown)

		poolStats := shutdown.NewPeriodicWorker("db-pool-stats", poolStatsInterval, logger)
		poolStats.Start(db.RecordPoolStats)
		mgr.Register("db-pool-stats", poolStats.Shutdown)

		return &stores{
			transactions: postgres.NewTransactionStore(db),
			tokens:       postgres.NewTokenStore(db),
			merchants:    postgres.NewMerchantStore(db, cfg.Collaborator.MerchantCacheTTL),
			bus:          postgres.NewOutbox(db),
		}, nil
	}
}

// buildRegistry registers an aggregator adapter per configured processor and
// a direct ISO 8583 adapter per DIRECT_PROCESSORS entry, each behind a breaker
func buildRegistry(cfg *config.Config, apiKey string, logger *zap.Logger, portLogger ports.Logger, mgr *shutdown.Manager) *processor.Registry {
	registry := processor.NewRegistry()
	client := httpclient.New(httpclient.ProcessorClientConfig(), 0)
	aggregatorURL := cfg.Collaborator.AggregatorURL

	for _, name := range cfg.Collaborator.AggregatorProcessors {
		adapter := processor.NewAggregatorAdapter(name, aggregatorURL, apiKey, client)
		registry.Register(domain.IntegrationAggregator,
			processor.WithBreaker(adapter, resilience.DefaultCircuitBreakerConfig(name), portLogger))
		registry.RegisterTokenProvider(name, domain.IntegrationAggregator, adapter)
	}

	if provider := cfg.Policy.DefaultTokenProvider; provider != "" {
		registry.RegisterTokenProvider(provider, domain.IntegrationAggregator,
			processor.NewAggregatorAdapter(provider, aggregatorURL, apiKey, client))
	}

	for name, addr := range cfg.Collaborator.DirectProcessors {
		adapter := iso8583.NewAdapter(iso8583.Config{ProcessorName: name, Addr: addr}, logger)
		registry.Register(domain.IntegrationDirect,
			processor.WithBreaker(adapter, resilience.DefaultCircuitBreakerConfig(name+"/direct"), portLogger))
		mgr.RegisterCloser("iso8583-"+name, adapter)
	}

	logger.Info("Processor registry built", zap.Strings("adapters", registry.Names()))
	return registry
}

// gracefulStop waits for in-progress RPCs until ctx ends, then forces the stop
func gracefulStop(ctx context.Context, server *grpc.Server) error {
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		server.Stop()
		return ctx.Err()
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func listenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
