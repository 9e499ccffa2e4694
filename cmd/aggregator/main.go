package main

import (
	"LendingAggregator/internal/config"
	"LendingAggregator/internal/custody"
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/ingestion"
	"LendingAggregator/internal/ledger"
	"LendingAggregator/internal/observability"
	"LendingAggregator/internal/persistence"
	"LendingAggregator/internal/pool"
	"LendingAggregator/internal/pricefeed"
	"LendingAggregator/internal/reconcile"
	"LendingAggregator/internal/risk"
	"LendingAggregator/internal/router"
	"LendingAggregator/internal/server"
	"LendingAggregator/internal/token"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: LendingAggregator starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: config: %v", err)
	}
	catalogue, err := config.LoadCatalogue(cfg.ReservesFile)
	if err != nil {
		log.Fatalf("FATAL: reserves: %v", err)
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker()

	// --- Ledger ---
	var store ledger.Store
	switch cfg.StoreKind {
	case config.StorePostgres:
		db, err := persistence.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("FATAL: postgres: %v", err)
		}
		defer db.Close()
		log.Println("INFO: Postgres connected")
		healthChecker.AddCheck("postgres", db.PingContext)

		migrator := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: run migrations: %v", err)
		}
		log.Println("INFO: migrations applied")
		store = persistence.NewPostgresStore(db)
	default:
		store = ledger.NewMemoryStore()
		log.Println("WARN: in-memory ledger, balances are lost on restart")
	}

	// --- Prices ---
	prices, closePrices, err := newPriceFeed(ctx, cfg, catalogue)
	if err != nil {
		log.Fatalf("FATAL: price feed: %v", err)
	}
	defer closePrices()
	if feed, ok := prices.(*pricefeed.RedisFeed); ok {
		healthChecker.AddCheck("redis", feed.Ping)
	}

	// --- NATS ---
	var (
		nc *nats.Conn
		js jetstream.JetStream
	)
	if cfg.NATSURL != "" {
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, observability.NewLogger("nats"))
		if err != nil {
			log.Fatalf("FATAL: nats connect: %v", err)
		}
		defer nc.Close()
		log.Println("INFO: NATS connected")
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		})
	}

	// --- Providers ---
	vault := custody.NewMemoryVault()
	providers, err := newRegistry(catalogue, nc, vault, cfg.ProviderTimeout)
	if err != nil {
		log.Fatalf("FATAL: providers: %v", err)
	}

	// --- Outbound events ---
	errChan := make(chan error, 8)
	var sink event.Sink = event.Discard
	if js != nil {
		if err := ingestion.EnsureOutboundStream(ctx, js, observability.NewLogger("publisher")); err != nil {
			log.Fatalf("FATAL: ensure outbound stream: %v", err)
		}
		publisher := ingestion.NewOutboundPublisher(js, cfg.EventBuffer, metrics, observability.NewLogger("publisher"))
		sink = publisher
		go func() {
			errChan <- publisher.Run(ctx)
		}()
	}

	// --- Orchestrator ---
	rt := router.New(providers, metrics)
	orch := pool.New(pool.Deps{
		Store:         store,
		Registry:      providers,
		Router:        rt,
		Risk:          risk.NewEngine(store, prices),
		Issuer:        token.NewMemoryIssuer(),
		Vault:         custodyVault(cfg, vault),
		Events:        sink,
		Metrics:       metrics,
		Logger:        observability.NewLogger("pool"),
		DedupCapacity: cfg.DedupLRUCapacity,
	})
	if err := createReserves(ctx, orch, store, catalogue); err != nil {
		log.Fatalf("FATAL: create reserves: %v", err)
	}

	// --- Command ingestion ---
	var subscriber *ingestion.NATSSubscriber
	if cfg.IngestionEnabled {
		ingestLogger := observability.NewLogger("ingestion")
		if err := ingestion.EnsureStreams(ctx, js, ingestLogger); err != nil {
			log.Fatalf("FATAL: ensure NATS streams: %v", err)
		}
		commands := make(chan ingestion.RawCommand, 1024)
		subscriber = ingestion.NewNATSSubscriber(js, commands, ingestLogger)
		if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			log.Fatalf("FATAL: nats subscribe: %v", err)
		}
		dispatcher := ingestion.NewDispatcher(orch, commands, metrics, ingestLogger)
		go func() {
			errChan <- dispatcher.Run(ctx)
		}()
	}

	// --- Reconciliation ---
	tolerance, err := parseTolerance(cfg.ReconcileTolerance)
	if err != nil {
		log.Fatalf("FATAL: reconcile tolerance: %v", err)
	}
	scheduler := reconcile.NewScheduler(ctx, observability.NewLogger("reconcile"))
	reconciler := reconcile.NewReconciler(store, rt, tolerance, metrics, observability.NewLogger("reconcile"))
	if err := scheduler.AddJob(cfg.ReconcileSchedule, reconciler); err != nil {
		log.Fatalf("FATAL: schedule reconciliation: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// --- gRPC + HTTP ---
	srv, err := server.New(cfg.GRPCAddr, cfg.HTTPAddr, server.Deps{
		Pool:          orch,
		Metrics:       metrics,
		Gatherer:      registry,
		HealthChecker: healthChecker,
		Logger:        observability.NewLogger("server"),
	})
	if err != nil {
		log.Fatalf("FATAL: server: %v", err)
	}
	go func() {
		errChan <- srv.StartGRPC(ctx)
	}()
	go func() {
		errChan <- srv.StartHTTP(ctx)
	}()

	// Mark service as ready after all goroutines started
	srv.SetServing(true)
	healthChecker.SetReady(true)

	log.Printf("INFO: LendingAggregator ready (reserves=%d, store=%s, grpc=%s, http=%s)",
		len(catalogue.Reserves), cfg.StoreKind, cfg.GRPCAddr, cfg.HTTPAddr)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	healthChecker.SetReady(false)
	srv.SetServing(false)
	if subscriber != nil {
		subscriber.Stop()
	}
	cancel()

	log.Println("INFO: LendingAggregator stopped")
}
