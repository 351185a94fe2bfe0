package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"PerpAMM/internal/collateral"
	"PerpAMM/internal/core"
	"PerpAMM/internal/ingestion"
	"PerpAMM/internal/observability"
	"PerpAMM/internal/oracle"
	"PerpAMM/internal/persistence"
	"PerpAMM/internal/projection"
	"PerpAMM/internal/query"
	"PerpAMM/internal/server"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with its workers and the gRPC/HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, observability.NewLogger("perpamm"))
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("postgres-dsn", "", "Postgres connection string")
	f.String("nats-url", "", "NATS server URL")
	f.String("grpc-addr", "", "gRPC listen address")
	f.String("http-addr", "", "HTTP listen address")
	f.String("migrations-dir", "", "read migrations from this directory instead of the embedded set")
	f.Bool("enable-postgres", true, "persist events, snapshots and projections to Postgres")
	f.Bool("enable-nats", true, "consume index prices from and publish events to NATS JetStream")
}

func serve(ctx context.Context, cfg *Config, logger zerolog.Logger) error {
	logger.Info().Str("version", version).Msg("perpamm starting")

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsWith(reg)
	healthChecker := observability.NewHealthChecker()

	// --- Postgres ---
	var db *sql.DB
	if cfg.EnablePostgres {
		var err error
		if db, err = openPostgres(ctx, cfg, logger); err != nil {
			return err
		}
		defer db.Close()
		healthChecker.AddCheck("postgres", db.PingContext)
	}

	// --- Engine ---
	engCfg, err := cfg.Genesis.EngineConfig(cfg.IdempotencyLRUCapacity)
	if err != nil {
		return err
	}
	engCfg.CheckConservation = cfg.CheckConservation

	token := collateral.NewToken()
	wallets, err := cfg.Genesis.WalletBalances()
	if err != nil {
		return err
	}
	for id, amount := range wallets {
		if err := token.Mint(id, amount); err != nil {
			return fmt.Errorf("mint %s: %w", id, err)
		}
	}

	feeder := oracle.NewFeeder()
	if price, err := cfg.Genesis.IndexPriceValue(); err != nil {
		return fmt.Errorf("genesis.index_price: %w", err)
	} else if price.IsPositive() {
		if err := feeder.SetPrice(price, time.Now().Unix()); err != nil {
			return err
		}
	}

	persistChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)

	var dbChecker core.DBIdempotencyChecker
	var writer *persistence.EventLogWriter
	var snaps *persistence.SnapshotManager
	if db != nil {
		dbChecker = persistence.NewPostgresIdempotencyChecker(db)
		writer = persistence.NewEventLogWriter(db)
		snaps = persistence.NewSnapshotManager(db)
	} else {
		// Nothing drains persistence without a database.
		persistChan = nil
	}

	eng, err := core.NewEngine(engCfg, token, feeder, persistChan, projectionChan, dbChecker, metrics,
		observability.NewLogger("core"))
	if err != nil {
		return err
	}

	// --- Recovery ---
	if db != nil {
		if err := persistence.Recover(ctx, eng, snaps, writer, cfg.IdempotencyLRUCapacity, observability.NewLogger("recovery")); err != nil {
			if errors.Is(err, persistence.ErrLogAhead) {
				logger.Error().Err(err).Msg("event log has events past the latest snapshot; restore a newer snapshot")
			}
			return fmt.Errorf("recover: %w", err)
		}
	}
	logger.Info().Int64("sequence", eng.GetSequence()).Str("proxy", eng.Proxy().String()).Msg("engine ready")

	// --- NATS ---
	var js jetstream.JetStream
	var publisher *ingestion.OutboundPublisher
	var subscriber *ingestion.PriceSubscriber
	if cfg.EnableNATS {
		var nc *nats.Conn
		nc, js, err = ingestion.ConnectNATS(cfg.NATSURL, observability.NewLogger("nats"))
		if err != nil {
			return err
		}
		defer nc.Close()
		logger.Info().Str("url", cfg.NATSURL).Msg("NATS connected")

		if err := ingestion.EnsureStreams(ctx, js, cfg.PriceSubject, logger); err != nil {
			return fmt.Errorf("ensure streams: %w", err)
		}
		healthChecker.AddCheck("nats", func(context.Context) error {
			if st := nc.Status(); st != nats.CONNECTED {
				return fmt.Errorf("nats status %s", st)
			}
			return nil
		})
		publisher = ingestion.NewOutboundPublisher(js, cfg.PublishBufferSize, metrics, observability.NewLogger("publisher"))
		subscriber = ingestion.NewPriceSubscriber(js, feeder, cfg.PriceSubject, metrics, observability.NewLogger("price-subscriber"))
	}

	// --- Workers ---
	funding := projection.NewFundingHistory(cfg.FundingHistorySize)
	projWorker := projection.NewProjectionWorker(db, projectionChan, funding, metrics, observability.NewLogger("projection"))

	var persistWorker *persistence.PersistenceWorker
	var snapshotter *persistence.Snapshotter
	if db != nil {
		persistWorker = persistence.NewPersistenceWorker(writer, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout,
			metrics, observability.NewLogger("persistence"))
		if publisher != nil {
			persistWorker.OnFlush(publisher.Enqueue)
		}
		snapshotter = persistence.NewSnapshotter(eng, snaps, cfg.SnapshotInterval, metrics, observability.NewLogger("snapshotter"))
	}

	grpcServer, err := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		Engine:        eng,
		QueryService:  query.NewQueryService(eng, funding, db),
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Gatherer:      reg,
		Logger:        observability.NewLogger("server"),
	})
	if err != nil {
		return err
	}

	// The persistence worker outlives the API so it can drain every
	// committed event after the servers stop.
	persistDone := make(chan error, 1)
	if persistWorker != nil {
		go func() { persistDone <- persistWorker.Run(context.Background()) }()
	} else {
		close(persistDone)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return projWorker.Run(gctx) })
	g.Go(func() error { return grpcServer.StartGRPC(gctx) })
	g.Go(func() error { return grpcServer.StartHTTPGateway(gctx) })
	if snapshotter != nil {
		g.Go(func() error { return snapshotter.Run(gctx) })
	}
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	if subscriber != nil {
		if err := subscriber.Subscribe(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			subscriber.Stop()
			return nil
		})
	}
	grpcServer.SetServing(true)
	healthChecker.SetReady(true)
	logger.Info().
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Bool("postgres", db != nil).
		Bool("nats", js != nil).
		Msg("perpamm ready")

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	healthChecker.SetReady(false)
	logger.Info().Msg("shutting down")

	// --- Graceful shutdown: drain persistence, then take a final snapshot ---
	if persistWorker != nil {
		close(persistChan)
		select {
		case err := <-persistDone:
			if err != nil {
				logger.Error().Err(err).Msg("persistence worker stopped with error")
			}
		case <-time.After(30 * time.Second):
			logger.Error().Msg("persistence drain timed out")
		}
	}
	if snapshotter != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := snapshotter.Take(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("final snapshot failed")
		} else {
			snapshotter.VerifyPending(shutdownCtx)
			logger.Info().Int64("sequence", eng.GetSequence()).Msg("final snapshot saved")
		}
	}

	logger.Info().Msg("shutdown complete")
	return runErr
}

func openPostgres(ctx context.Context, cfg *Config, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	logger.Info().Msg("Postgres connected")

	if err := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator")).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("migrations applied")
	return db, nil
}
