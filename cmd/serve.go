package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"givevault/api"
	"givevault/asset"
	"givevault/config"
	"givevault/database"
	"givevault/events"
	"givevault/forwarder"
	"givevault/infrastructure"
	"givevault/infrastructure/observability"
	"givevault/repository"
	"givevault/repository/memory"
	"givevault/service"
	"givevault/strategy"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vault ledger with its HTTP API and harvest keeper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		setupLogging(cfg)
		return Run(cmd.Context(), cfg)
	},
}

// Run wires the vault from cfg and serves until ctx is cancelled
func Run(ctx context.Context, cfg *config.Config) error {
	log.WithFields(log.Fields{
		"vault":       cfg.VaultID,
		"asset":       cfg.VaultAsset,
		"storage":     cfg.Storage,
		"sink":        cfg.EventSink,
		"environment": cfg.Environment,
	}).Info("Starting givevault...")

	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Error shutting down metrics provider")
		}
	}()

	eventBus := events.NewBus()

	sink, err := newRecordSink(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	infrastructure.AttachSink(eventBus, sink)
	defer func() {
		// Let in-flight handlers reach the sink before it closes
		eventBus.Wait()
		if err := sink.Close(); err != nil {
			log.WithError(err).WithField("sink", sink.Name()).Warn("Error closing record sink")
		}
	}()

	store, err := newStorage(ctx, cfg, eventBus)
	if err != nil {
		return err
	}
	defer store.close()

	book, module, err := newBookAndModule(ctx, cfg, store)
	if err != nil {
		return err
	}
	router := forwarder.NewRouter(cfg.ForwarderAddress, book, eventBus)
	uowFactory := store.uowFactory

	vault, err := service.NewVault(ctx, service.VaultConfig{
		ID:          cfg.VaultID,
		Address:     cfg.VaultAddress,
		Admin:       cfg.AdminAddress,
		Beneficiary: cfg.BeneficiaryAddress,
	}, book, module, router, uowFactory, service.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}
	if err := checkCustody(ctx, vault, book); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"vault":   vault.ID(),
		"address": vault.Address(),
	}).Info("Vault ready")

	// The API and the keeper take turns on the vault
	turnstile := service.NewTurnstile(api.DefaultTurnWait)
	serverOpts := []api.ServerOption{api.WithTurnstile(turnstile)}
	if cfg.FaucetEnabled {
		log.Warn("Faucet enabled; any caller can issue test funds")
		serverOpts = append(serverOpts, api.WithFaucet(book))
	}
	server := api.NewServer(cfg.HTTPAddr, vault, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	if cfg.HarvestInterval > 0 {
		keeper := service.NewHarvestKeeper(vault, uowFactory, cfg.KeeperAddress, cfg.HarvestInterval,
			service.WithKeeperTurnstile(turnstile))
		g.Go(func() error {
			stop := keeper.Start(gctx)
			<-gctx.Done()
			stop()
			return nil
		})
	} else {
		log.Info("Harvest keeper disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Shutdown completed")
	return nil
}

// storage is the ledger backend plus, when it is durable, the store behind the asset book
type storage struct {
	uowFactory service.UnitOfWorkFactory
	balances   asset.BalanceStore
	close      func()
}

func newStorage(ctx context.Context, cfg *config.Config, eventBus *events.Bus) (*storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		log.Warn("Using in-memory storage; the ledger is lost on exit")
		return &storage{
			uowFactory: memory.NewUnitOfWorkFactory(memory.NewStore(), eventBus),
			close:      func() {},
		}, nil
	case config.StoragePostgres:
		databaseURL := cfg.GetDatabaseURL()
		if err := database.RunMigrationsWithURL(databaseURL); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		log.Info("Connecting to database...")
		db, err := database.NewConnection(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Database connection established successfully")
		return &storage{
			uowFactory: repository.NewUnitOfWorkFactory(db, eventBus),
			balances:   repository.NewAssetBalanceRepository(db),
			close: func() {
				log.Info("Closing database connection...")
				db.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// newBookAndModule builds the asset book and the yield module. With durable storage the
// book is reloaded and the module resumes from the principal it holds on it, so a restart
// does not strand the ledger's assets.
func newBookAndModule(ctx context.Context, cfg *config.Config, store *storage) (*asset.Book, *strategy.FixedRate, error) {
	book := asset.NewBook(cfg.VaultAsset)
	if store.balances != nil {
		var err error
		book, err = asset.OpenBook(ctx, cfg.VaultAsset, store.balances)
		if err != nil {
			return nil, nil, err
		}
	}

	module, err := strategy.NewFixedRate(book, cfg.ModuleAddress, cfg.VaultAddress, cfg.ModuleRateBps, time.Now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create yield module: %w", err)
	}
	if store.balances != nil {
		if err := module.Restore(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to restore yield module: %w", err)
		}
	}
	return book, module, nil
}

// checkCustody refuses a ledger whose idle reserve the asset book does not cover
func checkCustody(ctx context.Context, vault *service.Vault, book *asset.Book) error {
	summary, err := vault.Summary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vault summary: %w", err)
	}
	held, err := book.BalanceOf(ctx, vault.Address())
	if err != nil {
		return fmt.Errorf("failed to read vault custody: %w", err)
	}
	if held.LessThan(summary.State.IdleReserve) {
		return fmt.Errorf("asset book holds %s for vault %s, ledger expects an idle reserve of %s",
			held, vault.ID(), summary.State.IdleReserve)
	}
	return nil
}

func newRecordSink(ctx context.Context, cfg *config.Config, metrics infrastructure.SinkMetrics) (infrastructure.RecordSink, error) {
	switch cfg.EventSink {
	case config.SinkNone:
		return infrastructure.NewNoopEventSink(), nil
	case config.SinkLog:
		return infrastructure.NewLogEventSink(log.StandardLogger()), nil
	case config.SinkNATS:
		client := infrastructure.NewNATSClient(cfg.NATSServers)
		if err := client.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		mapper := infrastructure.NewEventSubjectMapper()
		if err := client.EnsureStream(infrastructure.RecordStreamName, mapper.GetAllSubjects()); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ensure record stream: %w", err)
		}
		return infrastructure.NewNATSEventPublisher(client, mapper, metrics), nil
	case config.SinkKafka:
		return infrastructure.NewKafkaEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metrics), nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
	}
}
