package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/listsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/listsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/listsync/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/listsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/listsync/internal/adapters/driven/translation"
	"github.com/custodia-labs/listsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/listsync/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/listsync/internal/connectors/catalog"
	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
	"github.com/custodia-labs/listsync/internal/core/ports/driving"
	"github.com/custodia-labs/listsync/internal/core/services"
	"github.com/custodia-labs/listsync/internal/logger"
	"github.com/custodia-labs/listsync/internal/normalisers/listing"
)

// store is the relational backend shared by the sqlite and postgres adapters.
type store interface {
	RawStore() driven.RawStore
	ProcessedStore() driven.ProcessedStore
	SyncStateStore() driven.SyncStateStore
	LeaseStore() driven.LeaseStore
	DictionaryStore() driven.DictionaryStore
	OperationsLogStore() driven.OperationsLogStore
	SchedulerStore() driven.SchedulerStore
	Close() error
}

// newProvider is replaced in tests.
var newProvider = translation.NewProvider

// bootstrap builds the services for one command invocation.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	if opts.ConfigOnly {
		return &cli.Services{Settings: settingsService, Config: configStore}, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(settings, opts); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, settings.Storage)
	if err != nil {
		return nil, err
	}
	svc, err := buildServices(ctx, st, *settings, settingsService)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	svc.Config = configStore
	return svc, nil
}

// applyOverrides applies command-line flags on top of resolved settings.
func applyOverrides(settings *domain.Settings, opts cli.Options) error {
	if opts.Provider != "" {
		p, ok := domain.ParseProviderName(opts.Provider)
		if !ok {
			return fmt.Errorf("%w: translation provider %q", domain.ErrUnsupportedType, opts.Provider)
		}
		settings.Translation.Provider = p
	}
	if opts.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must be positive", domain.ErrInvalidInput)
	}
	if opts.BatchSize > 0 {
		settings.Normalization.BatchSize = opts.BatchSize
	}
	return nil
}

func openStore(ctx context.Context, cfg domain.StorageSettings) (store, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: postgres needs DB_DSN or DB_HOST", domain.ErrInvalidInput)
		}
		st, err := postgres.NewStore(ctx, cfg.DSN, postgres.Options{})
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return st, nil
	case "memory":
		logger.Warn("Using the in-memory store; nothing is persisted")
		return memory.NewStore(), nil
	default:
		st, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		logger.Debug("Using sqlite store at %s", st.Path())
		return st, nil
	}
}

// buildServices wires the core services over st.
func buildServices(
	ctx context.Context,
	st store,
	settings domain.Settings,
	settingsService *services.SettingsService,
) (*cli.Services, error) {
	retry := services.NewRetryExecutor(settings.Retry)

	dict := services.NewDictionaryService(
		st.DictionaryStore(), st.RawStore(), st.ProcessedStore(), settings.Translation.SourceLanguage)
	if err := dict.Load(ctx); err != nil {
		return nil, err
	}

	provider, err := newProvider(settings.Translation)
	switch {
	case errors.Is(err, domain.ErrProviderUnavailable):
		// Sync and normalisation still work; enrichment reports remaining gaps
		logger.Warn("Translation disabled: %v", err)
		provider = nil
	case err != nil:
		return nil, err
	}

	syncOrch := services.NewSyncOrchestrator(
		catalog.NewClient(settings.Catalog), st.RawStore(), st.SyncStateStore(), retry)
	normalizer := services.NewNormalizationService(
		st.RawStore(), st.ProcessedStore(), dict,
		listing.New(settings.Translation.SourceLanguage), settings.Normalization.MaxSkips)
	enricher := services.NewEnrichmentService(normalizer, st.ProcessedStore(), dict, provider, retry, settings)
	oplog := services.NewOperationsLog(st.OperationsLogStore())
	pipeline := services.NewPipelineService(
		services.NewLeaseManager(st.LeaseStore(), settings.Lease.TTL), syncOrch, enricher, oplog)
	status := services.NewStatusService(
		st.SyncStateStore(), st.LeaseStore(), st.RawStore(), st.ProcessedStore(), dict, st.OperationsLogStore())

	server := httpapi.NewServer(status, oplog, dict, syncOrch)
	server.SetScheduleHistory(services.NewScheduleHistory(st.SchedulerStore()))

	return &cli.Services{
		Settings:   settingsService,
		Pipeline:   pipeline,
		Dictionary: dict,
		Status:     status,
		Scheduler: func(opts driving.RunOptions, interval time.Duration) driving.Scheduler {
			return services.NewScheduler(
				scheduleConfig(settingsService.GetScheduleConfig(), interval),
				st.SchedulerStore(), pipeline, opts)
		},
		Serve: server.Run,
		Close: st.Close,
	}, nil
}

// scheduleConfig applies a --interval override, which also enables the schedule.
func scheduleConfig(cfg domain.ScheduleConfig, interval time.Duration) domain.ScheduleConfig {
	if interval <= 0 {
		return cfg
	}
	cfg.Enabled = true
	cfg.Interval = interval
	return cfg
}
