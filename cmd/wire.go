package main

import (
	"context"
	"fmt"
	"log/slog"

	"icstask/internal/caldav"
	"icstask/internal/config"
	"icstask/internal/google"
	"icstask/internal/ics"
	"icstask/internal/identity"
	"icstask/internal/syncer"
	"icstask/internal/todoist"
)

func buildSource(ctx context.Context, logger *slog.Logger, cfg *config.Config) (syncer.CalendarSource, error) {
	switch cfg.Source {
	case config.SourceCalDAV:
		s, err := caldav.NewSource(logger, cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.Calendar, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourceGoogle:
		s, err := google.NewSource(ctx, logger, cfg.Google.APIKey, cfg.Google.CalendarID, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return ics.NewSource(logger, cfg.ICalURL, cfg.Timeout), nil
	}
}

func newTodoistClient(ctx context.Context, logger *slog.Logger, cfg *config.Config) *todoist.Client {
	return todoist.NewClient(ctx, logger, cfg.TodoistToken, cfg.ProjectID, todoist.Options{
		BaseURL:   cfg.APIBase,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Concurrency,
	})
}

// openStore opens the configured state store. The returned func releases it.
func openStore(cfg *config.Config) (identity.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := identity.NewSQLiteStore(cfg.StatePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite state: %w", err)
		}
		return s, s.Close, nil
	case config.StoreMemory:
		return identity.NewMemoryStore(), noop, nil
	default:
		return identity.NewFileStore(cfg.StatePath), noop, nil
	}
}

// buildSyncer wires source, sink and identity strategy from cfg.
func buildSyncer(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*syncer.Syncer, func() error, error) {
	source, err := buildSource(ctx, logger, cfg)
	if err != nil {
		return nil, nil, err
	}

	client := newTodoistClient(ctx, logger, cfg)

	var (
		extractor identity.Extractor
		store     identity.Store
		closeFn   = func() error { return nil }
	)
	switch cfg.Identity {
	case config.IdentityMarker:
		extractor = identity.NewMarkerExtractor(logger, client, cfg.Marker)
		store = identity.NopStore{}
	default:
		store, closeFn, err = openStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		extractor = identity.NewStoreExtractor(logger, store)
	}

	if !store.Durable() {
		logger.Warn("State store does not survive a restart and is unsuitable for production; tasks will be duplicated after the process exits.",
			"store", cfg.Store)
	}

	s := syncer.NewSyncer(logger, source, client, extractor, store, syncer.Options{
		Marker:      cfg.Marker,
		Policy:      cfg.Policy,
		DryRun:      cfg.DryRun,
		Limit:       cfg.Limit,
		Concurrency: cfg.Concurrency,
	})
	return s, closeFn, nil
}
