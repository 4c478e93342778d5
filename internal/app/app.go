// Package app ties together configuration, storage, the indexer, and the HTTP
// server.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"

	"findit/internal/config"
	"findit/internal/crawler"
	"findit/internal/event"
	"findit/internal/indexer"
	"findit/internal/search"
	"findit/internal/server"
	"findit/internal/storage"
	"findit/internal/storage/duckdb"
	"findit/internal/storage/sqlite"
)

// App owns the wired application components.
type App struct {
	cfg     config.Config
	store   storage.Store
	indexer *indexer.Indexer
	engine  *search.Engine
	bus     *event.Bus
	server  *server.Server
}

// New constructs an App using the provided configuration.
func New(cfg config.Config) (*App, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := event.NewBus()
	c := crawler.New(store, crawler.Options{
		BatchSize:     cfg.BatchSize,
		ProgressEvery: cfg.ProgressEvery,
		AllowDotDirs:  cfg.AllowDotDirs,
	})
	idx := indexer.New(store, c, bus)
	engine := search.New(store, cfg.CandidateMultiplier)
	srv := server.New(store, idx, engine, bus, cfg.MaxResults)

	return &App{
		cfg:     cfg,
		store:   store,
		indexer: idx,
		engine:  engine,
		bus:     bus,
		server:  srv,
	}, nil
}

func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendDuckDB:
		return duckdb.Open(cfg.DatabasePath)
	default:
		return sqlite.Open(cfg.DatabasePath)
	}
}

// Run starts the HTTP server until the context is cancelled, forwarding scan
// events to the log.
func (a *App) Run(ctx context.Context) error {
	events := a.bus.Subscribe()
	defer a.bus.Unsubscribe(events)
	go logEvents(events)

	log.Printf("serving on %s (backend: %s, database: %s)",
		a.cfg.ListenAddr, a.cfg.Backend, a.cfg.DatabasePath)
	if err := a.server.Start(ctx, a.cfg.ListenAddr); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}

func logEvents(events <-chan event.Event) {
	for ev := range events {
		switch ev.Kind {
		case event.KindProgress:
			log.Printf("indexed %s files... current: %s", humanize.Comma(int64(ev.Count)), ev.Path)
		case event.KindCompleted:
			log.Printf("indexing complete: %s files", humanize.Comma(int64(ev.Count)))
		case event.KindStopped:
			log.Printf("indexing stopped: %s files committed", humanize.Comma(int64(ev.Count)))
		}
	}
}

// Indexer exposes the orchestrator for CLI modes.
func (a *App) Indexer() *indexer.Indexer {
	return a.indexer
}

// SearchEngine exposes the query layer for CLI modes.
func (a *App) SearchEngine() *search.Engine {
	return a.engine
}

// Store exposes the metadata store for CLI modes.
func (a *App) Store() storage.Store {
	return a.store
}

// Events exposes the scan event bus.
func (a *App) Events() *event.Bus {
	return a.bus
}

// Close releases the underlying store.
func (a *App) Close() error {
	return a.store.Close()
}
