// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package main is the entry point for the Cratedig server.
//
// Cratedig tracks the inventories of Discogs marketplace sellers. It syncs
// each tracked seller's for-sale listings on demand, enriches new arrivals
// with community ratings and want/have demand data, and surfaces the result
// over a REST API with live progress pushed over websocket.
//
// # Startup order
//
//  1. Configuration: environment variables and optional config.yaml (Koanf v2)
//  2. Storage: BadgerDB document store with schema migration
//  3. Discogs client: paced, retrying, circuit-broken API access
//  4. Supervision tree: websocket hub, sync manager, HTTP server
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: in-flight syncs checkpoint
// and stop, the HTTP server drains, and the store closes cleanly. An
// interrupted sync resumes on the next start.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cratedig/cratedig/internal/api"
	"github.com/cratedig/cratedig/internal/config"
	"github.com/cratedig/cratedig/internal/discogs"
	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/store"
	"github.com/cratedig/cratedig/internal/supervisor"
	"github.com/cratedig/cratedig/internal/supervisor/services"
	syncpkg "github.com/cratedig/cratedig/internal/sync"
	"github.com/cratedig/cratedig/internal/websocket"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration invalid")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", cfg.Server.Addr()).Msg("starting cratedig")

	if err := run(cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("server exited")
	}
	logging.Info().Msg("shutdown complete")
}

func run(cfg *config.Config) error {
	path := cfg.Storage.Path
	if cfg.Storage.InMemory {
		path = ""
	}
	kv, err := store.OpenBadger(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("closing store failed")
		}
	}()

	if err := store.NewMigrator(kv).Run(); err != nil {
		return err
	}

	sellers := store.NewSellerRepo(kv)
	jobs := store.NewJobStore(kv)

	pacer := discogs.NewPacer(cfg.Discogs.MinInterval, cfg.Discogs.Window, cfg.Discogs.MaxPerWindow)
	doer := discogs.NewBreakerDoer(&http.Client{Timeout: cfg.Discogs.RequestTimeout})
	client := discogs.NewClient(cfg.Discogs, pacer, doer)

	hub := websocket.NewHub()
	orch := syncpkg.NewOrchestrator(cfg.Sync,
		syncpkg.NewInventoryFetcher(client, cfg.Sync.PageSize, cfg.Sync.MaxPages),
		syncpkg.NewEnricher(client, cfg.Sync.FailureThreshold, cfg.Sync.FlushEvery),
		sellers, jobs, hub)
	manager := syncpkg.NewManager(cfg.Sync, orch, sellers, jobs)

	server := api.NewServer(sellers, manager, client, hub)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(cfg.Server),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddSyncService(hub)
	tree.AddSyncService(manager)
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return tree.Serve(ctx)
}
