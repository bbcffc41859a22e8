// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/config"
	"github.com/cratedig/cratedig/internal/models"
	"github.com/cratedig/cratedig/internal/store"
)

// gatedWalker blocks until released, so tests can hold a run in flight.
type gatedWalker struct {
	gate     chan struct{}
	listings []models.RawListing
}

func (w *gatedWalker) WalkInventory(ctx context.Context, username string, perPage, maxPages int, onPage func(int, int, []models.RawListing)) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-w.gate:
	}
	if onPage != nil {
		onPage(1, 1, w.listings)
	}
	return true, nil
}

type managerFixture struct {
	mgr     *Manager
	sellers *store.SellerRepo
	jobs    *store.JobStore
	cancel  context.CancelFunc
}

func newManagerFixture(t *testing.T, walker InventoryWalker, cfg config.SyncConfig) *managerFixture {
	t.Helper()
	kv := store.NewMemoryKV()
	sellers := store.NewSellerRepo(kv)
	jobs := store.NewJobStore(kv)
	orch := NewOrchestrator(cfg,
		NewInventoryFetcher(walker, 100, 100),
		NewEnricher(&fakeReleases{}, cfg.FailureThreshold, cfg.FlushEvery),
		sellers, jobs, nil)
	mgr := NewManager(cfg, orch, sellers, jobs)

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Serve(ctx)
	t.Cleanup(cancel)
	require.Eventually(t, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return mgr.ctx != nil
	}, time.Second, time.Millisecond)

	return &managerFixture{mgr: mgr, sellers: sellers, jobs: jobs, cancel: cancel}
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		PageSize:         100,
		MaxPages:         100,
		FailureThreshold: 10,
		FlushEvery:       10,
		JobRetention:     24 * time.Hour,
		TerminalGrace:    time.Hour,
	}
}

func TestManagerRejectsConcurrentSyncForSeller(t *testing.T) {
	walker := &gatedWalker{gate: make(chan struct{})}
	f := newManagerFixture(t, walker, testSyncConfig())
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job, err := f.mgr.StartSync("acme")
	require.NoError(t, err)
	assert.True(t, f.mgr.Running("acme"))

	_, err = f.mgr.StartSync("acme")
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = f.mgr.StartSync("ACME")
	assert.ErrorIs(t, err, ErrSyncInProgress, "guard is case-insensitive")

	close(walker.gate)
	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(job.ID)
		return err == nil && got.Status == models.JobComplete
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.mgr.Running("acme"))
}

func TestManagerUnknownSellerRejected(t *testing.T) {
	f := newManagerFixture(t, &fakeWalker{complete: true}, testSyncConfig())
	_, err := f.mgr.StartSync("nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManagerCancelRunningJob(t *testing.T) {
	walker := &gatedWalker{gate: make(chan struct{})}
	f := newManagerFixture(t, walker, testSyncConfig())
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job, err := f.mgr.StartSync("acme")
	require.NoError(t, err)
	require.NoError(t, f.mgr.CancelSync(job.ID))

	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(job.ID)
		return err == nil && got.Status == models.JobCancelled
	}, time.Second, 5*time.Millisecond)
}

func TestManagerShutdownLeavesJobResumable(t *testing.T) {
	walker := &gatedWalker{gate: make(chan struct{})}
	f := newManagerFixture(t, walker, testSyncConfig())
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job, err := f.mgr.StartSync("acme")
	require.NoError(t, err)
	require.True(t, f.mgr.Running("acme"))

	// Stopping the Serve context is a graceful shutdown, not a user cancel.
	f.cancel()
	require.Eventually(t, func() bool { return !f.mgr.Running("acme") }, time.Second, 5*time.Millisecond)

	got, err := f.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, got.Status, "job survives shutdown for resume at next start")
}

func TestManagerCancelOrphanedJob(t *testing.T) {
	f := newManagerFixture(t, &fakeWalker{complete: true}, testSyncConfig())
	require.NoError(t, f.jobs.Save(&models.Job{
		ID: "orphan", Username: "ghost", Status: models.JobProcessing, CreatedAt: time.Now(),
	}))

	require.NoError(t, f.mgr.CancelSync("orphan"))
	got, err := f.jobs.Get("orphan")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)
}

func TestManagerDeleteJobRules(t *testing.T) {
	walker := &gatedWalker{gate: make(chan struct{})}
	f := newManagerFixture(t, walker, testSyncConfig())
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job, err := f.mgr.StartSync("acme")
	require.NoError(t, err)
	assert.ErrorIs(t, f.mgr.DeleteJob(job.ID), ErrJobRunning)

	close(walker.gate)
	require.Eventually(t, func() bool { return !f.mgr.Running("acme") }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.mgr.DeleteJob(job.ID))
	_, err = f.mgr.GetJob(job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManagerTerminalGraceCleanup(t *testing.T) {
	cfg := testSyncConfig()
	cfg.TerminalGrace = 10 * time.Millisecond
	f := newManagerFixture(t, &fakeWalker{complete: true}, cfg)
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job, err := f.mgr.StartSync("acme")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := f.jobs.Get(job.ID)
		return err == store.ErrNotFound
	}, time.Second, 5*time.Millisecond)
}

func TestManagerResumesInterruptedRuns(t *testing.T) {
	kv := store.NewMemoryKV()
	sellers := store.NewSellerRepo(kv)
	jobs := store.NewJobStore(kv)
	require.NoError(t, sellers.Save(&models.Seller{
		Username:  "acme",
		Inventory: []models.Listing{{ReleaseID: 1, Artist: "A", Title: "T", Price: 5}},
	}))
	require.NoError(t, jobs.Save(&models.Job{
		ID: "interrupted", Username: "acme", Status: models.JobProcessing, CreatedAt: time.Now(),
	}))

	cfg := testSyncConfig()
	orch := NewOrchestrator(cfg,
		NewInventoryFetcher(&fakeWalker{}, 100, 100),
		NewEnricher(&fakeReleases{}, cfg.FailureThreshold, cfg.FlushEvery),
		sellers, jobs, nil)
	mgr := NewManager(cfg, orch, sellers, jobs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Serve(ctx)

	require.Eventually(t, func() bool {
		got, err := jobs.Get("interrupted")
		return err == nil && got.Status == models.JobComplete
	}, time.Second, 5*time.Millisecond)

	s, err := sellers.Get("acme")
	require.NoError(t, err)
	assert.Len(t, s.Releases, 1, "missing release enriched without refetching inventory")
}

func TestManagerStaleJobGCAtStartup(t *testing.T) {
	kv := store.NewMemoryKV()
	sellers := store.NewSellerRepo(kv)
	jobs := store.NewJobStore(kv)
	require.NoError(t, jobs.Save(&models.Job{
		ID: "ancient", Username: "acme", Status: models.JobError,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))

	cfg := testSyncConfig()
	orch := NewOrchestrator(cfg,
		NewInventoryFetcher(&fakeWalker{}, 100, 100),
		NewEnricher(&fakeReleases{}, cfg.FailureThreshold, cfg.FlushEvery),
		sellers, jobs, nil)
	mgr := NewManager(cfg, orch, sellers, jobs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Serve(ctx)

	require.Eventually(t, func() bool {
		_, err := jobs.Get("ancient")
		return err == store.ErrNotFound
	}, time.Second, 5*time.Millisecond)
}
