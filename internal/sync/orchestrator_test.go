// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/config"
	"github.com/cratedig/cratedig/internal/models"
	"github.com/cratedig/cratedig/internal/store"
)

// fakeWalker serves a single canned inventory page.
type fakeWalker struct {
	listings []models.RawListing
	complete bool
	err      error
}

func (w *fakeWalker) WalkInventory(ctx context.Context, username string, perPage, maxPages int, onPage func(int, int, []models.RawListing)) (bool, error) {
	if w.err != nil {
		return false, w.err
	}
	if onPage != nil {
		onPage(1, 1, w.listings)
	}
	return w.complete, nil
}

// recorder captures broadcast events.
type recorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recorder) BroadcastProgress(ev ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) last() ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func rawListing(id int, artist, title string, price float64) models.RawListing {
	var rl models.RawListing
	rl.Release.ID = id
	rl.Release.Artist = artist
	rl.Release.Title = title
	rl.Price = models.FlexPrice(price)
	rl.Condition = "VG+"
	return rl
}

type fixture struct {
	sellers *store.SellerRepo
	jobs    *store.JobStore
	rec     *recorder
	orch    *Orchestrator
}

func newFixture(t *testing.T, walker InventoryWalker, releases ReleaseFetcher) *fixture {
	t.Helper()
	kv := store.NewMemoryKV()
	f := &fixture{
		sellers: store.NewSellerRepo(kv),
		jobs:    store.NewJobStore(kv),
		rec:     &recorder{},
	}
	cfg := config.SyncConfig{
		PageSize:         100,
		MaxPages:         100,
		FailureThreshold: 10,
		FlushEvery:       10,
		JobRetention:     24 * time.Hour,
		TerminalGrace:    time.Hour,
	}
	f.orch = NewOrchestrator(cfg,
		NewInventoryFetcher(walker, cfg.PageSize, cfg.MaxPages),
		NewEnricher(releases, cfg.FailureThreshold, cfg.FlushEvery),
		f.sellers, f.jobs, f.rec)
	return f
}

func newJob(username string) *models.Job {
	return &models.Job{
		ID:        "job-1",
		Username:  username,
		Status:    models.JobProcessing,
		CreatedAt: time.Now(),
	}
}

func TestOrchestratorFullRun(t *testing.T) {
	walker := &fakeWalker{
		listings: []models.RawListing{
			rawListing(1, "Moodymann", "Silentintroduction", 30),
			rawListing(2, "Theo Parrish", "First Floor", 40),
			rawListing(1, "Moodymann", "Silentintroduction", 25),
		},
		complete: true,
	}
	f := newFixture(t, walker, &fakeReleases{})
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme", AddedAt: time.Now()}))

	job := newJob("acme")
	require.NoError(t, f.orch.Run(context.Background(), job))

	assert.Equal(t, models.JobComplete, job.Status)
	assert.Equal(t, "Synced 2 new releases (0 removed)", job.CurrentStep)

	s, err := f.sellers.Get("acme")
	require.NoError(t, err)
	require.Len(t, s.Inventory, 2, "duplicate listings reduced")
	assert.Equal(t, 25.0, s.Inventory[0].Price, "cheapest copy kept")
	require.Len(t, s.Releases, 2)
	require.NotNil(t, s.LastUpdated)

	stored, err := f.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobComplete, stored.Status)
	assert.Equal(t, models.JobComplete, f.rec.last().Status)
}

func TestOrchestratorPrunesRemovedReleases(t *testing.T) {
	walker := &fakeWalker{
		listings: []models.RawListing{rawListing(2, "B", "Stays", 10)},
		complete: true,
	}
	f := newFixture(t, walker, &fakeReleases{})
	require.NoError(t, f.sellers.Save(&models.Seller{
		Username:  "acme",
		Inventory: []models.Listing{{ReleaseID: 1}, {ReleaseID: 2}},
		Releases:  []models.Release{{ID: 1}, {ID: 2}},
	}))

	job := newJob("acme")
	require.NoError(t, f.orch.Run(context.Background(), job))

	s, err := f.sellers.Get("acme")
	require.NoError(t, err)
	require.Len(t, s.Releases, 1)
	assert.Equal(t, 2, s.Releases[0].ID)
	assert.Equal(t, "All releases up to date! (1 removed)", job.CurrentStep)
}

func TestOrchestratorPartialFetchDefersPruning(t *testing.T) {
	walker := &fakeWalker{
		listings: []models.RawListing{rawListing(2, "B", "Stays", 10)},
		complete: false,
	}
	f := newFixture(t, walker, &fakeReleases{})
	require.NoError(t, f.sellers.Save(&models.Seller{
		Username:  "acme",
		Inventory: []models.Listing{{ReleaseID: 1}, {ReleaseID: 2}},
		Releases:  []models.Release{{ID: 1}, {ID: 2}},
	}))

	job := newJob("acme")
	require.NoError(t, f.orch.Run(context.Background(), job))

	assert.Equal(t, models.JobComplete, job.Status)
	s, err := f.sellers.Get("acme")
	require.NoError(t, err)
	assert.Len(t, s.Releases, 2, "unseen releases survive a partial fetch")
}

func TestOrchestratorFetchErrorFailsJob(t *testing.T) {
	f := newFixture(t, &fakeWalker{err: errors.New("upstream down")}, &fakeReleases{})
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job := newJob("acme")
	require.NoError(t, f.orch.Run(context.Background(), job))
	assert.Equal(t, models.JobError, job.Status)
	assert.Equal(t, "Error: upstream down", job.CurrentStep)
}

func TestOrchestratorResumeEnrichesOnlyMissing(t *testing.T) {
	releases := &fakeReleases{}
	f := newFixture(t, &fakeWalker{}, releases)
	require.NoError(t, f.sellers.Save(&models.Seller{
		Username: "acme",
		Inventory: []models.Listing{
			{ReleaseID: 1, Artist: "A", Title: "T1", Price: 5},
			{ReleaseID: 2, Artist: "A", Title: "T2", Price: 6},
			{ReleaseID: 3, Artist: "A", Title: "T3", Price: 7},
		},
		Releases: []models.Release{{ID: 1}},
	}))

	job := newJob("acme")
	require.NoError(t, f.orch.Resume(context.Background(), job))

	assert.Equal(t, models.JobComplete, job.Status)
	assert.Equal(t, 2, releases.calls, "inventory is not refetched, only gaps enriched")

	s, err := f.sellers.Get("acme")
	require.NoError(t, err)
	assert.Len(t, s.Releases, 3)
}

func TestOrchestratorCancelRequestMarksJobCancelled(t *testing.T) {
	walker := &fakeWalker{
		listings: []models.RawListing{rawListing(1, "A", "T", 5)},
		complete: true,
	}
	f := newFixture(t, walker, &fakeReleases{})
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errCancelRequested)

	job := newJob("acme")
	require.NoError(t, f.orch.Run(ctx, job))
	assert.Equal(t, models.JobCancelled, job.Status)
	assert.Equal(t, "Cancelled", job.CurrentStep)
}

func TestOrchestratorShutdownLeavesJobProcessing(t *testing.T) {
	walker := &fakeWalker{
		listings: []models.RawListing{rawListing(1, "A", "T", 5)},
		complete: true,
	}
	f := newFixture(t, walker, &fakeReleases{})
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	// A plain cancellation with no cause is process shutdown, not a user
	// request. The job must stay processing so the next start resumes it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newJob("acme")
	require.NoError(t, f.orch.Run(ctx, job))
	assert.Equal(t, models.JobProcessing, job.Status)

	stored, err := f.jobs.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, stored.Status)
}

func TestOrchestratorEarlyPartialCompletionOnFailures(t *testing.T) {
	fail := map[int]bool{1: true, 2: true}
	walker := &fakeWalker{
		listings: []models.RawListing{
			rawListing(1, "A", "T1", 5),
			rawListing(2, "B", "T2", 5),
			rawListing(3, "C", "T3", 5),
		},
		complete: true,
	}
	f := newFixture(t, walker, &fakeReleases{fail: fail})
	f.orch.enricher = NewEnricher(&fakeReleases{fail: fail}, 2, 10)
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	job := newJob("acme")
	require.NoError(t, f.orch.Run(context.Background(), job))
	// The threshold aborts enrichment but the run still lands complete.
	assert.Equal(t, models.JobComplete, job.Status)
	assert.Contains(t, job.CurrentStep, "partial results")

	s, err := f.sellers.Get("acme")
	require.NoError(t, err)
	assert.Empty(t, s.Releases)
	require.NotNil(t, s.LastUpdated)
}

func TestOrchestratorNextRunEnrichesReleasesSkippedEarlier(t *testing.T) {
	fail := map[int]bool{1: true, 2: true}
	walker := &fakeWalker{
		listings: []models.RawListing{
			rawListing(1, "A", "T1", 5),
			rawListing(2, "B", "T2", 5),
			rawListing(3, "C", "T3", 5),
		},
		complete: true,
	}
	f := newFixture(t, walker, &fakeReleases{fail: fail})
	f.orch.enricher = NewEnricher(&fakeReleases{fail: fail}, 2, 10)
	require.NoError(t, f.sellers.Save(&models.Seller{Username: "acme"}))

	// First run hits the failure threshold and completes with the snapshot
	// persisted but nothing enriched.
	require.NoError(t, f.orch.Run(context.Background(), newJob("acme")))
	s, err := f.sellers.Get("acme")
	require.NoError(t, err)
	require.Len(t, s.Inventory, 3)
	require.Empty(t, s.Releases)

	// The unchanged inventory must not read as "up to date": the diff runs
	// against the release cache, so the skipped releases queue up again.
	f.orch.enricher = NewEnricher(&fakeReleases{}, 10, 10)
	job := &models.Job{ID: "job-2", Username: "acme", Status: models.JobProcessing, CreatedAt: time.Now()}
	require.NoError(t, f.orch.Run(context.Background(), job))

	assert.Equal(t, models.JobComplete, job.Status)
	assert.Equal(t, "Synced 3 new releases (0 removed)", job.CurrentStep)
	s, err = f.sellers.Get("acme")
	require.NoError(t, err)
	assert.Len(t, s.Releases, 3)
}
