// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cratedig/cratedig/internal/config"
	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
	"github.com/cratedig/cratedig/internal/models"
	"github.com/cratedig/cratedig/internal/store"
)

// Orchestrator drives one sync run through its phases: fetch, compare,
// enrich, finish. The job record is the single source of truth for run
// state; every mutation is persisted before it is broadcast.
type Orchestrator struct {
	cfg      config.SyncConfig
	fetcher  *InventoryFetcher
	enricher *Enricher
	sellers  *store.SellerRepo
	jobs     *store.JobStore
	bc       Broadcaster
	now      func() time.Time
}

// NewOrchestrator wires an Orchestrator. A nil broadcaster disables live
// progress events.
func NewOrchestrator(cfg config.SyncConfig, fetcher *InventoryFetcher, enricher *Enricher, sellers *store.SellerRepo, jobs *store.JobStore, bc Broadcaster) *Orchestrator {
	if bc == nil {
		bc = NopBroadcaster{}
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		enricher: enricher,
		sellers:  sellers,
		jobs:     jobs,
		bc:       bc,
		now:      time.Now,
	}
}

// checkpoint persists the job then broadcasts it, in that order, so a
// subscriber can never observe state the store would lose on a crash.
func (o *Orchestrator) checkpoint(job *models.Job) error {
	if err := o.jobs.Save(job); err != nil {
		return err
	}
	o.bc.BroadcastProgress(eventFor(job))
	return nil
}

// Run executes a full sync for the job's seller. The returned error is nil
// for every terminal outcome that was recorded on the job, including
// cancellation; only checkpointing failures bubble up.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) error {
	job.Status = models.JobProcessing
	job.CurrentStep = StepFetching
	if err := o.checkpoint(job); err != nil {
		return err
	}

	listings, complete, err := o.fetcher.Fetch(ctx, job.Username, func(page, pages int) {
		job.Progress = page
		job.Total = pages
		// Page progress is broadcast but not persisted; a resume refetches
		// nothing in this phase anyway.
		o.bc.BroadcastProgress(eventFor(job))
	})
	if err != nil {
		return o.finish(ctx, job, err, "")
	}

	job.CurrentStep = StepComparing
	job.Progress, job.Total = 0, 0
	if err := o.checkpoint(job); err != nil {
		return err
	}

	seller, err := o.sellers.Get(job.Username)
	if err != nil {
		return o.finish(ctx, job, fmt.Errorf("seller vanished mid-sync: %w", err), "")
	}

	// The release cache is the diff baseline, not the previous snapshot: a
	// listing the cache never absorbed (earlier run aborted at the failure
	// threshold, errored, or was cancelled) must re-enter the queue here.
	current := ReduceListings(listings)
	diff := Diff(seller.Releases, current)
	logging.Info().
		Str("username", job.Username).
		Int("added", len(diff.Added)).
		Int("removed", len(diff.Removed)).
		Int("unchanged", diff.Unchanged).
		Msg("inventory diff computed")

	// The snapshot is persisted before enrichment so an interrupted run can
	// resume its comparison without spending API budget on a refetch.
	if err := o.sellers.SaveInventory(job.Username, current); err != nil {
		return o.finish(ctx, job, err, "")
	}
	if complete {
		if err := o.sellers.PruneReleases(job.Username, diff.Removed); err != nil {
			return o.finish(ctx, job, err, "")
		}
	} else if len(diff.Removed) > 0 {
		// A partial fetch cannot distinguish "sold" from "not seen", so
		// removals are deferred to the next complete run.
		logging.Warn().
			Str("username", job.Username).
			Int("deferred_removals", len(diff.Removed)).
			Msg("partial inventory, keeping possibly removed releases")
	}

	return o.enrich(ctx, job, diff.Added, len(diff.Removed))
}

// Resume continues an interrupted run using the persisted inventory
// snapshot: anything in the snapshot without a cached release still needs
// enrichment. The inventory is not refetched.
func (o *Orchestrator) Resume(ctx context.Context, job *models.Job) error {
	job.Status = models.JobProcessing
	job.CurrentStep = StepComparing
	if err := o.checkpoint(job); err != nil {
		return err
	}

	seller, err := o.sellers.Get(job.Username)
	if err != nil {
		return o.finish(ctx, job, fmt.Errorf("seller vanished before resume: %w", err), "")
	}
	queue := Diff(seller.Releases, seller.Inventory).Added
	logging.Info().
		Str("username", job.Username).
		Str("job_id", job.ID).
		Int("remaining", len(queue)).
		Msg("resuming interrupted sync")
	return o.enrich(ctx, job, queue, 0)
}

func (o *Orchestrator) enrich(ctx context.Context, job *models.Job, queue []models.Listing, removed int) error {
	job.CurrentStep = StepEnriching
	job.Progress = 0
	job.Total = len(queue)
	if err := o.checkpoint(job); err != nil {
		return err
	}

	enriched, skipped, err := o.enricher.Run(ctx, queue, 0,
		func(done int) error {
			job.Progress = done
			return o.checkpoint(job)
		},
		func(batch []models.Release) error {
			return o.sellers.UpsertReleases(job.Username, batch)
		},
	)
	if errors.Is(err, ErrTooManyFailures) {
		logging.Error().
			Str("username", job.Username).
			Int("skipped", skipped).
			Msg("enrichment aborted early, completing with partial results")
		return o.finish(ctx, job, nil,
			fmt.Sprintf("Completed with partial results: %d of %d releases enriched, %d failed", enriched, len(queue), skipped))
	}
	if err != nil {
		return o.finish(ctx, job, err, "")
	}
	if len(queue) == 0 {
		return o.finish(ctx, job, nil, fmt.Sprintf("All releases up to date! (%d removed)", removed))
	}
	return o.finish(ctx, job, nil, fmt.Sprintf("Synced %d new releases (%d removed)", enriched, removed))
}

// finish records the terminal state for the run, with a human-readable
// summary in CurrentStep. A context cancellation only counts as a user
// cancellation when the cancel cause says so; otherwise the process is
// shutting down and the job stays processing so the next start resumes it.
func (o *Orchestrator) finish(ctx context.Context, job *models.Job, runErr error, summary string) error {
	switch {
	case runErr == nil:
		if err := o.sellers.MarkUpdated(job.Username, o.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		job.Status = models.JobComplete
		job.CurrentStep = summary
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		if !errors.Is(context.Cause(ctx), errCancelRequested) {
			return o.jobs.Save(job)
		}
		job.Status = models.JobCancelled
		job.CurrentStep = "Cancelled"
	default:
		job.Status = models.JobError
		job.CurrentStep = "Error: " + runErr.Error()
		logging.Error().
			Str("username", job.Username).
			Str("job_id", job.ID).
			Err(runErr).
			Msg("sync failed")
	}
	metrics.SyncJobs.WithLabelValues(string(job.Status)).Inc()
	return o.checkpoint(job)
}
