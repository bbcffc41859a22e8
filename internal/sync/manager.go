// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cratedig/cratedig/internal/config"
	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
	"github.com/cratedig/cratedig/internal/models"
	"github.com/cratedig/cratedig/internal/store"
)

// ErrSyncInProgress rejects a second concurrent sync for the same seller.
var ErrSyncInProgress = errors.New("sync: a sync is already running for this seller")

// ErrJobRunning rejects deleting a job that is still in flight.
var ErrJobRunning = errors.New("sync: job is still running, cancel it first")

// ErrNotServing is returned when a sync is requested before the manager's
// Serve loop has started or after it stopped.
var ErrNotServing = errors.New("sync: manager is not serving")

// errCancelRequested is the cancel cause for an explicit user cancellation.
// It separates "the user hit cancel" from "the process is shutting down":
// only the former marks the job cancelled, the latter leaves it processing
// so the next start resumes it.
var errCancelRequested = errors.New("sync: cancellation requested")

// Manager owns all sync runs. It enforces the one-run-per-seller rule,
// resumes interrupted runs at startup, garbage-collects stale job records,
// and deletes terminal jobs after a short grace so pollers catch the final
// state. It runs as a service under the supervision tree.
type Manager struct {
	cfg     config.SyncConfig
	orch    *Orchestrator
	sellers *store.SellerRepo
	jobs    *store.JobStore

	mu     sync.Mutex
	ctx    context.Context
	active map[string]*activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	jobID  string
	cancel context.CancelCauseFunc
}

// NewManager wires a Manager.
func NewManager(cfg config.SyncConfig, orch *Orchestrator, sellers *store.SellerRepo, jobs *store.JobStore) *Manager {
	return &Manager{
		cfg:     cfg,
		orch:    orch,
		sellers: sellers,
		jobs:    jobs,
		active:  make(map[string]*activeRun),
	}
}

// String implements suture's service naming.
func (m *Manager) String() string { return "sync-manager" }

// Serve implements suture.Service. It garbage-collects stale jobs, resumes
// interrupted runs, then blocks until the context is cancelled.
func (m *Manager) Serve(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if removed, err := m.jobs.DeleteStale(time.Now(), m.cfg.JobRetention); err != nil {
		logging.Error().Err(err).Msg("stale job cleanup failed")
	} else if removed > 0 {
		logging.Info().Int("removed", removed).Msg("cleaned up stale jobs")
	}
	m.resumeInterrupted()

	<-ctx.Done()
	m.mu.Lock()
	m.ctx = nil
	m.mu.Unlock()
	m.wg.Wait()
	return ctx.Err()
}

func (m *Manager) resumeInterrupted() {
	jobs, err := m.jobs.List()
	if err != nil {
		logging.Error().Err(err).Msg("listing jobs for resume failed")
		return
	}
	for _, job := range jobs {
		if job.Status != models.JobProcessing {
			continue
		}
		ok, err := m.sellers.Exists(job.Username)
		if err != nil || !ok {
			logging.Warn().Str("job_id", job.ID).Str("username", job.Username).
				Msg("dropping orphaned job, seller no longer tracked")
			m.jobs.Delete(job.ID)
			continue
		}
		if err := m.launch(job, true); err != nil {
			logging.Warn().Str("job_id", job.ID).Err(err).Msg("resume skipped")
		}
	}
}

// StartSync begins a sync for the seller and returns the new job. At most
// one run per seller may be in flight.
func (m *Manager) StartSync(username string) (*models.Job, error) {
	if _, err := m.sellers.Get(username); err != nil {
		return nil, err
	}
	job := &models.Job{
		ID:          uuid.NewString(),
		Username:    username,
		Status:      models.JobProcessing,
		CurrentStep: StepFetching,
		CreatedAt:   time.Now(),
	}
	if err := m.launch(job, false); err != nil {
		return nil, err
	}
	return job, nil
}

func (m *Manager) launch(job *models.Job, resume bool) error {
	key := strings.ToLower(job.Username)

	m.mu.Lock()
	if m.ctx == nil {
		m.mu.Unlock()
		return ErrNotServing
	}
	if _, busy := m.active[key]; busy {
		m.mu.Unlock()
		return ErrSyncInProgress
	}
	runCtx, cancel := context.WithCancelCause(m.ctx)
	m.active[key] = &activeRun{jobID: job.ID, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.jobs.Save(job); err != nil {
		m.release(key, cancel)
		m.wg.Done()
		return err
	}

	go m.run(runCtx, cancel, key, job, resume)
	return nil
}

func (m *Manager) release(key string, cancel context.CancelCauseFunc) {
	cancel(nil)
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, cancel context.CancelCauseFunc, key string, job *models.Job, resume bool) {
	defer m.wg.Done()
	defer m.release(key, cancel)

	metrics.SyncActive.Inc()
	defer metrics.SyncActive.Dec()

	var err error
	if resume {
		err = m.orch.Resume(ctx, job)
	} else {
		err = m.orch.Run(ctx, job)
	}
	if err != nil {
		logging.Error().Str("job_id", job.ID).Err(err).Msg("sync run checkpointing failed")
		return
	}
	// A shutdown-interrupted run leaves the job processing for resume at the
	// next start; only terminal records get the grace-period cleanup.
	if job.IsTerminal() {
		m.scheduleCleanup(job)
	}
}

// scheduleCleanup deletes the terminal job record after the grace period.
// If the process stops first the record survives and startup GC handles it.
func (m *Manager) scheduleCleanup(job *models.Job) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	go func() {
		t := time.NewTimer(m.cfg.TerminalGrace)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			if err := m.jobs.Delete(job.ID); err != nil {
				logging.Warn().Str("job_id", job.ID).Err(err).Msg("terminal job cleanup failed")
			}
		}
	}()
}

// CancelSync requests cancellation of a running job. Cancelling a job that
// already reached a terminal state is a no-op.
func (m *Manager) CancelSync(jobID string) error {
	m.mu.Lock()
	for _, run := range m.active {
		if run.jobID == jobID {
			run.cancel(errCancelRequested)
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()

	job, err := m.jobs.Get(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}
	// Orphaned processing record with no live run: mark it cancelled.
	job.Status = models.JobCancelled
	job.CurrentStep = "Cancelled"
	return m.jobs.Save(job)
}

// GetJob returns the persisted job state.
func (m *Manager) GetJob(jobID string) (*models.Job, error) {
	return m.jobs.Get(jobID)
}

// DeleteJob removes a terminal job record. Running jobs must be cancelled
// first.
func (m *Manager) DeleteJob(jobID string) error {
	m.mu.Lock()
	for _, run := range m.active {
		if run.jobID == jobID {
			m.mu.Unlock()
			return ErrJobRunning
		}
	}
	m.mu.Unlock()

	if _, err := m.jobs.Get(jobID); err != nil {
		return err
	}
	return m.jobs.Delete(jobID)
}

// JobForSeller returns the seller's most recent job, or nil when none
// exists. The API uses it to join live sync state onto seller reads.
func (m *Manager) JobForSeller(username string) (*models.Job, error) {
	return m.jobs.FindByUsername(username)
}

// Serving reports whether the manager's Serve loop is active.
func (m *Manager) Serving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx != nil
}

// Running reports whether a sync is currently in flight for the seller.
func (m *Manager) Running(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[strings.ToLower(username)]
	return ok
}
