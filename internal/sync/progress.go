// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import "github.com/cratedig/cratedig/internal/models"

// Sync phases, persisted in the job record and broadcast to subscribers.
// These are display strings shown as-is in the UI; terminal outcomes get a
// per-run summary written by the orchestrator instead of a fixed label.
const (
	StepFetching  = "Fetching inventory"
	StepComparing = "Comparing against cached releases"
	StepEnriching = "Enriching new releases"
)

// ProgressEvent is one job state change pushed to websocket subscribers.
type ProgressEvent struct {
	JobID       string           `json:"job_id"`
	Username    string           `json:"username"`
	Status      models.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	Total       int              `json:"total"`
	CurrentStep string           `json:"current_step"`
}

// Broadcaster pushes progress events to live subscribers. The websocket hub
// implements it; NopBroadcaster serves tests and headless runs.
type Broadcaster interface {
	BroadcastProgress(ev ProgressEvent)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// BroadcastProgress implements Broadcaster.
func (NopBroadcaster) BroadcastProgress(ProgressEvent) {}

func eventFor(job *models.Job) ProgressEvent {
	return ProgressEvent{
		JobID:       job.ID,
		Username:    job.Username,
		Status:      job.Status,
		Progress:    job.Progress,
		Total:       job.Total,
		CurrentStep: job.CurrentStep,
	}
}
