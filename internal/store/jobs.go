// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package store

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/models"
)

const jobPrefix = "job:"

// JobStore persists sync jobs. Jobs are small and written often (once per
// enriched item), so each update is a full-document overwrite.
type JobStore struct {
	kv KV
}

// NewJobStore returns a JobStore on the given backend.
func NewJobStore(kv KV) *JobStore {
	return &JobStore{kv: kv}
}

func jobKey(id string) string { return jobPrefix + id }

// Save writes the job, creating or overwriting.
func (s *JobStore) Save(job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return s.kv.Set(jobKey(job.ID), data)
}

// Get returns the job by ID, or ErrNotFound.
func (s *JobStore) Get(id string) (*models.Job, error) {
	data, err := s.kv.Get(jobKey(id))
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// Delete removes the job. Deleting a missing job is not an error.
func (s *JobStore) Delete(id string) error {
	return s.kv.Delete(jobKey(id))
}

// List returns all persisted jobs.
func (s *JobStore) List() ([]*models.Job, error) {
	var jobs []*models.Job
	err := s.kv.Scan(jobPrefix, func(key string, value []byte) error {
		var job models.Job
		if err := json.Unmarshal(value, &job); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("skipping undecodable job record")
			return nil
		}
		jobs = append(jobs, &job)
		return nil
	})
	return jobs, err
}

// FindByUsername returns the most recent job for the seller, or nil.
func (s *JobStore) FindByUsername(username string) (*models.Job, error) {
	jobs, err := s.List()
	if err != nil {
		return nil, err
	}
	var latest *models.Job
	for _, j := range jobs {
		if j.Username != username {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	return latest, nil
}

// DeleteStale removes jobs older than maxAge and returns how many were
// dropped. Run at startup so crashed runs do not accumulate forever.
func (s *JobStore) DeleteStale(now time.Time, maxAge time.Duration) (int, error) {
	jobs, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, j := range jobs {
		if !j.StaleAt(now, maxAge) {
			continue
		}
		if err := s.Delete(j.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
