// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package models provides data models for the application.
package models

import "time"

// Listing is one marketplace offer in its compact normalized form. Listings
// are ephemeral inputs to the sync pipeline; many listings can map to the
// same release.
type Listing struct {
	ReleaseID int     `json:"releaseId"`
	Artist    string  `json:"artist"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Condition string  `json:"condition"`
}

// Video is a linked video (usually YouTube) attached to a release.
type Video struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Release is an enriched release persisted per seller. Exactly one Release
// exists per distinct release ID within a seller's collection; when multiple
// listings share a release ID, the lowest positive price wins.
type Release struct {
	ID                int      `json:"id"`
	ArtistTitle       string   `json:"artist_title"`
	Artist            string   `json:"artist"`
	Title             string   `json:"title"`
	Label             string   `json:"label,omitempty"`
	Year              int      `json:"year,omitempty"`
	Genres            []string `json:"genres"`
	Styles            []string `json:"styles"`
	AvgRating         float64  `json:"avg_rating"`
	NumRatings        int      `json:"num_ratings"`
	BayesianScore     float64  `json:"bayesian_score"`
	Price             float64  `json:"price"`
	Condition         string   `json:"condition"`
	HaveCount         int      `json:"have_count"`
	WantCount         int      `json:"want_count"`
	DemandCoefficient float64  `json:"demand_coeff"`
	VideoURLs         []Video  `json:"video_urls"`
	URL               string   `json:"url"`
}

// Seller is a tracked Discogs seller with the latest raw inventory snapshot
// and the enriched release cache. The seller record exclusively owns both
// collections. The in-flight sync job is NOT part of the persisted record;
// the API joins it in from the job store at read time, so deleting a job can
// never touch seller data.
type Seller struct {
	Username    string     `json:"username"`
	AddedAt     time.Time  `json:"added_at"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Inventory   []Listing  `json:"inventory"`
	Releases    []Release  `json:"releases"`
}

// UniqueReleaseCount returns the number of distinct release IDs in the
// seller's inventory snapshot.
func (s *Seller) UniqueReleaseCount() int {
	seen := make(map[int]struct{}, len(s.Inventory))
	for _, l := range s.Inventory {
		seen[l.ReleaseID] = struct{}{}
	}
	return len(seen)
}

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

// Job lifecycle states. Processing is the only non-terminal status.
const (
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
	JobCancelled  JobStatus = "cancelled"
)

// Job is the durable record of one long-running sync operation. It survives
// process restarts so an interrupted sync resumes rather than restarts.
type Job struct {
	ID          string    `json:"job_id"`
	Username    string    `json:"username"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	CurrentStep string    `json:"current_step"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobComplete || j.Status == JobError || j.Status == JobCancelled
}

// StaleAt reports whether the job is older than maxAge at the given instant.
// Stale jobs are garbage-collected at startup.
func (j *Job) StaleAt(now time.Time, maxAge time.Duration) bool {
	return now.Sub(j.CreatedAt) > maxAge
}
