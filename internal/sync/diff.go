// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"sort"
	"strings"

	"github.com/cratedig/cratedig/internal/models"
)

// ReduceListings collapses multiple listings of the same release into one.
// First-seen order is preserved; within a release the lowest positive price
// wins, so a seller offering both a beater copy and a mint copy surfaces
// the cheaper entry point.
func ReduceListings(listings []models.Listing) []models.Listing {
	index := make(map[int]int, len(listings))
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		i, seen := index[l.ReleaseID]
		if !seen {
			index[l.ReleaseID] = len(out)
			out = append(out, l)
			continue
		}
		if l.Price > 0 && (out[i].Price <= 0 || l.Price < out[i].Price) {
			out[i] = l
		}
	}
	return out
}

// DiffResult is the outcome of comparing the release cache against a fresh
// inventory snapshot.
type DiffResult struct {
	// Added holds listings with no cached release, sorted by artist then
	// title so enrichment progresses in a stable, browsable order.
	Added []models.Listing
	// Removed holds cached release IDs no longer present in the snapshot.
	Removed []int
	// Unchanged counts releases present in both.
	Unchanged int
}

// Diff compares the enriched release cache against the current reduced
// snapshot by release ID. The cache is the baseline, not the previous raw
// snapshot: a release that was seen before but never made it into the cache
// (a run that aborted at the failure threshold, errored, or was cancelled)
// still counts as new and gets enriched on the next run.
func Diff(cached []models.Release, current []models.Listing) DiffResult {
	prev := make(map[int]struct{}, len(cached))
	for _, r := range cached {
		prev[r.ID] = struct{}{}
	}
	cur := make(map[int]struct{}, len(current))
	for _, l := range current {
		cur[l.ReleaseID] = struct{}{}
	}

	var res DiffResult
	for _, l := range current {
		if _, ok := prev[l.ReleaseID]; ok {
			res.Unchanged++
		} else {
			res.Added = append(res.Added, l)
		}
	}
	for _, r := range cached {
		if _, ok := cur[r.ID]; !ok {
			res.Removed = append(res.Removed, r.ID)
		}
	}
	sort.SliceStable(res.Added, func(i, j int) bool {
		a, b := res.Added[i], res.Added[j]
		if c := strings.Compare(strings.ToLower(a.Artist), strings.ToLower(b.Artist)); c != 0 {
			return c < 0
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
	return res
}
