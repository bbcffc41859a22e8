// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/cratedig/cratedig/internal/models"
)

const sellerPrefix = "seller:"

// SellerRepo persists tracked sellers, each with their inventory snapshot
// and enriched release cache. A per-repo mutex serializes read-modify-write
// cycles; seller documents are only ever mutated by one sync run at a time,
// but API deletes can race a running sync.
type SellerRepo struct {
	mu sync.Mutex
	kv KV
}

// NewSellerRepo returns a SellerRepo on the given backend.
func NewSellerRepo(kv KV) *SellerRepo {
	return &SellerRepo{kv: kv}
}

func sellerKey(username string) string {
	return sellerPrefix + strings.ToLower(username)
}

// Save writes the full seller document.
func (r *SellerRepo) Save(s *models.Seller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(s)
}

func (r *SellerRepo) put(s *models.Seller) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode seller %s: %w", s.Username, err)
	}
	return r.kv.Set(sellerKey(s.Username), data)
}

// Get returns the seller by username, or ErrNotFound.
func (r *SellerRepo) Get(username string) (*models.Seller, error) {
	data, err := r.kv.Get(sellerKey(username))
	if err != nil {
		return nil, err
	}
	var s models.Seller
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode seller %s: %w", username, err)
	}
	return &s, nil
}

// Exists reports whether the seller is tracked.
func (r *SellerRepo) Exists(username string) (bool, error) {
	_, err := r.kv.Get(sellerKey(username))
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the seller and all associated data.
func (r *SellerRepo) Delete(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.kv.Delete(sellerKey(username))
}

// List returns all tracked sellers sorted by username.
func (r *SellerRepo) List() ([]*models.Seller, error) {
	var sellers []*models.Seller
	err := r.kv.Scan(sellerPrefix, func(key string, value []byte) error {
		var s models.Seller
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		sellers = append(sellers, &s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sellers, func(i, j int) bool {
		return sellers[i].Username < sellers[j].Username
	})
	return sellers, nil
}

// SaveInventory replaces the seller's raw inventory snapshot. The snapshot
// is persisted before enrichment begins so an interrupted run can resume
// its diff without refetching.
func (r *SellerRepo) SaveInventory(username string, inv []models.Listing) error {
	return r.update(username, func(s *models.Seller) {
		s.Inventory = inv
	})
}

// UpsertReleases merges the given releases into the seller's cache,
// replacing entries with matching IDs.
func (r *SellerRepo) UpsertReleases(username string, releases []models.Release) error {
	return r.update(username, func(s *models.Seller) {
		byID := make(map[int]int, len(s.Releases))
		for i, rel := range s.Releases {
			byID[rel.ID] = i
		}
		for _, rel := range releases {
			if i, ok := byID[rel.ID]; ok {
				s.Releases[i] = rel
			} else {
				byID[rel.ID] = len(s.Releases)
				s.Releases = append(s.Releases, rel)
			}
		}
	})
}

// PruneReleases drops cached releases whose IDs are in removed.
func (r *SellerRepo) PruneReleases(username string, removed []int) error {
	if len(removed) == 0 {
		return nil
	}
	gone := make(map[int]struct{}, len(removed))
	for _, id := range removed {
		gone[id] = struct{}{}
	}
	return r.update(username, func(s *models.Seller) {
		kept := s.Releases[:0]
		for _, rel := range s.Releases {
			if _, ok := gone[rel.ID]; !ok {
				kept = append(kept, rel)
			}
		}
		s.Releases = kept
	})
}

// MarkUpdated stamps the seller's last successful sync time.
func (r *SellerRepo) MarkUpdated(username string, at time.Time) error {
	return r.update(username, func(s *models.Seller) {
		s.LastUpdated = &at
	})
}

func (r *SellerRepo) update(username string, mutate func(*models.Seller)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.Get(username)
	if err != nil {
		return err
	}
	mutate(s)
	return r.put(s)
}
