// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/models"
)

func TestBadgerKVRoundTrip(t *testing.T) {
	kv, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set("a:1", []byte("one")))
	require.NoError(t, kv.Set("a:2", []byte("two")))
	require.NoError(t, kv.Set("b:1", []byte("three")))

	got, err := kv.Get("a:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), got)

	_, err = kv.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var keys []string
	require.NoError(t, kv.Scan("a:", func(key string, value []byte) error {
		keys = append(keys, key)
		return nil
	}))
	assert.ElementsMatch(t, []string{"a:1", "a:2"}, keys)

	require.NoError(t, kv.Delete("a:1"))
	_, err = kv.Get("a:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStoreLifecycle(t *testing.T) {
	s := NewJobStore(NewMemoryKV())
	now := time.Now()

	job := &models.Job{ID: "j1", Username: "digger", Status: models.JobProcessing, CreatedAt: now}
	require.NoError(t, s.Save(job))

	got, err := s.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, "digger", got.Username)

	job.Progress = 5
	job.Status = models.JobComplete
	require.NoError(t, s.Save(job))
	got, err = s.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Progress)
	assert.Equal(t, models.JobComplete, got.Status)

	require.NoError(t, s.Save(&models.Job{ID: "j2", Username: "digger", CreatedAt: now.Add(time.Minute)}))
	latest, err := s.FindByUsername("digger")
	require.NoError(t, err)
	assert.Equal(t, "j2", latest.ID)

	require.NoError(t, s.Delete("j1"))
	_, err = s.Get("j1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStoreDeleteStale(t *testing.T) {
	s := NewJobStore(NewMemoryKV())
	now := time.Now()
	require.NoError(t, s.Save(&models.Job{ID: "old", CreatedAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, s.Save(&models.Job{ID: "fresh", CreatedAt: now.Add(-time.Hour)}))

	removed, err := s.DeleteStale(now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestSellerRepoLifecycle(t *testing.T) {
	r := NewSellerRepo(NewMemoryKV())
	require.NoError(t, r.Save(&models.Seller{Username: "Digger", AddedAt: time.Now()}))

	ok, err := r.Exists("digger")
	require.NoError(t, err)
	assert.True(t, ok, "usernames are case-insensitive keys")

	require.NoError(t, r.SaveInventory("Digger", []models.Listing{{ReleaseID: 1, Price: 10}}))
	require.NoError(t, r.UpsertReleases("Digger", []models.Release{{ID: 1, Title: "First"}}))
	require.NoError(t, r.UpsertReleases("Digger", []models.Release{{ID: 1, Title: "Updated"}, {ID: 2, Title: "Second"}}))

	s, err := r.Get("digger")
	require.NoError(t, err)
	require.Len(t, s.Releases, 2)
	assert.Equal(t, "Updated", s.Releases[0].Title)

	require.NoError(t, r.PruneReleases("Digger", []int{1}))
	s, err = r.Get("digger")
	require.NoError(t, err)
	require.Len(t, s.Releases, 1)
	assert.Equal(t, 2, s.Releases[0].ID)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, r.MarkUpdated("Digger", at))
	s, err = r.Get("digger")
	require.NoError(t, err)
	require.NotNil(t, s.LastUpdated)
	assert.True(t, s.LastUpdated.Equal(at))

	require.NoError(t, r.Delete("Digger"))
	ok, err = r.Exists("digger")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSellerRepoListSorted(t *testing.T) {
	r := NewSellerRepo(NewMemoryKV())
	for _, u := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Save(&models.Seller{Username: u}))
	}
	sellers, err := r.List()
	require.NoError(t, err)
	require.Len(t, sellers, 3)
	assert.Equal(t, "alpha", sellers[0].Username)
	assert.Equal(t, "zeta", sellers[2].Username)
}

func TestMigratorCompactsLegacyInventory(t *testing.T) {
	kv := NewMemoryKV()
	legacy := `{"username":"digger","added_at":"2025-01-01T00:00:00Z","inventory":[` +
		`{"release":{"id":7,"artist":"A","title":"T"},"price":{"value":12.5},"condition":"VG+"}` +
		`],"releases":[{"id":7,"title":"T"}]}`
	require.NoError(t, kv.Set("seller:digger", []byte(legacy)))

	m := NewMigrator(kv)
	require.NoError(t, m.Run())

	s, err := NewSellerRepo(kv).Get("digger")
	require.NoError(t, err)
	require.Len(t, s.Inventory, 1)
	assert.Equal(t, models.Listing{ReleaseID: 7, Artist: "A", Title: "T", Price: 12.5, Condition: "VG+"}, s.Inventory[0])
	require.Len(t, s.Releases, 1)

	v, err := kv.Get(schemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
}

func TestMigratorIsIdempotent(t *testing.T) {
	kv := NewMemoryKV()
	r := NewSellerRepo(kv)
	require.NoError(t, r.Save(&models.Seller{
		Username:  "digger",
		Inventory: []models.Listing{{ReleaseID: 1, Artist: "A", Title: "T", Price: 3}},
	}))

	m := NewMigrator(kv)
	require.NoError(t, m.Run())
	require.NoError(t, m.Run())

	s, err := r.Get("digger")
	require.NoError(t, err)
	require.Len(t, s.Inventory, 1)
	assert.Equal(t, 1, s.Inventory[0].ReleaseID)
}
