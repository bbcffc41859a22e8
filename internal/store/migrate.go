// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/models"
)

const schemaVersionKey = "schema:version"

// currentSchemaVersion is bumped whenever stored documents change shape.
const currentSchemaVersion = 1

// Migrator upgrades persisted documents to the current schema. Each
// migration runs at most once; the applied version is persisted after every
// successful step, so a crash mid-migration resumes where it left off.
type Migrator struct {
	kv KV
}

// NewMigrator returns a Migrator on the given backend.
func NewMigrator(kv KV) *Migrator {
	return &Migrator{kv: kv}
}

// Run applies any pending migrations.
func (m *Migrator) Run() error {
	version, err := m.version()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if version < 1 {
		if err := m.compactInventories(); err != nil {
			return fmt.Errorf("migration 1 (inventory compaction): %w", err)
		}
		if err := m.setVersion(1); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) version() (int, error) {
	data, err := m.kv.Get(schemaVersionKey)
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("corrupt schema version %q: %w", data, err)
	}
	return v, nil
}

func (m *Migrator) setVersion(v int) error {
	return m.kv.Set(schemaVersionKey, []byte(strconv.Itoa(v)))
}

// compactInventories rewrites seller inventories from the original raw API
// shape to the compact listing form, shrinking documents roughly tenfold.
func (m *Migrator) compactInventories() error {
	type rawSeller struct {
		Username    string            `json:"username"`
		AddedAt     time.Time         `json:"added_at"`
		LastUpdated *time.Time        `json:"last_updated,omitempty"`
		Inventory   []json.RawMessage `json:"inventory"`
		Releases    json.RawMessage   `json:"releases"`
	}
	type outSeller struct {
		Username    string           `json:"username"`
		AddedAt     time.Time        `json:"added_at"`
		LastUpdated *time.Time       `json:"last_updated,omitempty"`
		Inventory   []models.Listing `json:"inventory"`
		Releases    json.RawMessage  `json:"releases"`
	}

	migrated := 0
	err := m.kv.Scan(sellerPrefix, func(key string, value []byte) error {
		var raw rawSeller
		if err := json.Unmarshal(value, &raw); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		out := outSeller{
			Username:    raw.Username,
			AddedAt:     raw.AddedAt,
			LastUpdated: raw.LastUpdated,
			Inventory:   make([]models.Listing, 0, len(raw.Inventory)),
			Releases:    raw.Releases,
		}
		if len(out.Releases) == 0 {
			out.Releases = json.RawMessage("[]")
		}
		for _, item := range raw.Inventory {
			l, err := models.DecodeStoredListing(item)
			if err != nil {
				logging.Warn().Str("key", key).Err(err).Msg("dropping undecodable inventory item")
				continue
			}
			out.Inventory = append(out.Inventory, l)
		}
		data, err := json.Marshal(&out)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := m.kv.Set(key, data); err != nil {
			return err
		}
		migrated++
		return nil
	})
	if err != nil {
		return err
	}
	if migrated > 0 {
		logging.Info().Int("sellers", migrated).Msg("compacted stored inventories")
	}
	return nil
}
