// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"context"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/models"
)

// InventoryWalker pages through a seller's for-sale listings.
type InventoryWalker interface {
	WalkInventory(ctx context.Context, username string, perPage, maxPages int, onPage func(page, pages int, listings []models.RawListing)) (bool, error)
}

// InventoryFetcher pulls a seller's full inventory and normalizes it to the
// compact listing form.
type InventoryFetcher struct {
	walker   InventoryWalker
	pageSize int
	maxPages int
}

// NewInventoryFetcher returns a fetcher using the given page size and cap.
func NewInventoryFetcher(walker InventoryWalker, pageSize, maxPages int) *InventoryFetcher {
	return &InventoryFetcher{walker: walker, pageSize: pageSize, maxPages: maxPages}
}

// Fetch returns the normalized inventory. complete is false when pagination
// stopped early (a failed later page or the page cap); partial inventories
// are still usable for enrichment but unsafe for removal pruning.
func (f *InventoryFetcher) Fetch(ctx context.Context, username string, onPage func(page, pages int)) (listings []models.Listing, complete bool, err error) {
	complete, err = f.walker.WalkInventory(ctx, username, f.pageSize, f.maxPages, func(page, pages int, raw []models.RawListing) {
		for i := range raw {
			listings = append(listings, raw[i].Normalize())
		}
		if onPage != nil {
			onPage(page, pages)
		}
	})
	if err != nil {
		return nil, false, err
	}
	logging.Info().
		Str("username", username).
		Int("listings", len(listings)).
		Bool("complete", complete).
		Msg("fetched inventory")
	return listings, complete, nil
}
