// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package discogs

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/models"
)

// Pagination is the standard Discogs pagination envelope.
type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Items int `json:"items"`
}

// InventoryPage is one page of a seller's for-sale listings.
type InventoryPage struct {
	Pagination Pagination          `json:"pagination"`
	Listings   []models.RawListing `json:"listings"`
}

// InventoryPage fetches one page of a seller's for-sale inventory.
func (c *Client) InventoryPage(ctx context.Context, username string, page, perPage int) (*InventoryPage, error) {
	q := url.Values{}
	q.Set("status", "For Sale")
	q.Set("sort", "artist")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	var out InventoryPage
	path := fmt.Sprintf("/users/%s/inventory", url.PathEscape(username))
	if err := c.get(ctx, "inventory", path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Identity returns the username the configured token authenticates as. It
// is a cheap credential check used by the API surface and bypasses the
// pacer: it must answer promptly even while a sync has the quota saturated,
// and it is too rare to threaten the limit itself.
func (c *Client) Identity(ctx context.Context) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := c.getUnpaced(ctx, "identity", "/oauth/identity", nil, &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

// WalkInventory fetches a seller's inventory page by page, invoking onPage
// for each page's listings. Pagination stops at maxPages even if the seller
// has more; sellers that large exceed what a single sync can enrich anyway.
//
// A page failure after at least one successful page stops the walk and
// returns the listings gathered so far with ok=false, so the caller can
// proceed on partial data. A failure on the first page returns the error.
func (c *Client) WalkInventory(ctx context.Context, username string, perPage, maxPages int, onPage func(page, pages int, listings []models.RawListing)) (ok bool, err error) {
	page := 1
	for {
		p, err := c.InventoryPage(ctx, username, page, perPage)
		if err != nil {
			if page == 1 {
				return false, err
			}
			logging.Warn().
				Str("username", username).
				Int("page", page).
				Err(err).
				Msg("inventory page failed, continuing with partial inventory")
			return false, nil
		}
		if onPage != nil {
			onPage(p.Pagination.Page, p.Pagination.Pages, p.Listings)
		}
		if page >= p.Pagination.Pages || len(p.Listings) == 0 {
			return true, nil
		}
		page++
		if page > maxPages {
			logging.Warn().
				Str("username", username).
				Int("max_pages", maxPages).
				Msg("inventory truncated at page cap")
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
	}
}
