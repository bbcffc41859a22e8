// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package models

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// FlexPrice decodes a marketplace price that the upstream API serves either
// as a bare number, a numeric string, or an object with a "value" field.
type FlexPrice float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *FlexPrice) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" {
		*p = 0
		return nil
	}
	switch data[0] {
	case '{':
		var obj struct {
			Value FlexPrice `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*p = obj.Value
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*p = 0
			return nil
		}
		*p = FlexPrice(f)
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*p = FlexPrice(f)
	}
	return nil
}

// RawListing mirrors the wire shape of a marketplace listing. Older API
// responses spell the condition field differently, so all known spellings
// are captured and resolved in Normalize.
type RawListing struct {
	Release struct {
		ID     int    `json:"id"`
		Artist string `json:"artist"`
		Title  string `json:"title"`
	} `json:"release"`
	Price          FlexPrice `json:"price"`
	OriginalPrice  FlexPrice `json:"original_price"`
	Condition      string    `json:"condition"`
	MediaCondition string    `json:"media_condition"`
	ItemCondition  string    `json:"item_condition"`
	ConditionGrade string    `json:"condition_grade"`
}

// Normalize converts a raw wire listing into the compact form the pipeline
// stores and diffs. Missing artist or title fall back to placeholder values
// so downstream display never renders an empty string.
func (r *RawListing) Normalize() Listing {
	artist := r.Release.Artist
	if artist == "" {
		artist = "Unknown Artist"
	}
	title := r.Release.Title
	if title == "" {
		title = "Unknown Title"
	}
	price := float64(r.Price)
	if price == 0 {
		price = float64(r.OriginalPrice)
	}
	cond := r.Condition
	for _, c := range []string{r.MediaCondition, r.ItemCondition, r.ConditionGrade} {
		if cond != "" {
			break
		}
		cond = c
	}
	return Listing{
		ReleaseID: r.Release.ID,
		Artist:    artist,
		Title:     title,
		Price:     price,
		Condition: cond,
	}
}

// DecodeStoredListing decodes a persisted inventory item that may predate
// the compact format. Pre-compaction records stored the full raw listing;
// the storage migration rewrites them, but decode tolerates both shapes so
// a partially migrated store still reads cleanly.
func DecodeStoredListing(data []byte) (Listing, error) {
	var compact struct {
		ReleaseID      *int      `json:"releaseId"`
		ReleaseIDSnake *int      `json:"release_id"`
		Artist         string    `json:"artist"`
		Title          string    `json:"title"`
		Price          FlexPrice `json:"price"`
		Condition      string    `json:"condition"`
	}
	if err := json.Unmarshal(data, &compact); err != nil {
		return Listing{}, err
	}
	if compact.ReleaseID != nil || compact.ReleaseIDSnake != nil {
		id := 0
		switch {
		case compact.ReleaseID != nil:
			id = *compact.ReleaseID
		case compact.ReleaseIDSnake != nil:
			id = *compact.ReleaseIDSnake
		}
		return Listing{
			ReleaseID: id,
			Artist:    compact.Artist,
			Title:     compact.Title,
			Price:     float64(compact.Price),
			Condition: compact.Condition,
		}, nil
	}
	var raw RawListing
	if err := json.Unmarshal(data, &raw); err != nil {
		return Listing{}, err
	}
	return raw.Normalize(), nil
}
