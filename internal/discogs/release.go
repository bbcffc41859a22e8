// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package discogs

import (
	"context"
	"fmt"
	"strings"
)

// ReleaseDetail is the subset of the release endpoint the enricher consumes.
type ReleaseDetail struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Year    int    `json:"year"`
	URI     string `json:"uri"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Genres    []string `json:"genres"`
	Styles    []string `json:"styles"`
	Community struct {
		Have   int `json:"have"`
		Want   int `json:"want"`
		Rating struct {
			Average float64 `json:"average"`
			Count   int     `json:"count"`
		} `json:"rating"`
	} `json:"community"`
	Videos []struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"videos"`
}

// ArtistName joins the credited artists, stripping the numeric disambiguation
// suffixes Discogs appends to duplicate names.
func (r *ReleaseDetail) ArtistName() string {
	names := make([]string, 0, len(r.Artists))
	for _, a := range r.Artists {
		name := a.Name
		if i := strings.LastIndex(name, " ("); i > 0 && strings.HasSuffix(name, ")") {
			if isNumeric(name[i+2 : len(name)-1]) {
				name = name[:i]
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Release fetches full detail for one release.
func (c *Client) Release(ctx context.Context, id int) (*ReleaseDetail, error) {
	var out ReleaseDetail
	if err := c.get(ctx, "release", fmt.Sprintf("/releases/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
