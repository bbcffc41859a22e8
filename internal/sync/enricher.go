// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"context"
	"errors"

	"github.com/cratedig/cratedig/internal/discogs"
	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
	"github.com/cratedig/cratedig/internal/models"
)

// ErrTooManyFailures aborts enrichment when consecutive item failures cross
// the configured threshold. The sync still completes with what it has; a
// threshold of failures usually means the upstream or the token is broken,
// not the individual releases.
var ErrTooManyFailures = errors.New("sync: enrichment failure threshold reached")

// ReleaseFetcher fetches full release detail.
type ReleaseFetcher interface {
	Release(ctx context.Context, id int) (*discogs.ReleaseDetail, error)
}

// Enricher turns diffed listings into fully scored releases, flushing
// batches to storage as it goes so progress survives a crash.
type Enricher struct {
	client           ReleaseFetcher
	failureThreshold int
	flushEvery       int
}

// NewEnricher returns an Enricher with the given failure threshold and
// flush batch size.
func NewEnricher(client ReleaseFetcher, failureThreshold, flushEvery int) *Enricher {
	return &Enricher{client: client, failureThreshold: failureThreshold, flushEvery: flushEvery}
}

// buildRelease combines the listing (price, condition) with fetched detail
// into the stored release form.
func buildRelease(l models.Listing, d *discogs.ReleaseDetail) models.Release {
	artist := d.ArtistName()
	if artist == "" {
		artist = l.Artist
	}
	title := d.Title
	if title == "" {
		title = l.Title
	}
	label := ""
	if len(d.Labels) > 0 {
		label = d.Labels[0].Name
	}
	videos := make([]models.Video, 0, len(d.Videos))
	for _, v := range d.Videos {
		videos = append(videos, models.Video{URL: v.URI, Title: v.Title})
	}
	return models.Release{
		ID:                d.ID,
		ArtistTitle:       artist + " - " + title,
		Artist:            artist,
		Title:             title,
		Label:             label,
		Year:              d.Year,
		Genres:            d.Genres,
		Styles:            d.Styles,
		AvgRating:         d.Community.Rating.Average,
		NumRatings:        d.Community.Rating.Count,
		BayesianScore:     bayesianScore(d.Community.Rating.Average, d.Community.Rating.Count),
		Price:             l.Price,
		Condition:         l.Condition,
		HaveCount:         d.Community.Have,
		WantCount:         d.Community.Want,
		DemandCoefficient: demandCoefficient(d.Community.Want, d.Community.Have),
		VideoURLs:         videos,
		URL:               d.URI,
	}
}

// Run enriches listings starting at startAt, invoking onItem after every
// attempted item (success or skip) and flush for each completed batch plus
// once at the end. The context is checked between items only; an in-flight
// request always finishes or fails on its own.
func (e *Enricher) Run(
	ctx context.Context,
	listings []models.Listing,
	startAt int,
	onItem func(done int) error,
	flush func(batch []models.Release) error,
) (enriched, skipped int, err error) {
	batch := make([]models.Release, 0, e.flushEvery)
	doFlush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := flush(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for i := startAt; i < len(listings); i++ {
		select {
		case <-ctx.Done():
			if ferr := doFlush(); ferr != nil {
				return enriched, skipped, ferr
			}
			return enriched, skipped, ctx.Err()
		default:
		}

		l := listings[i]
		detail, err := e.client.Release(ctx, l.ReleaseID)
		if err != nil {
			if ctx.Err() != nil {
				if ferr := doFlush(); ferr != nil {
					return enriched, skipped, ferr
				}
				return enriched, skipped, ctx.Err()
			}
			skipped++
			metrics.EnrichmentSkips.Inc()
			logging.Warn().
				Int("release_id", l.ReleaseID).
				Int("skipped", skipped).
				Err(err).
				Msg("skipping release after enrichment failure")
			if skipped >= e.failureThreshold {
				if ferr := doFlush(); ferr != nil {
					return enriched, skipped, ferr
				}
				return enriched, skipped, ErrTooManyFailures
			}
		} else {
			batch = append(batch, buildRelease(l, detail))
			enriched++
			metrics.ReleasesEnriched.Inc()
			if len(batch) >= e.flushEvery {
				if err := doFlush(); err != nil {
					return enriched, skipped, err
				}
			}
		}

		if onItem != nil {
			if err := onItem(i + 1); err != nil {
				return enriched, skipped, err
			}
		}
	}
	return enriched, skipped, doFlush()
}
