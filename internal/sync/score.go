// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package sync implements the seller synchronization pipeline: fetch the
// live inventory, diff it against the stored snapshot, enrich what changed,
// and persist per-item checkpoints so interrupted runs resume instead of
// restarting.
package sync

// Bayesian prior for community ratings: unrated releases gravitate toward
// the scale midpoint until enough votes accumulate.
const (
	ratingPriorMean   = 2.5
	ratingPriorWeight = 10
)

// bayesianScore shrinks a raw community rating toward the prior mean in
// proportion to how few votes it has. A release with zero ratings scores 0,
// which sorts it below anything actually rated.
func bayesianScore(avg float64, numRatings int) float64 {
	if numRatings == 0 {
		return 0
	}
	n := float64(numRatings)
	return (avg*n + ratingPriorMean*ratingPriorWeight) / (n + ratingPriorWeight)
}

// demandCoefficient is the want/have ratio with add-one smoothing so
// zero-have releases do not divide by zero.
func demandCoefficient(want, have int) float64 {
	return float64(want+1) / float64(have+1)
}
