// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBayesianScore(t *testing.T) {
	assert.Zero(t, bayesianScore(5.0, 0), "unrated releases score zero")

	// One perfect vote barely moves the prior.
	assert.InDelta(t, (5.0+2.5*10)/11, bayesianScore(5.0, 1), 1e-9)

	// Many votes dominate the prior.
	assert.InDelta(t, (4.5*1000+2.5*10)/1010, bayesianScore(4.5, 1000), 1e-9)
	assert.Greater(t, bayesianScore(4.5, 1000), bayesianScore(4.5, 3))
}

func TestDemandCoefficient(t *testing.T) {
	assert.InDelta(t, 1.0, demandCoefficient(0, 0), 1e-9)
	assert.InDelta(t, 101.0/11.0, demandCoefficient(100, 10), 1e-9)
	assert.Less(t, demandCoefficient(5, 500), 1.0, "widely held records have low demand")
}
