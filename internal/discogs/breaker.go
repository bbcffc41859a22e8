// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package discogs

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
)

// BreakerDoer wraps an underlying Doer in a circuit breaker. When the
// upstream fails repeatedly at the transport level the breaker opens and
// requests fail fast instead of burning the rate-limit budget on a dead
// upstream. HTTP status codes are not failures here; the client classifies
// those itself.
type BreakerDoer struct {
	inner Doer
	cb    *gobreaker.CircuitBreaker[*http.Response]
}

// NewBreakerDoer wraps inner with a circuit breaker that opens after five
// consecutive transport failures and probes again after thirty seconds.
func NewBreakerDoer(inner Doer) *BreakerDoer {
	settings := gobreaker.Settings{
		Name:        "discogs",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.BreakerState.Set(breakerStateValue(to))
		},
	}
	return &BreakerDoer{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}

// Do implements Doer.
func (b *BreakerDoer) Do(req *http.Request) (*http.Response, error) {
	return b.cb.Execute(func() (*http.Response, error) {
		return b.inner.Do(req)
	})
}
