// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package discogs

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
)

// windowResetBuffer pads the rolling-window sleep so a request issued the
// instant the window frees up does not race the upstream's own accounting.
const windowResetBuffer = time.Second

// Pacer spaces requests to stay inside the upstream's authenticated quota.
// It enforces two independent constraints: a minimum interval between
// consecutive requests, and a hard cap on requests inside a rolling window.
// The stricter constraint wins at any moment.
type Pacer struct {
	gate         *rate.Limiter
	window       time.Duration
	maxPerWindow int

	mu    sync.Mutex
	sent  []time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a Pacer allowing at most maxPerWindow requests per window
// and never less than minInterval between consecutive requests.
func NewPacer(minInterval, window time.Duration, maxPerWindow int) *Pacer {
	return &Pacer{
		gate:         rate.NewLimiter(rate.Every(minInterval), 1),
		window:       window,
		maxPerWindow: maxPerWindow,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until a request may be sent, or until ctx is cancelled. On
// success the request slot is consumed.
func (p *Pacer) Wait(ctx context.Context) error {
	start := p.now()
	if err := p.gate.Wait(ctx); err != nil {
		return err
	}
	for {
		p.mu.Lock()
		cutoff := p.now().Add(-p.window)
		live := p.sent[:0]
		for _, t := range p.sent {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		p.sent = live
		if len(p.sent) < p.maxPerWindow {
			p.sent = append(p.sent, p.now())
			p.mu.Unlock()
			if waited := p.now().Sub(start); waited > 0 {
				metrics.RateLimiterWaitSeconds.Observe(waited.Seconds())
			}
			return nil
		}
		oldest := p.sent[0]
		p.mu.Unlock()

		delay := oldest.Add(p.window + windowResetBuffer).Sub(p.now())
		if delay < 0 {
			delay = 0
		}
		logging.Debug().Dur("delay", delay).Msg("rate window full, pausing")
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Penalize blocks for the server-requested cooldown after a throttled
// response, without consuming a request slot.
func (p *Pacer) Penalize(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	logging.Warn().Dur("delay", d).Msg("upstream throttled, backing off")
	return p.sleep(ctx, d)
}
