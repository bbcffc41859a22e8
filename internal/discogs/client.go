// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package discogs implements a paced, retrying client for the Discogs API.
// Every request funnels through a shared Pacer so concurrent callers cannot
// collectively exceed the authenticated quota, and through a circuit breaker
// that sheds load when the upstream is persistently failing.
package discogs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/cratedig/cratedig/internal/config"
	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/metrics"
)

const defaultBaseURL = "https://api.discogs.com"

// fallbackRetryAfter is used when a 429 response omits the Retry-After
// header.
const fallbackRetryAfter = 60 * time.Second

// disguisedBackoffFactor scales the normal backoff for 403 responses, which
// Discogs serves in place of 429 when throttling aggressively.
const disguisedBackoffFactor = 3

// Doer executes a single HTTP request. *http.Client satisfies it, as does
// the circuit-breaker wrapper.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Discogs API. All methods respect the shared Pacer and
// retry transient failures with exponential backoff.
type Client struct {
	baseURL   string
	token     string
	proxyURL  string
	userAgent string

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	pacer *Pacer
	doer  Doer
}

// NewClient builds a Client from configuration. The Doer is typically an
// *http.Client wrapped in a circuit breaker; pass nil to use a plain client
// with the configured timeout.
func NewClient(cfg config.DiscogsConfig, pacer *Pacer, doer Doer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Client{
		baseURL:    defaultBaseURL,
		token:      cfg.Token,
		proxyURL:   strings.TrimRight(cfg.ProxyURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
		pacer:      pacer,
		doer:       doer,
	}
}

// get performs a paced, retried GET against the given API path and decodes
// the JSON response into out.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.request(ctx, endpoint, path, query, out, true)
}

// getUnpaced skips the Pacer. Only cheap control-plane calls such as the
// identity check use it; inventory and release traffic must stay paced.
func (c *Client) getUnpaced(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.request(ctx, endpoint, path, query, out, false)
}

func (c *Client) request(ctx context.Context, endpoint, path string, query url.Values, out any, paced bool) error {
	if c.token == "" {
		metrics.DiscogsRequests.WithLabelValues(endpoint, "bad_request").Inc()
		return ErrMissingCredentials
	}

	target := c.baseURL + path
	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("token", c.token)
	target += "?" + q.Encode()

	backoff := c.baseDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.DiscogsRetries.WithLabelValues(endpoint).Inc()
			logging.Warn().
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Err(lastErr).
				Msg("retrying discogs request")
		}
		if paced {
			if err := c.pacer.Wait(ctx); err != nil {
				return err
			}
		}

		err := c.once(ctx, endpoint, target, out)
		if err == nil {
			metrics.DiscogsRequests.WithLabelValues(endpoint, "ok").Inc()
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}

		delay := backoff
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
		var rl *RateLimitError
		if errors.As(err, &rl) {
			switch {
			case rl.Disguised:
				// 403 throttles carry no Retry-After, so the cooldown is the
				// current backoff scaled up. It escalates with each attempt.
				delay = backoff * disguisedBackoffFactor
				if delay > c.maxDelay {
					delay = c.maxDelay
				}
			case rl.RetryAfter > 0:
				// A server-directed wait is honored in full, uncapped; the
				// cap only bounds our own exponential backoff.
				delay = rl.RetryAfter
			}
		}
		if err := c.pacer.Penalize(ctx, delay); err != nil {
			return err
		}
		backoff *= 2
		if backoff > c.maxDelay {
			backoff = c.maxDelay
		}
	}
	return fmt.Errorf("discogs: %s failed after %d attempts: %w", endpoint, c.maxRetries+1, lastErr)
}

// once sends a single request and classifies the response. The caller owns
// retry policy.
func (c *Client) once(ctx context.Context, endpoint, target string, out any) error {
	reqURL := target
	var header http.Header
	if c.proxyURL != "" {
		// Proxy mode forwards the call through a relay that injects the
		// credentials server-side, keeping the token off shared networks.
		reqURL = c.proxyURL + "/proxy?url=" + url.QueryEscape(target)
		header = http.Header{}
		header.Set("X-Forward-Discogs-Token", c.token)
		header.Set("X-Forward-User-Agent", c.userAgent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("discogs: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		metrics.DiscogsRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return fmt.Errorf("discogs: request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("discogs: decode %s response: %w", endpoint, err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.DiscogsRequests.WithLabelValues(endpoint, "rate_limited").Inc()
		return &RateLimitError{RetryAfter: retryAfter(resp, fallbackRetryAfter)}
	case resp.StatusCode == http.StatusForbidden:
		// Discogs throttles with 403 instead of 429 under sustained load.
		// The retry loop derives the cooldown from its current backoff.
		metrics.DiscogsRequests.WithLabelValues(endpoint, "rate_limited").Inc()
		return &RateLimitError{Disguised: true}
	case resp.StatusCode == http.StatusNotFound:
		metrics.DiscogsRequests.WithLabelValues(endpoint, "not_found").Inc()
		return &NotFoundError{Resource: endpoint}
	case resp.StatusCode == http.StatusBadRequest:
		metrics.DiscogsRequests.WithLabelValues(endpoint, "bad_request").Inc()
		return &BadRequestError{Detail: readSnippet(resp.Body)}
	default:
		metrics.DiscogsRequests.WithLabelValues(endpoint, "upstream_error").Inc()
		return &UpstreamError{StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
}

// retryAfter parses the Retry-After header, falling back when absent or
// unparseable.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
