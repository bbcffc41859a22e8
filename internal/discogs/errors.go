// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package discogs

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredentials is returned before any network I/O when no API token
// is configured. It is never retried.
var ErrMissingCredentials = errors.New("discogs: no API token configured")

// NotFoundError indicates the upstream returned 404 for the requested
// resource. It is terminal for the request but not for a sync run: an
// enrichment 404 skips the item, an inventory 404 fails the seller.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("discogs: %s not found", e.Resource)
}

// BadRequestError indicates the upstream rejected the request as malformed
// (HTTP 400). Retrying an identical request cannot succeed.
type BadRequestError struct {
	Detail string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("discogs: bad request: %s", e.Detail)
}

// RateLimitError indicates the upstream throttled the request (HTTP 429, or
// the 403 variant Discogs serves when aggressively throttling). RetryAfter
// is the server-requested delay, or a fallback when the header was absent;
// disguised 403s carry none and the retry loop picks the cooldown itself.
type RateLimitError struct {
	RetryAfter time.Duration
	Disguised  bool
}

func (e *RateLimitError) Error() string {
	if e.Disguised {
		return "discogs: rate limited (403 throttle)"
	}
	return fmt.Sprintf("discogs: rate limited (429), retry after %s", e.RetryAfter)
}

// UpstreamError wraps a non-2xx response that does not have a more specific
// classification. 5xx and transport failures are retryable.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("discogs: upstream status %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether a failed request may be attempted again. Client
// errors other than throttling are permanent.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingCredentials) {
		return false
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return false
	}
	var br *BadRequestError
	if errors.As(err, &br) {
		return false
	}
	return true
}
