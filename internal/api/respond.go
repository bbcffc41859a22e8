// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/cratedig/cratedig/internal/discogs"
	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/store"
	syncpkg "github.com/cratedig/cratedig/internal/sync"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encoding response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var nf *discogs.NotFoundError
	var br *discogs.BadRequestError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, syncpkg.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "a sync is already running for this seller")
	case errors.Is(err, syncpkg.ErrJobRunning):
		writeError(w, http.StatusConflict, "job is still running, cancel it first")
	case errors.Is(err, syncpkg.ErrNotServing):
		writeError(w, http.StatusServiceUnavailable, "sync manager is not running")
	case errors.Is(err, discogs.ErrMissingCredentials):
		writeError(w, http.StatusUnauthorized, "no Discogs token configured")
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &br):
		writeError(w, http.StatusBadRequest, br.Error())
	default:
		logging.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
