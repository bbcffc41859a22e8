// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

// Package api exposes the HTTP surface: seller management, sync control,
// job inspection, live progress over websocket, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/cratedig/cratedig/internal/logging"
	"github.com/cratedig/cratedig/internal/models"
	"github.com/cratedig/cratedig/internal/store"
	syncpkg "github.com/cratedig/cratedig/internal/sync"
	"github.com/cratedig/cratedig/internal/websocket"
)

// IdentityClient verifies the configured Discogs credentials.
type IdentityClient interface {
	Identity(ctx context.Context) (string, error)
}

// Server holds the handler dependencies.
type Server struct {
	sellers  *store.SellerRepo
	mgr      *syncpkg.Manager
	identity IdentityClient
	hub      *websocket.Hub
	validate *validator.Validate
}

// NewServer wires the API handlers.
func NewServer(sellers *store.SellerRepo, mgr *syncpkg.Manager, identity IdentityClient, hub *websocket.Hub) *Server {
	return &Server{
		sellers:  sellers,
		mgr:      mgr,
		identity: identity,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	username, err := s.identity.Identity(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

// sellerSummary is the list view: counts instead of full collections, with
// any in-flight sync job joined on at read time. The job is never persisted
// on the seller record, so deleting jobs cannot corrupt seller data.
type sellerSummary struct {
	Username     string      `json:"username"`
	AddedAt      time.Time   `json:"added_at"`
	LastUpdated  *time.Time  `json:"last_updated,omitempty"`
	ListingCount int         `json:"listing_count"`
	ReleaseCount int         `json:"release_count"`
	CurrentJob   *models.Job `json:"current_job,omitempty"`
}

func (s *Server) summarize(seller *models.Seller) sellerSummary {
	out := sellerSummary{
		Username:     seller.Username,
		AddedAt:      seller.AddedAt,
		LastUpdated:  seller.LastUpdated,
		ListingCount: len(seller.Inventory),
		ReleaseCount: len(seller.Releases),
	}
	job, err := s.mgr.JobForSeller(seller.Username)
	if err == nil && job != nil && !job.IsTerminal() {
		out.CurrentJob = job
	}
	return out
}

func (s *Server) handleListSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := s.sellers.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]sellerSummary, 0, len(sellers))
	for _, seller := range sellers {
		out = append(out, s.summarize(seller))
	}
	writeJSON(w, http.StatusOK, out)
}

type addSellerRequest struct {
	Username string `json:"username" validate:"required,min=2,max=64"`
}

func (s *Server) handleAddSeller(w http.ResponseWriter, r *http.Request) {
	var req addSellerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(&req); err != nil || strings.ContainsAny(req.Username, " /") {
		writeError(w, http.StatusBadRequest, "username must be 2-64 characters without spaces or slashes")
		return
	}

	exists, err := s.sellers.Exists(req.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "seller is already tracked")
		return
	}

	seller := &models.Seller{Username: req.Username, AddedAt: time.Now()}
	if err := s.sellers.Save(seller); err != nil {
		writeDomainError(w, err)
		return
	}

	// The first sync starts immediately; failure to start is not fatal to
	// the add, the client can trigger it again.
	job, err := s.mgr.StartSync(req.Username)
	if err != nil {
		logging.Warn().Str("username", req.Username).Err(err).Msg("initial sync did not start")
	}
	summary := s.summarize(seller)
	if job != nil {
		summary.CurrentJob = job
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleDeleteSeller(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	exists, err := s.sellers.Exists(username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "seller is not tracked")
		return
	}

	// Stop any in-flight sync first so it cannot resurrect the record with
	// a late checkpoint write.
	if job, err := s.mgr.JobForSeller(username); err == nil && job != nil {
		if !job.IsTerminal() {
			_ = s.mgr.CancelSync(job.ID)
		}
		_ = s.mgr.DeleteJob(job.ID)
	}
	if err := s.sellers.Delete(username); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetReleases(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	seller, err := s.sellers.Get(username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	releases := seller.Releases
	if releases == nil {
		releases = []models.Release{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":     seller.Username,
		"last_updated": seller.LastUpdated,
		"releases":     releases,
	})
}

func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	job, err := s.mgr.StartSync(username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.mgr.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDeleteJob cancels a running job, or removes a terminal one.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.mgr.GetJob(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !job.IsTerminal() {
		if err := s.mgr.CancelSync(id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}
	if err := s.mgr.DeleteJob(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(s.hub, w, r)
}
