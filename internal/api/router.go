// Cratedig - Discogs Seller Inventory Tracker
// Copyright 2026 Cratedig Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cratedig/cratedig

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cratedig/cratedig/internal/config"
)

// Router builds the full HTTP handler tree.
func (s *Server) Router(cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", s.handleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))

		r.Get("/health", s.handleHealth)
		r.Get("/identity", s.handleIdentity)

		r.Route("/sellers", func(r chi.Router) {
			r.Get("/", s.handleListSellers)
			r.Post("/", s.handleAddSeller)
			r.Route("/{username}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteSeller)
				r.Get("/releases", s.handleGetReleases)
				r.Post("/sync", s.handleStartSync)
			})
		})

		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Delete("/", s.handleDeleteJob)
		})
	})

	return r
}
