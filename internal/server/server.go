// Package server is the thin HTTP adapter over the verification engine. It
// contains no verification logic: handlers decode requests, call the engine
// entry points, and encode results.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openbadgekit/badgecore/internal/config"
	"github.com/openbadgekit/badgecore/pkg/engine"
)

// Handler carries the adapter's dependencies.
type Handler struct {
	cfg config.Config
	eng *engine.Engine
}

// New builds the HTTP router.
func New(cfg config.Config, eng *engine.Engine) http.Handler {
	h := &Handler{cfg: cfg, eng: eng}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recordMetrics)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", metricsHandler())
	r.Get("/.well-known/openbadges-issuer.json", h.wellKnown)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/credentials/verify", h.verifyCredential)
		r.Post("/credentials/sign", h.signCredential)
		r.Post("/domains/validate", h.validateDomain)
		r.Get("/issuers", h.listIssuers)
		r.Post("/issuers/{domain}/verify", h.verifyIssuer)
		r.Post("/issuers/{domain}/reverify", h.reverifyIssuer)
	})

	return r
}

// requestID tags every request for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the uniform boundary-error body.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
