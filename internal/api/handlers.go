package api

import (
	"encoding/json"
	"net/http"

	"github.com/samber/lo"

	"github.com/shehryarbajwa/pagetrack/internal/feed"
	"github.com/shehryarbajwa/pagetrack/pkg/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	feed        *feed.Server
	environment string
}

// NewHandler creates a new HTTP handler
func NewHandler(feedServer *feed.Server, environment string) *Handler {
	return &Handler{
		feed:        feedServer,
		environment: environment,
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": h.environment,
		"pages":       h.feed.Count(),
	})
}

// ListPages handles GET /v1/pages
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	status := models.SessionStatus(r.URL.Query().Get("status"))

	pages := lo.Filter(h.feed.Pages(), func(p models.PageSummary, _ int) bool {
		if scope != "" && p.Scope != scope {
			return false
		}
		return status == "" || p.Status == status
	})

	writeJSON(w, http.StatusOK, pages)
}

// ConnectPage handles GET /v1/pages/ws
func (h *Handler) ConnectPage(w http.ResponseWriter, r *http.Request) {
	h.feed.HandleConnection(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
