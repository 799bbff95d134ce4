package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes. A nil connectLimiter leaves page
// connections unthrottled.
func (h *Handler) SetupRoutes(connectLimiter *ratelimit.Limiter, connectBurst int, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/pages", h.ListPages).Methods("GET", "OPTIONS")

	var connect http.Handler = http.HandlerFunc(h.ConnectPage)
	if connectLimiter != nil {
		connect = ConnectRateLimitMiddleware(connectLimiter, connectBurst)(connect)
	}
	api.Handle("/pages/ws", connect).Methods("GET")

	r.Use(LoggingMiddleware(logger))
	r.Use(corsMiddleware)

	return r
}
