package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mkravets/consultrag/internal/core/ports"
)

// Router exposes the consultation service over HTTP.
type Router struct {
	service        ports.ConsultationService
	metricsHandler http.Handler
	logger         *slog.Logger
}

func NewRouter(service ports.ConsultationService, metricsHandler http.Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{service: service, metricsHandler: metricsHandler, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/consult", rt.handleConsult)
	mux.HandleFunc("POST /v1/consult/stream", rt.handleConsultStream)
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	if rt.metricsHandler != nil {
		mux.Handle("GET /metrics", rt.metricsHandler)
	}
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
