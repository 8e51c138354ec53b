package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mkravets/consultrag/internal/core/domain"
)

type consultRequest struct {
	Question string                `json:"question"`
	History  []domain.DialogueTurn `json:"history,omitempty"`
	Profile  *domain.CallerProfile `json:"profile,omitempty"`
	Domain   string                `json:"domain,omitempty"`
}

func (req consultRequest) toQuery() domain.Query {
	return domain.Query{
		Text:       strings.TrimSpace(req.Question),
		History:    req.History,
		Profile:    req.Profile,
		DomainHint: req.Domain,
	}
}

func (rt *Router) handleConsult(w http.ResponseWriter, r *http.Request) {
	var req consultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := rt.service.Answer(r.Context(), req.toQuery())
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("consult request failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		writeError(w, status, "consultation failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleConsultStream serves the streaming variant as server-sent events.
// Each pipeline event becomes one SSE message named after its type.
func (rt *Router) handleConsultStream(w http.ResponseWriter, r *http.Request) {
	var req consultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := rt.service.AnswerStream(r.Context(), req.toQuery(), func(event domain.StreamEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already out; report the failure as a terminal event.
		rt.logger.Error("consult stream failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		fmt.Fprintf(w, "event: error\ndata: {\"error\":\"consultation failed\"}\n\n")
		flusher.Flush()
	}
}
