package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkravets/consultrag/internal/core/domain"
)

type fakeService struct {
	answer    *domain.Answer
	err       error
	events    []domain.StreamEvent
	streamErr error
	lastQuery domain.Query
}

func (s *fakeService) Answer(_ context.Context, query domain.Query) (*domain.Answer, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.answer, nil
}

func (s *fakeService) AnswerStream(_ context.Context, query domain.Query, emit func(domain.StreamEvent) error) error {
	s.lastQuery = query
	for _, event := range s.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return s.streamErr
}

func newTestRouter(service *fakeService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(service, nil, logger).Handler()
}

func TestHandleConsultSuccess(t *testing.T) {
	service := &fakeService{answer: &domain.Answer{
		RequestID: "req-1",
		Text:      "Register for VAT before the threshold.",
		Status:    domain.AnswerStatusOK,
		Domains:   []string{"tax"},
	}}
	handler := newTestRouter(service)

	body := `{"question": "  When must I register for VAT?  ", "domain": "tax"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/consult", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if answer.RequestID != "req-1" || answer.Text == "" {
		t.Fatalf("unexpected answer payload %+v", answer)
	}
	if service.lastQuery.Text != "When must I register for VAT?" {
		t.Fatalf("expected trimmed question, got %q", service.lastQuery.Text)
	}
	if service.lastQuery.DomainHint != "tax" {
		t.Fatalf("expected domain hint to pass through, got %q", service.lastQuery.DomainHint)
	}
}

func TestHandleConsultRejectsEmptyQuestion(t *testing.T) {
	handler := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/consult", strings.NewReader(`{"question": "   "}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHandleConsultRejectsMalformedBody(t *testing.T) {
	handler := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/v1/consult", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHandleConsultErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "answer", errors.New("empty")), http.StatusBadRequest},
		{"generation timeout", domain.WrapError(domain.ErrGenerationTimeout, "answer", errors.New("deadline")), http.StatusGatewayTimeout},
		{"temporary", domain.WrapError(domain.ErrTemporary, "answer", errors.New("upstream down")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(&fakeService{err: tc.err})

			req := httptest.NewRequest(http.MethodPost, "/v1/consult", strings.NewReader(`{"question": "q"}`))
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
		})
	}
}

func TestHandleConsultStreamEmitsSSE(t *testing.T) {
	service := &fakeService{events: []domain.StreamEvent{
		{Type: domain.StreamEventToken, Token: "Register "},
		{Type: domain.StreamEventToken, Token: "early."},
		{Type: domain.StreamEventSources, Sources: []domain.Source{{Title: "VAT guide", Origin: "tax-office"}}},
		{Type: domain.StreamEventDone, Answer: &domain.Answer{RequestID: "req-2", Status: domain.AnswerStatusOK}},
	}}
	handler := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/v1/consult/stream", strings.NewReader(`{"question": "q"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", got)
	}

	body := res.Body.String()
	for _, want := range []string{"event: token", "event: sources", "event: done"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in stream body:\n%s", want, body)
		}
	}
	if strings.Index(body, "event: sources") > strings.Index(body, "event: done") {
		t.Fatalf("expected sources before done:\n%s", body)
	}
}

func TestHandleConsultStreamReportsTerminalError(t *testing.T) {
	service := &fakeService{
		events:    []domain.StreamEvent{{Type: domain.StreamEventToken, Token: "partial"}},
		streamErr: errors.New("generation failed"),
	}
	handler := newTestRouter(service)

	req := httptest.NewRequest(http.MethodPost, "/v1/consult/stream", strings.NewReader(`{"question": "q"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected headers already sent with 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "event: error") {
		t.Fatalf("expected terminal error event:\n%s", res.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health payload %s", res.Body.String())
	}
}
