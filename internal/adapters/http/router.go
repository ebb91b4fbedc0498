// Package httpadapter exposes the ask pipeline over HTTP.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/civicdocs/policy-assistant/internal/core/domain"
	"github.com/civicdocs/policy-assistant/internal/core/ports"
)

type Router struct {
	ask ports.AskService
}

func NewRouter(ask ports.AskService) *Router {
	return &Router{ask: ask}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.askQuestion)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"thread_id"`
}

type askResponse struct {
	Answer   string                   `json:"answer"`
	Sources  []domain.Source          `json:"sources"`
	Metadata domain.SelectionMetadata `json:"metadata"`
	ThreadID string                   `json:"thread_id,omitempty"`
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	result, err := rt.ask.Ask(r.Context(), req.Question, req.ThreadID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:   result.Answer,
		Sources:  sources,
		Metadata: result.Metadata,
		ThreadID: strings.TrimSpace(req.ThreadID),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
