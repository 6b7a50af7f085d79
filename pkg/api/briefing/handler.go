// Package briefing exposes the engine over a small JSON HTTP surface.
package briefing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/engine"
)

// Handler serves briefing requests against one engine instance.
type Handler struct {
	Engine *engine.Engine
}

func NewHandler(e *engine.Engine) *Handler {
	return &Handler{Engine: e}
}

// Register attaches all briefing routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/briefing", h.HandleBriefing)
	mux.HandleFunc("/api/briefing/more", h.HandleMore)
	mux.HandleFunc("/api/feedback", h.HandleFeedback)
	mux.HandleFunc("/api/audit/report", h.HandleAuditReport)
}

type briefingRequest struct {
	UserID   string             `json:"user_id"`
	Prompt   string             `json:"prompt"`
	Topics   map[string]float64 `json:"topics,omitempty"`
	MaxItems int                `json:"max_items,omitempty"`
}

func (h *Handler) HandleBriefing(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}

	var req briefingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	payload, err := h.Engine.HandleRequestPayload(r.Context(), req.UserID, req.Prompt, req.Topics, req.MaxItems)
	switch {
	case errors.Is(err, engine.ErrBusy):
		writeJSON(w, http.StatusTooManyRequests, payload)
		return
	case errors.Is(err, engine.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, payload)
		return
	case err != nil:
		log.Error().Err(err).Str("user", req.UserID).Msg("briefing request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type moreRequest struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count,omitempty"`
}

func (h *Handler) HandleMore(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}

	var req moreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items := h.Engine.ShowMore(r.Context(), req.UserID, req.Count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"items":   items,
	})
}

type feedbackRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changes := h.Engine.ApplyUserFeedback(req.UserID, req.Text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": req.UserID,
		"changes": changes,
	})
}

func (h *Handler) HandleAuditReport(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	if requestID == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(h.Engine.Audit.FormatRequestReport(requestID)))
}

func allowPost(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != "POST" {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encoding failed")
	}
}
