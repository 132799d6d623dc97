package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/generation"
	"github.com/lehigh-university-libraries/mangaroo/internal/storage"
)

// Config holds the upload settings the handlers need.
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	PageCacheTTL   time.Duration
}

type Handler struct {
	orchestrator *generation.Orchestrator
	cfg          Config
}

func New(orchestrator *generation.Orchestrator, cfg Config) *Handler {
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	return &Handler{
		orchestrator: orchestrator,
		cfg:          cfg,
	}
}

// Routes registers every API endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/api/get_page_text", h.HandleGetPageText)
	mux.HandleFunc("/api/generate_panel", h.HandleGeneratePanel)
	mux.HandleFunc("/api/story_state/update", h.HandleStoryStateUpdate)
	mux.HandleFunc("/api/story_state", h.HandleStoryState)
	mux.HandleFunc("/api/sessions", h.HandleSessions)
	mux.HandleFunc("/api/session/", h.HandleSessionDetail)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

type errorBody struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	h.writeJSON(w, code, map[string]any{
		"success": false,
		"error":   errorBody{Kind: failure.KindInvalidRequest, Message: message},
	})
}

// writeFailure maps err onto the status for its kind.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	status := failure.HTTPStatus(kind)
	if errors.Is(err, storage.ErrSessionNotFound) {
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "kind", kind, "err", err)
	} else {
		slog.Warn("Request rejected", "kind", kind, "err", err)
	}
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   errorBody{Kind: kind, Message: err.Error()},
	})
}

// pageParams reads session_id and page from the query string or form body.
func (h *Handler) pageParams(r *http.Request) (string, int, error) {
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		return "", 0, failure.New(failure.KindInvalidRequest, "parse request", "session_id is required")
	}
	raw := r.FormValue("page")
	if raw == "" {
		return "", 0, failure.New(failure.KindInvalidRequest, "parse request", "page is required")
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, failure.New(failure.KindInvalidRequest, "parse request", "page must be an integer")
	}
	return sessionID, page, nil
}

// File operation helpers
func (h *Handler) ensureUploadsDir() error {
	return os.MkdirAll(h.cfg.UploadDir, 0755)
}
