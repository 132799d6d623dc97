package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/mangaroo/internal/models"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		sessions := h.orchestrator.Sessions()
		summaries := make([]models.SessionSummary, 0, len(sessions))
		for _, session := range sessions {
			summaries = append(summaries, session.Summary())
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"sessions": summaries,
		})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/session/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		h.writeError(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case "GET":
		session, err := h.orchestrator.Session(sessionID)
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"session": session.Summary(),
		})
	case "DELETE":
		session, err := h.orchestrator.CloseSession(sessionID)
		if err != nil {
			h.writeFailure(w, err)
			return
		}
		if session.SourcePath != "" {
			if err := os.Remove(session.SourcePath); err != nil && !os.IsNotExist(err) {
				slog.Warn("Unable to remove uploaded file", "session_id", sessionID, "path", session.SourcePath, "err", err)
			}
		}
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"session_id": sessionID,
		})
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
