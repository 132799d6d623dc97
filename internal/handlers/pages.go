package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
)

func (h *Handler) HandleGetPageText(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, page, err := h.pageParams(r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	text, session, err := h.orchestrator.PageText(r.Context(), sessionID, page)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"page":        page,
		"total_pages": session.TotalPages,
		"text":        text,
		"has_prev":    page > 0,
		"has_next":    page < session.TotalPages-1,
	})
}

func (h *Handler) HandleGeneratePanel(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, page, err := h.pageParams(r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	res, err := h.orchestrator.GeneratePanel(r.Context(), sessionID, page)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"page":            res.Page,
		"image_data":      base64.StdEncoding.EncodeToString(res.Image.Data),
		"mime_type":       res.Image.MIMEType,
		"story_state":     res.State,
		"summary":         res.State.Summary(),
		"prompt_used":     res.Prompt.Prompt,
		"negative_prompt": res.Prompt.NegativePrompt,
		"style":           res.Prompt.Style,
		"anchors":         res.Prompt.Anchors,
		"degraded":        res.Degraded,
		"degraded_reason": res.DegradedReason,
		"trace":           res.Trace,
	})
}

// HandleStoryStateUpdate analyzes a page without generating an image.
// Analysis failures leave the prior state in place and are reported as degraded.
func (h *Handler) HandleStoryStateUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, page, err := h.pageParams(r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	state, err := h.orchestrator.UpdateAndGetState(r.Context(), sessionID, page)
	resp := map[string]any{"success": true, "page": page}
	if err != nil {
		switch failure.KindOf(err) {
		case failure.KindInvalidRequest, failure.KindInternal:
			h.writeFailure(w, err)
			return
		}
		if r.Context().Err() != nil {
			h.writeFailure(w, err)
			return
		}
		resp["degraded"] = true
		resp["degraded_reason"] = string(failure.KindOf(err))
	}
	resp["story_state"] = state
	resp["summary"] = state.Summary()
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleStoryState(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		h.writeFailure(w, failure.New(failure.KindInvalidRequest, "parse request", "session_id is required"))
		return
	}
	state, err := h.orchestrator.CurrentState(sessionID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"story_state": state,
		"summary":     state.Summary(),
	})
}
