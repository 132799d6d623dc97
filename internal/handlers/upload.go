package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/mangaroo/internal/storage"
	"github.com/lehigh-university-libraries/mangaroo/internal/textsource"
)

var allowedExtensions = map[string]bool{".pdf": true, ".txt": true}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Leave headroom for the multipart envelope.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		h.writeError(w, "Only PDF and text files are allowed", http.StatusBadRequest)
		return
	}

	if err := h.ensureUploadsDir(); err != nil {
		h.writeError(w, "Failed to create uploads directory: "+err.Error(), http.StatusInternalServerError)
		return
	}

	path := filepath.Join(h.cfg.UploadDir, storage.NewID()+"_"+filename)
	written, err := h.saveUpload(path, file)
	if err != nil {
		_ = os.Remove(path)
		h.writeError(w, "Failed to save file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if written > h.cfg.MaxUploadBytes {
		_ = os.Remove(path)
		h.writeError(w, h.tooLargeMessage(), http.StatusRequestEntityTooLarge)
		return
	}

	src, err := textsource.Open(path)
	if err != nil {
		_ = os.Remove(path)
		h.writeError(w, "Failed to process document: "+err.Error(), http.StatusBadRequest)
		return
	}
	if src.TotalPages() == 0 {
		_ = src.Close()
		_ = os.Remove(path)
		h.writeError(w, "Document has no pages", http.StatusBadRequest)
		return
	}

	session := h.orchestrator.OpenSession(filename, path, textsource.NewCached(src, h.cfg.PageCacheTTL))

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"session_id":  session.ID,
		"filename":    session.Filename,
		"total_pages": session.TotalPages,
		"metadata":    session.Metadata,
	})
}

func (h *Handler) saveUpload(path string, src io.Reader) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, io.LimitReader(src, h.cfg.MaxUploadBytes+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("File too large (max %dMB)", h.cfg.MaxUploadBytes>>20)
}
