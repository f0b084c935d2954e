package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/winyoulife/arbengine/internal/domain"
)

// ArchiveHandler lets operators browse and download history archives from
// object storage.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logHandler(logger, "archives"),
	}
}

// List returns metadata for all archive objects, optionally filtered by a
// prefix below archive/.
// GET /api/archives?prefix=executions
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := "archive/"
	if p := r.URL.Query().Get("prefix"); p != "" {
		prefix += strings.TrimPrefix(p, "/")
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list archives failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(infos),
		"archives": infos,
	})
}

// Download streams one archive file.
// GET /api/archives/{path...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "path")
	if path == "" || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.reader.Get(r.Context(), "archive/"+path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get archive failed",
			slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "get archive failed")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}
