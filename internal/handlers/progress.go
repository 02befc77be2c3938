package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tutor-backend/internal/models"
)

type progressSource interface {
	Progress(ctx context.Context, username string) (*models.ProgressResponse, error)
}

type ProgressHandler struct {
	progress progressSource
}

func NewProgressHandler(progress progressSource) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// Stats returns attempts, accuracy, score, streaks and practice minutes.
func (h *ProgressHandler) Stats(w http.ResponseWriter, r *http.Request) {
	progress, err := h.progress.Progress(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
