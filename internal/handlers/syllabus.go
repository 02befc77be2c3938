package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tutor-backend/internal/middleware"
	"tutor-backend/internal/models"
)

type syllabusSource interface {
	ForClass(ctx context.Context, classKey string) (models.ClassTopics, error)
}

type studentLookup interface {
	ClassKey(ctx context.Context, username string) (string, error)
}

type SyllabusHandler struct {
	topics   syllabusSource
	students studentLookup
}

func NewSyllabusHandler(topics syllabusSource, students studentLookup) *SyllabusHandler {
	return &SyllabusHandler{topics: topics, students: students}
}

// ByClass returns the topic map for /syllabus/{class_num}.
func (h *SyllabusHandler) ByClass(w http.ResponseWriter, r *http.Request) {
	classNum, err := strconv.Atoi(chi.URLParam(r, "class_num"))
	if err != nil || classNum < 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Class number must be a non-negative integer", r))
		return
	}

	topics, err := h.topics.ForClass(r.Context(), fmt.Sprintf("class_%d", classNum))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Topics data is unavailable", r))
		return
	}
	if topics == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", fmt.Sprintf("No topics found for class %d", classNum), r))
		return
	}

	writeJSON(w, http.StatusOK, models.SyllabusResponse{Class: classNum, Topics: topics})
}

// ForCurrentUser lists the topic category names of the caller's class, sorted.
func (h *SyllabusHandler) ForCurrentUser(w http.ResponseWriter, r *http.Request) {
	username := middleware.GetUsername(r.Context())
	if username == "" {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Authentication required", r))
		return
	}

	classKey, err := h.students.ClassKey(r.Context(), username)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	topics, err := h.topics.ForClass(r.Context(), classKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Topics data is unavailable", r))
		return
	}
	if topics == nil {
		classNum := strings.TrimPrefix(classKey, "class_")
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", fmt.Sprintf("No topics found for class %s", classNum), r))
		return
	}

	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}
