package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"classroom-backend/internal/middleware"
	"classroom-backend/internal/models"
	"classroom-backend/internal/services"
)

type PlaybackService interface {
	OpenVideo(ctx context.Context, viewerID, lessonID uuid.UUID) (*services.PlaybackState, error)
	OnTimeUpdate(viewerID uuid.UUID, generation uint64, elapsed float64) (*services.PlaybackState, error)
	OnSeek(viewerID uuid.UUID, generation uint64, target float64) (*services.PlaybackState, error)
	ToggleSecondaryLanguage(viewerID uuid.UUID) (*services.PlaybackState, error)
	PlaybackState(viewerID uuid.UUID) (*services.PlaybackState, error)
	ClosePlayback(ctx context.Context, viewerID uuid.UUID) error
}

type PlaybackHandler struct {
	playback PlaybackService
}

func NewPlaybackHandler(playback PlaybackService) *PlaybackHandler {
	return &PlaybackHandler{playback: playback}
}

func (h *PlaybackHandler) respond(w http.ResponseWriter, r *http.Request, state *services.PlaybackState, err error) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *PlaybackHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req models.OpenVideoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	state, err := h.playback.OpenVideo(r.Context(), middleware.GetUserID(r.Context()), req.LessonID)
	h.respond(w, r, state, err)
}

func (h *PlaybackHandler) TimeUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.TimeUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	state, err := h.playback.OnTimeUpdate(middleware.GetUserID(r.Context()), req.Generation, req.Elapsed)
	h.respond(w, r, state, err)
}

func (h *PlaybackHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var req models.SeekRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	state, err := h.playback.OnSeek(middleware.GetUserID(r.Context()), req.Generation, req.Target)
	h.respond(w, r, state, err)
}

func (h *PlaybackHandler) ToggleSecondary(w http.ResponseWriter, r *http.Request) {
	state, err := h.playback.ToggleSecondaryLanguage(middleware.GetUserID(r.Context()))
	h.respond(w, r, state, err)
}

func (h *PlaybackHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.playback.PlaybackState(middleware.GetUserID(r.Context()))
	h.respond(w, r, state, err)
}

func (h *PlaybackHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.playback.ClosePlayback(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
