package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"classroom-backend/internal/middleware"
	"classroom-backend/internal/models"
	"classroom-backend/internal/services"
)

type SessionService interface {
	ListSchedule(ctx context.Context, now time.Time, classID uuid.UUID) (*services.ScheduleView, error)
	GetSession(ctx context.Context, now time.Time, sessionID uuid.UUID) (*models.SessionView, error)
	StartExam(ctx context.Context, now time.Time, viewerID, sessionID uuid.UUID) (*services.ExamDispatch, error)
	SubmitExam(ctx context.Context, now time.Time, viewerID, sessionID uuid.UUID, answers []*int) (*services.ExamResult, error)
	OverrideScore(ctx context.Context, submissionID uuid.UUID, score float64, feedback string) (*models.Submission, error)
}

type SessionHandler struct {
	sessions SessionService
	now      func() time.Time
}

func NewSessionHandler(sessions SessionService, now func() time.Time) *SessionHandler {
	if now == nil {
		now = time.Now
	}
	return &SessionHandler{sessions: sessions, now: now}
}

// ListByClass renders the class schedule. A failed fetch still answers 200 with the
// last known sessions and a banner.
func (h *SessionHandler) ListByClass(w http.ResponseWriter, r *http.Request) {
	classID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	view, err := h.sessions.ListSchedule(r.Context(), h.now(), classID)
	if err != nil {
		var fetchErr *services.ScheduleFetchError
		if !errors.As(err, &fetchErr) || view == nil {
			handleServiceError(w, r, err)
			return
		}
		hlog.FromRequest(r).Warn().Err(err).Msg("serving stale schedule")
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	view, err := h.sessions.GetSession(r.Context(), h.now(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) StartExam(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	dispatch, err := h.sessions.StartExam(r.Context(), h.now(), userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dispatch)
}

func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req models.SubmitExamRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	result, err := h.sessions.SubmitExam(r.Context(), h.now(), userID, sessionID, req.Answers)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *SessionHandler) OverrideScore(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req models.OverrideScoreRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.sessions.OverrideScore(r.Context(), submissionID, req.Score, req.Feedback)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
