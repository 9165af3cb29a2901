package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"classroom-backend/internal/middleware"
	"classroom-backend/internal/models"
	"classroom-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: requestID(r),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		forbiddenErr  *services.ForbiddenError
		emptyErr      *services.EmptyQuestionSetError
		lessonErr     *services.LessonDetailFetchError
		scheduleErr   *services.ScheduleFetchError
		playbackErr   *services.PlaybackInitError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.As(err, &forbiddenErr):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbiddenErr.Message, r))
	case errors.As(err, &emptyErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("EMPTY_QUESTION_SET", emptyErr.Error(), r))
	case errors.Is(err, services.ErrSuperseded):
		writeJSON(w, http.StatusConflict, errorResp("SUPERSEDED", "A newer request replaced this one", r))
	case errors.As(err, &lessonErr):
		hlog.FromRequest(r).Warn().Err(err).Msg("lesson fetch failed")
		writeJSON(w, http.StatusBadGateway, errorResp("LESSON_FETCH_FAILED", "Could not load the lesson. Please try again.", r))
	case errors.As(err, &scheduleErr):
		writeJSON(w, http.StatusBadGateway, errorResp("SCHEDULE_FETCH_FAILED", "Could not load the class schedule", r))
	case errors.As(err, &playbackErr):
		writeJSON(w, http.StatusBadGateway, errorResp("PLAYBACK_UNAVAILABLE", "Video unavailable", r))
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}

// decodeAndValidate reads a JSON body into dst and validates it.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	if err := services.ValidateStruct(dst); err != nil {
		handleServiceError(w, r, err)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+name, r))
		return uuid.Nil, false
	}
	return id, true
}
