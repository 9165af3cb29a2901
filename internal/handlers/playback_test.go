package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"classroom-backend/internal/services"
)

type stubPlaybackService struct {
	state      *services.PlaybackState
	err        error
	lastLesson uuid.UUID
	lastTime   float64
	lastGen    uint64
	closed     bool
}

func (s *stubPlaybackService) OpenVideo(_ context.Context, _, lessonID uuid.UUID) (*services.PlaybackState, error) {
	s.lastLesson = lessonID
	return s.state, s.err
}

func (s *stubPlaybackService) OnTimeUpdate(_ uuid.UUID, generation uint64, elapsed float64) (*services.PlaybackState, error) {
	s.lastGen = generation
	s.lastTime = elapsed
	return s.state, s.err
}

func (s *stubPlaybackService) OnSeek(_ uuid.UUID, generation uint64, target float64) (*services.PlaybackState, error) {
	s.lastGen = generation
	s.lastTime = target
	return s.state, s.err
}

func (s *stubPlaybackService) ToggleSecondaryLanguage(uuid.UUID) (*services.PlaybackState, error) {
	return s.state, s.err
}

func (s *stubPlaybackService) PlaybackState(uuid.UUID) (*services.PlaybackState, error) {
	return s.state, s.err
}

func (s *stubPlaybackService) ClosePlayback(context.Context, uuid.UUID) error {
	s.closed = true
	return s.err
}

func TestPlaybackHandler_Open(t *testing.T) {
	lessonID := uuid.New()
	svc := &stubPlaybackService{state: &services.PlaybackState{LessonID: lessonID}}
	h := NewPlaybackHandler(svc)

	rr := httptest.NewRecorder()
	h.Open(rr, newRequest(http.MethodPost, "/", map[string]string{"lesson_id": lessonID.String()}, uuid.New(), nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, lessonID, svc.lastLesson)
}

func TestPlaybackHandler_Open_MissingLesson(t *testing.T) {
	h := NewPlaybackHandler(&stubPlaybackService{})

	rr := httptest.NewRecorder()
	h.Open(rr, newRequest(http.MethodPost, "/", map[string]string{}, uuid.New(), nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Fields, "lesson_id")
}

func TestPlaybackHandler_TimeAndSeek(t *testing.T) {
	svc := &stubPlaybackService{state: &services.PlaybackState{}}
	h := NewPlaybackHandler(svc)

	rr := httptest.NewRecorder()
	h.TimeUpdate(rr, newRequest(http.MethodPost, "/", map[string]float64{"generation": 3, "elapsed": 12.5}, uuid.New(), nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 12.5, svc.lastTime)
	assert.Equal(t, uint64(3), svc.lastGen)

	rr = httptest.NewRecorder()
	h.Seek(rr, newRequest(http.MethodPost, "/", map[string]float64{"generation": 4, "target": 2}, uuid.New(), nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2.0, svc.lastTime)
	assert.Equal(t, uint64(4), svc.lastGen)

	rr = httptest.NewRecorder()
	h.TimeUpdate(rr, newRequest(http.MethodPost, "/", map[string]float64{"elapsed": 1}, uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Fields, "generation")

	rr = httptest.NewRecorder()
	h.Seek(rr, newRequest(http.MethodPost, "/", "not json object", uuid.New(), nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlaybackHandler_NoVideoOpen(t *testing.T) {
	h := NewPlaybackHandler(&stubPlaybackService{err: &services.NotFoundError{Message: "No video is open"}})

	rr := httptest.NewRecorder()
	h.Get(rr, newRequest(http.MethodGet, "/", nil, uuid.New(), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.ToggleSecondary(rr, newRequest(http.MethodPost, "/", nil, uuid.New(), nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPlaybackHandler_Close(t *testing.T) {
	svc := &stubPlaybackService{}
	h := NewPlaybackHandler(svc)

	rr := httptest.NewRecorder()
	h.Close(rr, newRequest(http.MethodDelete, "/", nil, uuid.New(), nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, svc.closed)
}
