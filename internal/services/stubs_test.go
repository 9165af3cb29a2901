package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"classroom-backend/internal/grading"
	"classroom-backend/internal/models"
)

type stubSchedule struct {
	mu       sync.Mutex
	sessions []*models.ScheduledSession
	err      error
}

func (s *stubSchedule) FetchSessionSchedule(_ context.Context, classID uuid.UUID) ([]*models.ScheduledSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.ScheduledSession
	for _, sess := range s.sessions {
		if sess.ClassID == classID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *stubSchedule) GetByID(_ context.Context, id uuid.UUID) (*models.ScheduledSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *stubSchedule) ListInWindow(_ context.Context, from, to time.Time) ([]*models.ScheduledSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.ScheduledSession
	for _, sess := range s.sessions {
		if sess.IsCompleted || sess.StartTime == nil {
			continue
		}
		if !sess.StartTime.Before(from) && sess.StartTime.Before(to) {
			out = append(out, sess)
		}
	}
	return out, nil
}

type stubLessons struct {
	mu      sync.Mutex
	lessons map[uuid.UUID]models.Lesson
	err     error
	calls   int
	// block, when set, is received from before answering
	block chan struct{}
}

func (s *stubLessons) FetchLessonDetail(ctx context.Context, id uuid.UUID) (models.Lesson, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	lesson, ok := s.lessons[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return lesson, nil
}

type stubSubmissions struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.Submission
	created []*models.Submission
}

func newStubSubmissions() *stubSubmissions {
	return &stubSubmissions{byID: make(map[uuid.UUID]*models.Submission)}
}

func (s *stubSubmissions) Create(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = uuid.New()
	sub.SubmittedAt = time.Now()
	s.byID[sub.ID] = sub
	s.created = append(s.created, sub)
	return nil
}

func (s *stubSubmissions) GetByID(_ context.Context, id uuid.UUID) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *sub
	return &cp, nil
}

func (s *stubSubmissions) RecordManualScore(_ context.Context, id uuid.UUID, score float64, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	src := models.ScoreSourceManual
	sub.Score = &score
	sub.Feedback = &feedback
	sub.ScoreSource = &src
	return nil
}

type recordedScore struct {
	SessionID    uuid.UUID
	SubmissionID uuid.UUID
	Score        float64
	Feedback     string
}

type stubEffects struct {
	mu          sync.Mutex
	completions []uuid.UUID
	scores      []recordedScore
	err         error
}

func (s *stubEffects) RecordCompletion(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, sessionID)
	return s.err
}

func (s *stubEffects) RecordScore(_ context.Context, sessionID, submissionID uuid.UUID, score float64, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, recordedScore{sessionID, submissionID, score, feedback})
	return s.err
}

type stubFeedback struct{}

func (stubFeedback) Suggest(_ context.Context, _ string, result grading.Result) string {
	return templateFeedback(result)
}

type stubMedia struct {
	cues     []models.TranscriptCue
	cuesErr  error
	source   *PlaybackSource
	probeErr error
}

func (s *stubMedia) LoadCues(context.Context, string) ([]models.TranscriptCue, error) {
	return s.cues, s.cuesErr
}

func (s *stubMedia) ProbePlayback(_ context.Context, videoURL string) (*PlaybackSource, error) {
	if s.source != nil || s.probeErr != nil {
		return s.source, s.probeErr
	}
	return &PlaybackSource{Kind: PlaybackSourceDirect, URL: videoURL}, nil
}

type progressStop struct {
	ID      uuid.UUID
	Elapsed float64
}

type stubProgress struct {
	mu     sync.Mutex
	starts []uuid.UUID
	stops  []progressStop
}

func (s *stubProgress) Start(_ context.Context, _, lessonID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, lessonID)
	return uuid.New(), nil
}

func (s *stubProgress) Stop(_ context.Context, id uuid.UUID, elapsed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, progressStop{id, elapsed})
	return nil
}

type published struct {
	Channel string
	Message string
}

type stubPublisher struct {
	mu       sync.Mutex
	messages []published
}

func (s *stubPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, _ := message.(string)
	s.messages = append(s.messages, published{channel, msg})
	return redis.NewIntResult(1, nil)
}
