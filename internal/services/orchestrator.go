package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"classroom-backend/internal/grading"
	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/models"
	"classroom-backend/internal/playback"
)

// ScheduleSource loads scheduled sessions.
type ScheduleSource interface {
	FetchSessionSchedule(ctx context.Context, classID uuid.UUID) ([]*models.ScheduledSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error)
}

// LessonSource loads a lesson with its type-specific payload.
type LessonSource interface {
	FetchLessonDetail(ctx context.Context, id uuid.UUID) (models.Lesson, error)
}

type SubmissionStore interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	RecordManualScore(ctx context.Context, id uuid.UUID, score float64, feedback string) error
}

// EffectSink receives one-way writes issued after grading.
type EffectSink interface {
	RecordCompletion(ctx context.Context, sessionID uuid.UUID) error
	RecordScore(ctx context.Context, sessionID, submissionID uuid.UUID, score float64, feedback string) error
}

type FeedbackSuggester interface {
	Suggest(ctx context.Context, lessonTitle string, result grading.Result) string
}

const scheduleFetchBanner = "We couldn't refresh the class schedule. Showing the last known sessions."

// ScheduleView is the rendered schedule for a class.
type ScheduleView struct {
	ClassID  uuid.UUID            `json:"class_id"`
	Sessions []models.SessionView `json:"sessions"`
	Stale    bool                 `json:"stale"`
	Banner   string               `json:"banner,omitempty"`
}

// ExamDispatch is what a student receives when an exam starts. Correct answers are not
// included.
type ExamDispatch struct {
	SessionID uuid.UUID               `json:"session_id"`
	LessonID  uuid.UUID               `json:"lesson_id"`
	Title     string                  `json:"title"`
	MaxScore  float64                 `json:"max_score"`
	Questions []models.PublicQuestion `json:"questions"`
}

type ExamResult struct {
	SubmissionID uuid.UUID      `json:"submission_id"`
	Grade        grading.Result `json:"grade"`
	Feedback     string         `json:"feedback"`
}

type OrchestratorOptions struct {
	LessonFetchTimeout  time.Duration
	DefaultExamMaxScore float64
}

// SessionOrchestrator is the entry point for rendering sessions and dispatching their
// actions. Status and action are recomputed from the caller's now on every call.
type SessionOrchestrator struct {
	resolver     lifecycle.Resolver
	schedule     ScheduleSource
	lessons      LessonSource
	submissions  SubmissionStore
	effects      EffectSink
	feedback     FeedbackSuggester
	guard        *FetchGuard
	fetchTimeout time.Duration
	maxScore     float64
	logger       zerolog.Logger

	cacheMu  sync.RWMutex
	lastGood map[uuid.UUID][]*models.ScheduledSession

	playback *PlaybackRegistry
}

func NewSessionOrchestrator(
	opts OrchestratorOptions,
	schedule ScheduleSource,
	lessons LessonSource,
	submissions SubmissionStore,
	effects EffectSink,
	feedback FeedbackSuggester,
	playback *PlaybackRegistry,
	logger zerolog.Logger,
) *SessionOrchestrator {
	if opts.LessonFetchTimeout <= 0 {
		opts.LessonFetchTimeout = 10 * time.Second
	}
	if opts.DefaultExamMaxScore <= 0 {
		opts.DefaultExamMaxScore = 10
	}
	return &SessionOrchestrator{
		resolver:     lifecycle.NewResolver(),
		schedule:     schedule,
		lessons:      lessons,
		submissions:  submissions,
		effects:      effects,
		feedback:     feedback,
		guard:        NewFetchGuard(),
		fetchTimeout: opts.LessonFetchTimeout,
		maxScore:     opts.DefaultExamMaxScore,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
		lastGood:     make(map[uuid.UUID][]*models.ScheduledSession),
		playback:     playback,
	}
}

// Resolver exposes the lifecycle policy the orchestrator renders with.
func (o *SessionOrchestrator) Resolver() lifecycle.Resolver {
	return o.resolver
}

// GetViewModel derives status and action for a session at now. lesson may be nil, in
// which case the session's own lesson type is used.
func (o *SessionOrchestrator) GetViewModel(now time.Time, session *models.ScheduledSession, lesson models.Lesson) models.SessionView {
	lessonType := models.LessonTypeOther
	if lesson != nil {
		lessonType = lesson.Type()
	} else if session != nil {
		lessonType = session.LessonType
	}

	status := o.resolver.Resolve(now, session)
	return models.SessionView{
		Session: session,
		Status:  status,
		Action:  lifecycle.ResolveAction(lessonType, status, session),
	}
}

// ListSchedule renders a class schedule. If the fetch fails the last good list (or an
// empty one) is rendered with a banner, and the *ScheduleFetchError is returned
// alongside it; the view is usable either way.
func (o *SessionOrchestrator) ListSchedule(ctx context.Context, now time.Time, classID uuid.UUID) (*ScheduleView, error) {
	view := &ScheduleView{ClassID: classID, Sessions: []models.SessionView{}}

	sessions, err := o.schedule.FetchSessionSchedule(ctx, classID)
	var fetchErr error
	if err != nil {
		fetchErr = &ScheduleFetchError{ClassID: classID, Err: err}
		o.logger.Warn().Err(err).Str("class_id", classID.String()).Msg("schedule fetch failed, serving last good copy")

		o.cacheMu.RLock()
		sessions = o.lastGood[classID]
		o.cacheMu.RUnlock()

		view.Stale = true
		view.Banner = scheduleFetchBanner
	} else {
		o.cacheMu.Lock()
		o.lastGood[classID] = sessions
		o.cacheMu.Unlock()
	}

	for _, s := range sessions {
		view.Sessions = append(view.Sessions, o.GetViewModel(now, s, nil))
	}
	return view, fetchErr
}

func (o *SessionOrchestrator) loadSession(ctx context.Context, sessionID uuid.UUID) (*models.ScheduledSession, error) {
	session, err := o.schedule.GetByID(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return session, nil
}

func (o *SessionOrchestrator) GetSession(ctx context.Context, now time.Time, sessionID uuid.UUID) (*models.SessionView, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := o.GetViewModel(now, session, nil)
	return &view, nil
}

// fetchLesson loads lesson detail with a bounded timeout.
func (o *SessionOrchestrator) fetchLesson(ctx context.Context, lessonID uuid.UUID) (models.Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	lesson, err := o.lessons.FetchLessonDetail(ctx, lessonID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "Lesson not found"}
	}
	if err != nil {
		return nil, &LessonDetailFetchError{LessonID: lessonID, Err: err}
	}
	return lesson, nil
}

func (o *SessionOrchestrator) examFor(ctx context.Context, session *models.ScheduledSession) (models.ExamLesson, error) {
	lesson, err := o.fetchLesson(ctx, session.LessonID)
	if err != nil {
		return models.ExamLesson{}, err
	}
	exam, ok := lesson.(models.ExamLesson)
	if !ok {
		return models.ExamLesson{}, &ForbiddenError{Message: "This session is not an exam"}
	}
	if len(exam.Questions) == 0 {
		return models.ExamLesson{}, &EmptyQuestionSetError{LessonID: exam.LessonID()}
	}
	return exam, nil
}

func (o *SessionOrchestrator) examMaxScore(exam models.ExamLesson) float64 {
	if exam.MaxScore > 0 {
		return exam.MaxScore
	}
	return o.maxScore
}

// StartExam dispatches START_EXAM for a viewer. Only the latest request per viewer and
// session is answered; an overtaken request gets ErrSuperseded.
func (o *SessionOrchestrator) StartExam(ctx context.Context, now time.Time, viewerID, sessionID uuid.UUID) (*ExamDispatch, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := o.GetViewModel(now, session, nil)
	if view.Action.Kind != models.ActionStartExam || !view.Action.Enabled {
		return nil, &ForbiddenError{Message: "This exam cannot be started"}
	}

	key := "exam:" + viewerID.String() + ":" + sessionID.String()
	exam, err := Guarded(ctx, o.guard, key, func(ctx context.Context) (models.ExamLesson, error) {
		return o.examFor(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	questions := make([]models.PublicQuestion, len(exam.Questions))
	for i, q := range exam.Questions {
		questions[i] = models.PublicQuestion{Question: q.Question, Type: q.Type, Options: q.Options, Hint: q.Hint}
	}

	return &ExamDispatch{
		SessionID: session.ID,
		LessonID:  exam.LessonID(),
		Title:     exam.Title,
		MaxScore:  o.examMaxScore(exam),
		Questions: questions,
	}, nil
}

// SubmitQuiz grades results. It is pure.
func (o *SessionOrchestrator) SubmitQuiz(results []models.QuizQuestionResult, maxScore float64) grading.Result {
	return grading.Grade(results, maxScore)
}

// SubmitExam grades a viewer's answers, stores the submission and queues the score and
// completion effects. Like StartExam it is only allowed while the session resolves to
// START_EXAM at now. Effect failures are logged, not returned.
func (o *SessionOrchestrator) SubmitExam(ctx context.Context, now time.Time, viewerID, sessionID uuid.UUID, answers []*int) (*ExamResult, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := o.GetViewModel(now, session, nil)
	if view.Action.Kind != models.ActionStartExam || !view.Action.Enabled {
		return nil, &ForbiddenError{Message: "This exam no longer accepts submissions"}
	}

	exam, err := o.examFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(answers) > len(exam.Questions) {
		return nil, &ValidationError{Fields: map[string]string{
			"answers": fmt.Sprintf("answers must have at most %d items", len(exam.Questions)),
		}}
	}

	maxScore := o.examMaxScore(exam)
	result := o.SubmitQuiz(grading.Pair(exam.Questions, answers), maxScore)

	answersJSON, _ := json.Marshal(answers)
	sub := &models.Submission{
		SessionID:   session.ID,
		UserID:      viewerID,
		AnswersJSON: answersJSON,
		MaxScore:    maxScore,
	}
	if err := o.submissions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	feedback := o.feedback.Suggest(ctx, exam.Title, result)

	log := o.logger.With().Str("session_id", session.ID.String()).Str("submission_id", sub.ID.String()).Logger()
	if err := o.effects.RecordScore(ctx, session.ID, sub.ID, result.Score, feedback); err != nil {
		log.Error().Err(err).Msg("failed to queue score")
	}
	if err := o.effects.RecordCompletion(ctx, session.ID); err != nil {
		log.Error().Err(err).Msg("failed to queue completion")
	}
	log.Info().Float64("score", result.Score).Int("correct", result.CorrectCount).Int("total", result.Total).Msg("exam graded")

	return &ExamResult{SubmissionID: sub.ID, Grade: result, Feedback: feedback}, nil
}

// OverrideScore records a human score. Automatic scores never replace it afterwards.
func (o *SessionOrchestrator) OverrideScore(ctx context.Context, submissionID uuid.UUID, score float64, feedback string) (*models.Submission, error) {
	sub, err := o.submissions.GetByID(ctx, submissionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "Submission not found"}
	}
	if err != nil {
		return nil, err
	}

	if score > sub.MaxScore {
		return nil, &ValidationError{Fields: map[string]string{
			"score": fmt.Sprintf("score must be %g or less", sub.MaxScore),
		}}
	}

	if err := o.submissions.RecordManualScore(ctx, submissionID, score, feedback); err != nil {
		return nil, err
	}
	return o.submissions.GetByID(ctx, submissionID)
}

// Playback intents are keyed by viewer. Each viewer owns one controller, so two viewers
// of the same lesson never share a position.

func (o *SessionOrchestrator) OpenVideo(ctx context.Context, viewerID, lessonID uuid.UUID) (*PlaybackState, error) {
	return o.playback.OpenVideo(ctx, viewerID, lessonID)
}

func (o *SessionOrchestrator) OnTimeUpdate(viewerID uuid.UUID, generation uint64, elapsed float64) (*PlaybackState, error) {
	return o.playback.OnTimeUpdate(viewerID, generation, elapsed)
}

func (o *SessionOrchestrator) OnSeek(viewerID uuid.UUID, generation uint64, target float64) (*PlaybackState, error) {
	return o.playback.OnSeek(viewerID, generation, target)
}

func (o *SessionOrchestrator) ToggleSecondaryLanguage(viewerID uuid.UUID) (*PlaybackState, error) {
	return o.playback.ToggleSecondaryLanguage(viewerID)
}

func (o *SessionOrchestrator) PlaybackState(viewerID uuid.UUID) (*PlaybackState, error) {
	return o.playback.State(viewerID)
}

func (o *SessionOrchestrator) ClosePlayback(ctx context.Context, viewerID uuid.UUID) error {
	return o.playback.Close(ctx, viewerID)
}

// SetCueSink routes the viewer's active-cue changes to sink.
func (o *SessionOrchestrator) SetCueSink(viewerID uuid.UUID, sink func(playback.CueChange)) {
	o.playback.SetCueSink(viewerID, sink)
}
