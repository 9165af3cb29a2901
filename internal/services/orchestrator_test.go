package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/models"
	"classroom-backend/internal/testfixtures"
)

type orchestratorFixture struct {
	o           *SessionOrchestrator
	schedule    *stubSchedule
	lessons     *stubLessons
	submissions *stubSubmissions
	effects     *stubEffects
	clock       *testfixtures.Clock
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		schedule:    &stubSchedule{},
		lessons:     &stubLessons{lessons: make(map[uuid.UUID]models.Lesson)},
		submissions: newStubSubmissions(),
		effects:     &stubEffects{},
		clock:       testfixtures.NewClock(time.Time{}),
	}
	f.o = NewSessionOrchestrator(
		OrchestratorOptions{LessonFetchTimeout: time.Second, DefaultExamMaxScore: 10},
		f.schedule, f.lessons, f.submissions, f.effects, stubFeedback{}, nil, zerolog.Nop(),
	)
	return f
}

func (f *orchestratorFixture) addExam(questions ...models.QuizQuestion) *models.ScheduledSession {
	s := testfixtures.Session(models.LessonTypeExam, f.clock.Now().Add(-time.Hour), 60)
	f.schedule.sessions = append(f.schedule.sessions, s)
	f.lessons.lessons[s.LessonID] = testfixtures.Exam(s.LessonID, 0, questions...)
	return s
}

func TestGetViewModel_RecomputesFromNow(t *testing.T) {
	f := newOrchestratorFixture(t)
	start := f.clock.Now().Add(30 * time.Minute)
	s := testfixtures.Session(models.LessonTypeLiveSession, start, 60)

	view := f.o.GetViewModel(f.clock.Now(), s, nil)
	assert.Equal(t, models.SessionStatusUpcoming, view.Status)
	assert.Equal(t, models.ActionLocked, view.Action.Kind)
	assert.False(t, view.Action.Enabled)

	view = f.o.GetViewModel(f.clock.Advance(30*time.Minute), s, nil)
	assert.Equal(t, models.SessionStatusLive, view.Status)
	assert.Equal(t, models.ActionJoinLive, view.Action.Kind)

	view = f.o.GetViewModel(f.clock.Advance(time.Hour), s, nil)
	assert.Equal(t, models.SessionStatusEnded, view.Status)
	assert.Equal(t, models.ActionNone, view.Action.Kind)

	s.RecordingURL = testfixtures.Ptr("https://example.com/rec.mp4")
	view = f.o.GetViewModel(f.clock.Now(), s, nil)
	assert.Equal(t, models.ActionWatchRecording, view.Action.Kind)
}

func TestGetViewModel_LessonTypeWins(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := testfixtures.Session(models.LessonTypeOther, f.clock.Now(), 60)
	exam := testfixtures.Exam(s.LessonID, 10, testfixtures.Question("q", 0))

	view := f.o.GetViewModel(f.clock.Now(), s, exam)
	assert.Equal(t, models.ActionStartExam, view.Action.Kind)
}

func TestListSchedule_FallsBackToLastGood(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := testfixtures.Session(models.LessonTypeGame, f.clock.Now(), 30)
	f.schedule.sessions = []*models.ScheduledSession{s}

	view, err := f.o.ListSchedule(context.Background(), f.clock.Now(), s.ClassID)
	require.NoError(t, err)
	require.Len(t, view.Sessions, 1)
	assert.False(t, view.Stale)
	assert.Empty(t, view.Banner)

	f.schedule.err = errors.New("connection refused")
	view, err = f.o.ListSchedule(context.Background(), f.clock.Now(), s.ClassID)

	var fetchErr *ScheduleFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, s.ClassID, fetchErr.ClassID)
	require.NotNil(t, view)
	assert.True(t, view.Stale)
	assert.NotEmpty(t, view.Banner)
	require.Len(t, view.Sessions, 1)
	assert.Equal(t, s.ID, view.Sessions[0].Session.ID)
}

func TestListSchedule_FailureWithoutCacheIsEmpty(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.schedule.err = errors.New("timeout")

	view, err := f.o.ListSchedule(context.Background(), f.clock.Now(), uuid.New())
	require.Error(t, err)
	require.NotNil(t, view)
	assert.Empty(t, view.Sessions)
	assert.NotNil(t, view.Sessions)
	assert.True(t, view.Stale)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.o.GetSession(context.Background(), f.clock.Now(), uuid.New())
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestStartExam_HidesAnswers(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("2+2?", 1), testfixtures.Question("3+3?", 2))

	dispatch, err := f.o.StartExam(context.Background(), f.clock.Now(), uuid.New(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, dispatch.SessionID)
	assert.Equal(t, 10.0, dispatch.MaxScore)
	require.Len(t, dispatch.Questions, 2)
	assert.Equal(t, "2+2?", dispatch.Questions[0].Question)
	assert.Equal(t, []string{"A", "B", "C"}, dispatch.Questions[0].Options)
}

func TestStartExam_EmptyQuestionSet(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam()

	_, err := f.o.StartExam(context.Background(), f.clock.Now(), uuid.New(), s.ID)
	var empty *EmptyQuestionSetError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "This exam has no questions yet", err.Error())
}

func TestStartExam_FetchFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("q", 0))
	f.lessons.err = errors.New("upstream 502")

	_, err := f.o.StartExam(context.Background(), f.clock.Now(), uuid.New(), s.ID)
	var fetchErr *LessonDetailFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, s.LessonID, fetchErr.LessonID)
}

func TestStartExam_FetchTimeout(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.o.fetchTimeout = 20 * time.Millisecond
	s := f.addExam(testfixtures.Question("q", 0))
	f.lessons.block = make(chan struct{})

	_, err := f.o.StartExam(context.Background(), f.clock.Now(), uuid.New(), s.ID)
	var fetchErr *LessonDetailFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartExam_DoubleClickLatestWins(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("q", 0))
	viewer := uuid.New()
	f.lessons.block = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.o.StartExam(context.Background(), f.clock.Now(), viewer, s.ID)
		firstDone <- err
	}()

	require.Eventually(t, func() bool {
		f.lessons.mu.Lock()
		defer f.lessons.mu.Unlock()
		return f.lessons.calls == 1
	}, time.Second, 5*time.Millisecond)

	f.lessons.mu.Lock()
	f.lessons.block = nil
	f.lessons.mu.Unlock()

	dispatch, err := f.o.StartExam(context.Background(), f.clock.Now(), viewer, s.ID)
	require.NoError(t, err)
	assert.Len(t, dispatch.Questions, 1)

	assert.ErrorIs(t, <-firstDone, ErrSuperseded)
}

func TestStartExam_NotAnExam(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := testfixtures.Session(models.LessonTypeGame, f.clock.Now(), 30)
	f.schedule.sessions = append(f.schedule.sessions, s)

	_, err := f.o.StartExam(context.Background(), f.clock.Now(), uuid.New(), s.ID)
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestSubmitQuiz_IsPure(t *testing.T) {
	f := newOrchestratorFixture(t)
	results := []models.QuizQuestionResult{
		{CorrectIndex: 0, SelectedIndex: testfixtures.Ptr(0)},
		{CorrectIndex: 1, SelectedIndex: testfixtures.Ptr(2)},
		{CorrectIndex: 2},
	}

	first := f.o.SubmitQuiz(results, 10)
	second := f.o.SubmitQuiz(results, 10)
	assert.Equal(t, first, second)
	assert.InDelta(t, 3.3, first.Score, 0.05)
	assert.Equal(t, []bool{true, false, false}, first.PerQuestionCorrect)
}

func TestSubmitExam_GradesAndQueuesEffects(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("a", 0), testfixtures.Question("b", 1), testfixtures.Question("c", 2))
	viewer := uuid.New()

	res, err := f.o.SubmitExam(context.Background(), f.clock.Now(), viewer, s.ID, []*int{testfixtures.Ptr(0), testfixtures.Ptr(2), nil})
	require.NoError(t, err)
	assert.InDelta(t, 3.3, res.Grade.Score, 0.05)
	assert.Equal(t, []bool{true, false, false}, res.Grade.PerQuestionCorrect)
	assert.NotEmpty(t, res.Feedback)

	require.Len(t, f.submissions.created, 1)
	stored := f.submissions.created[0]
	assert.Equal(t, viewer, stored.UserID)
	assert.Equal(t, 10.0, stored.MaxScore)
	assert.JSONEq(t, `[0,2,null]`, string(stored.AnswersJSON))

	require.Len(t, f.effects.scores, 1)
	assert.Equal(t, res.SubmissionID, f.effects.scores[0].SubmissionID)
	assert.Equal(t, res.Grade.Score, f.effects.scores[0].Score)
	assert.Equal(t, []uuid.UUID{s.ID}, f.effects.completions)
}

func TestSubmitExam_EffectFailureIsNotFatal(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("a", 0))
	f.effects.err = errors.New("redis down")

	res, err := f.o.SubmitExam(context.Background(), f.clock.Now(), uuid.New(), s.ID, []*int{testfixtures.Ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Grade.Score)
}

func TestSubmitExam_TooManyAnswers(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("a", 0))

	_, err := f.o.SubmitExam(context.Background(), f.clock.Now(), uuid.New(), s.ID, []*int{testfixtures.Ptr(0), testfixtures.Ptr(1)})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "answers")
	assert.Empty(t, f.submissions.created)
}

func TestSubmitExam_CompletedSessionIsRejected(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("a", 0))
	viewer := uuid.New()

	_, err := f.o.SubmitExam(context.Background(), f.clock.Now(), viewer, s.ID, []*int{testfixtures.Ptr(0)})
	require.NoError(t, err)

	// the worker marks the session completed; a second submission is refused
	s.IsCompleted = true
	_, err = f.o.SubmitExam(context.Background(), f.clock.Now(), viewer, s.ID, []*int{testfixtures.Ptr(0)})
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	assert.Len(t, f.submissions.created, 1)
	assert.Len(t, f.effects.scores, 1)
	assert.Len(t, f.effects.completions, 1)
}

func TestSubmitExam_NotAnExam(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := testfixtures.Session(models.LessonTypeGame, f.clock.Now(), 30)
	f.schedule.sessions = append(f.schedule.sessions, s)

	_, err := f.o.SubmitExam(context.Background(), f.clock.Now(), uuid.New(), s.ID, []*int{nil})
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
	assert.Empty(t, f.submissions.created)
}

func TestOverrideScore(t *testing.T) {
	f := newOrchestratorFixture(t)
	s := f.addExam(testfixtures.Question("a", 0))
	res, err := f.o.SubmitExam(context.Background(), f.clock.Now(), uuid.New(), s.ID, []*int{nil})
	require.NoError(t, err)

	_, err = f.o.OverrideScore(context.Background(), res.SubmissionID, 11, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	sub, err := f.o.OverrideScore(context.Background(), res.SubmissionID, 7.5, "Partial credit for working")
	require.NoError(t, err)
	require.NotNil(t, sub.Score)
	assert.Equal(t, 7.5, *sub.Score)
	assert.Equal(t, models.ScoreSourceManual, *sub.ScoreSource)

	_, err = f.o.OverrideScore(context.Background(), uuid.New(), 1, "")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestOrchestrator_PlaybackIsPerViewer(t *testing.T) {
	rf := newRegistryFixture()
	o := NewSessionOrchestrator(OrchestratorOptions{}, &stubSchedule{}, rf.lessons, newStubSubmissions(), &stubEffects{}, stubFeedback{}, rf.r, zerolog.Nop())
	lesson := rf.addVideo("https://cdn.example.com/a.mp4", cues(0.0, "a", 5.0, "b", 12.0, "c"))
	alice, bob := uuid.New(), uuid.New()

	opened, err := o.OpenVideo(context.Background(), alice, lesson)
	require.NoError(t, err)
	_, err = o.OpenVideo(context.Background(), bob, lesson)
	require.NoError(t, err)

	state, err := o.OnSeek(alice, opened.Snapshot.Generation, 13)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Snapshot.ActiveIndex)

	state, err = o.PlaybackState(bob)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Snapshot.ActiveIndex)
	assert.Zero(t, state.Snapshot.ElapsedSeconds)

	require.NoError(t, o.ClosePlayback(context.Background(), alice))
	_, err = o.OnTimeUpdate(alice, opened.Snapshot.Generation, 1)
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}
