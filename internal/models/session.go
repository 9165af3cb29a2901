package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusUpcoming  SessionStatus = "UPCOMING"
	SessionStatusLive      SessionStatus = "LIVE"
	SessionStatusEnded     SessionStatus = "ENDED"
	SessionStatusLocked    SessionStatus = "LOCKED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// ScheduledSession is one occurrence of a lesson within a class.
type ScheduledSession struct {
	ID              uuid.UUID  `json:"id"`
	ClassID         uuid.UUID  `json:"class_id"`
	LessonID        uuid.UUID  `json:"lesson_id"`
	LessonType      LessonType `json:"lesson_type"`
	LessonTitle     string     `json:"lesson_title"`
	StartTime       *time.Time `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	RecordingURL    *string    `json:"recording_url"`
	IsCompleted     bool       `json:"is_completed"`
	Position        int        `json:"position"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasRecording reports whether a non-blank recording URL is attached.
func (s *ScheduledSession) HasRecording() bool {
	return s.RecordingURL != nil && strings.TrimSpace(*s.RecordingURL) != ""
}

type ActionKind string

const (
	ActionJoinLive       ActionKind = "JOIN_LIVE"
	ActionWatchRecording ActionKind = "WATCH_RECORDING"
	ActionNone           ActionKind = "NONE"
	ActionLocked         ActionKind = "LOCKED"
	ActionViewResult     ActionKind = "VIEW_RESULT"
	ActionStartExam      ActionKind = "START_EXAM"
	ActionPlayGame       ActionKind = "PLAY_GAME"
	ActionStartLesson    ActionKind = "START_LESSON"
)

// Action is the single primary action a user may take on a session.
// Enabled=false means the button is shown disabled, not hidden.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Label   string     `json:"label"`
	Enabled bool       `json:"enabled"`
}

// SessionView is the render-ready pair returned for a session.
type SessionView struct {
	Session *ScheduledSession `json:"session"`
	Status  SessionStatus     `json:"status"`
	Action  Action            `json:"action"`
}
