// Package lifecycle classifies scheduled sessions against the current time and
// maps each classification to the single action a user may take.
package lifecycle

import (
	"time"

	"classroom-backend/internal/models"
)

// Resolver classifies sessions. It holds no state; the session's own duration
// bounds the LIVE window. Records stored without a duration get the configured
// default when they are loaded.
type Resolver struct{}

func NewResolver() Resolver {
	return Resolver{}
}

// Resolve returns the lifecycle state of s at now. It is pure: the same inputs always
// produce the same state, and it never fails.
//
// The LIVE window is closed-open: LIVE at the start instant, ENDED at the end instant.
func (r Resolver) Resolve(now time.Time, s *models.ScheduledSession) models.SessionStatus {
	if s == nil {
		return models.SessionStatusLocked
	}
	if s.IsCompleted {
		return models.SessionStatusCompleted
	}

	start, end, ok := r.Window(s)
	if !ok {
		return models.SessionStatusLocked
	}

	switch {
	case now.Before(start):
		return models.SessionStatusUpcoming
	case now.Before(end):
		return models.SessionStatusLive
	default:
		return models.SessionStatusEnded
	}
}

// Window returns the [start, end) LIVE interval of s. ok is false when the session
// has no start time. A zero or negative duration yields an empty window, so the
// start instant already resolves to ENDED.
func (r Resolver) Window(s *models.ScheduledSession) (time.Time, time.Time, bool) {
	if s == nil || s.StartTime == nil {
		return time.Time{}, time.Time{}, false
	}
	start := *s.StartTime
	if s.DurationMinutes <= 0 {
		return start, start, true
	}
	return start, start.Add(time.Duration(s.DurationMinutes) * time.Minute), true
}
