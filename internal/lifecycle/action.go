package lifecycle

import "classroom-backend/internal/models"

var actionLabels = map[models.ActionKind]string{
	models.ActionJoinLive:       "Join live class",
	models.ActionWatchRecording: "Watch recording",
	models.ActionNone:           "Recording unavailable",
	models.ActionLocked:         "Not started yet",
	models.ActionViewResult:     "View result",
	models.ActionStartExam:      "Start exam",
	models.ActionPlayGame:       "Play game",
	models.ActionStartLesson:    "Start lesson",
}

func newAction(kind models.ActionKind, enabled bool) models.Action {
	return models.Action{Kind: kind, Label: actionLabels[kind], Enabled: enabled}
}

// ResolveAction returns exactly one action for a lesson type in a lifecycle state.
// Unknown lesson types are handled as OTHER.
func ResolveAction(lessonType models.LessonType, status models.SessionStatus, s *models.ScheduledSession) models.Action {
	switch models.ParseLessonType(string(lessonType)) {
	case models.LessonTypeLiveSession:
		return liveSessionAction(status, s)
	case models.LessonTypeExam:
		if status == models.SessionStatusCompleted {
			return newAction(models.ActionViewResult, true)
		}
		return newAction(models.ActionStartExam, true)
	case models.LessonTypeGame:
		return newAction(models.ActionPlayGame, true)
	default:
		return newAction(models.ActionStartLesson, true)
	}
}

func liveSessionAction(status models.SessionStatus, s *models.ScheduledSession) models.Action {
	hasRecording := s != nil && s.HasRecording()

	switch status {
	case models.SessionStatusLive:
		return newAction(models.ActionJoinLive, true)
	case models.SessionStatusEnded, models.SessionStatusCompleted:
		if hasRecording {
			return newAction(models.ActionWatchRecording, true)
		}
		return newAction(models.ActionNone, false)
	default:
		// UPCOMING, LOCKED and anything unrecognised
		return newAction(models.ActionLocked, false)
	}
}
