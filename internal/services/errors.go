package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrSuperseded is returned to a lesson fetch that lost to a newer request for the same key.
// Its result has been discarded.
var ErrSuperseded = errors.New("request superseded by a newer one")

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// ScheduleFetchError means the class schedule could not be loaded. Callers fall back to
// the last good (or an empty) list and show a banner.
type ScheduleFetchError struct {
	ClassID uuid.UUID
	Err     error
}

func (e *ScheduleFetchError) Error() string {
	return fmt.Sprintf("failed to fetch schedule for class %s: %v", e.ClassID, e.Err)
}

func (e *ScheduleFetchError) Unwrap() error { return e.Err }

// LessonDetailFetchError is raised at dispatch time; the user may retry.
type LessonDetailFetchError struct {
	LessonID uuid.UUID
	Err      error
}

func (e *LessonDetailFetchError) Error() string {
	return fmt.Sprintf("failed to load lesson %s: %v", e.LessonID, e.Err)
}

func (e *LessonDetailFetchError) Unwrap() error { return e.Err }

// EmptyQuestionSetError refuses to start an exam that has no questions.
type EmptyQuestionSetError struct {
	LessonID uuid.UUID
}

func (e *EmptyQuestionSetError) Error() string {
	return "This exam has no questions yet"
}

// PlaybackInitError means the video backend could not be prepared. FallbackURL is set
// when an embedded player can be used instead.
type PlaybackInitError struct {
	VideoURL    string
	FallbackURL string
	Err         error
}

func (e *PlaybackInitError) Error() string {
	return fmt.Sprintf("video unavailable (%s): %v", e.VideoURL, e.Err)
}

func (e *PlaybackInitError) Unwrap() error { return e.Err }
