package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EffectRecordCompletion = "record-completion"
	EffectRecordScore      = "record-score"
)

// Effect is a one-way write queued for the worker pool.
type Effect struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	SessionID    uuid.UUID  `json:"session_id"`
	SubmissionID *uuid.UUID `json:"submission_id,omitempty"`
	Score        float64    `json:"score,omitempty"`
	Feedback     string     `json:"feedback,omitempty"`
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusChangedEvent struct {
	SessionID uuid.UUID     `json:"session_id"`
	ClassID   uuid.UUID     `json:"class_id"`
	Previous  SessionStatus `json:"previous,omitempty"`
	Status    SessionStatus `json:"status"`
	Action    Action        `json:"action"`
}

// PlaybackCommand is a playback intent sent over the socket. time_update and seek
// carry the generation from the last playback_state for the open video.
type PlaybackCommand struct {
	Type       string     `json:"type"`
	LessonID   *uuid.UUID `json:"lesson_id,omitempty"`
	Generation uint64     `json:"generation,omitempty"`
	Elapsed    float64    `json:"elapsed"`
}

type ErrorEvent struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type OpenVideoRequest struct {
	LessonID uuid.UUID `json:"lesson_id" validate:"required"`
}

type TimeUpdateRequest struct {
	Generation uint64  `json:"generation" validate:"required"`
	Elapsed    float64 `json:"elapsed" validate:"finite"`
}

type SeekRequest struct {
	Generation uint64  `json:"generation" validate:"required"`
	Target     float64 `json:"target" validate:"finite"`
}
