package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type QuizQuestion struct {
	Question     string   `json:"question"`
	Type         string   `json:"type"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Hint         string   `json:"hint"`
}

// PublicQuestion is a question as sent to a student taking the exam.
type PublicQuestion struct {
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options"`
	Hint     string   `json:"hint,omitempty"`
}

// QuizQuestionResult pairs the correct option with the option picked.
// A nil SelectedIndex means the question was left unanswered.
type QuizQuestionResult struct {
	CorrectIndex  int  `json:"correct_index"`
	SelectedIndex *int `json:"selected_index"`
}

const (
	ScoreSourceAuto   = "auto"
	ScoreSourceManual = "manual"
)

type Submission struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	UserID      uuid.UUID       `json:"user_id"`
	AnswersJSON json.RawMessage `json:"answers"`
	Score       *float64        `json:"score"`
	MaxScore    float64         `json:"max_score"`
	ScoreSource *string         `json:"score_source"`
	Feedback    *string         `json:"feedback"`
	SubmittedAt time.Time       `json:"submitted_at"`
	ScoredAt    *time.Time      `json:"scored_at"`
}

type SubmitExamRequest struct {
	Answers []*int `json:"answers" validate:"required,dive,omitnil,gte=0"`
}

type OverrideScoreRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=2000"`
}
