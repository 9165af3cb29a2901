package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type LessonType string

const (
	LessonTypeLiveSession LessonType = "LIVE_SESSION"
	LessonTypeVideo       LessonType = "VIDEO"
	LessonTypeExam        LessonType = "EXAM"
	LessonTypeGame        LessonType = "GAME"
	LessonTypeOther       LessonType = "OTHER"
)

// ParseLessonType normalizes a stored type string. Anything unrecognised is OTHER.
func ParseLessonType(raw string) LessonType {
	switch t := LessonType(strings.ToUpper(strings.TrimSpace(raw))); t {
	case LessonTypeLiveSession, LessonTypeVideo, LessonTypeExam, LessonTypeGame:
		return t
	default:
		return LessonTypeOther
	}
}

// LessonRecord is the stored form of a lesson: a type tag plus a type specific payload.
type LessonRecord struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	PayloadJSON json.RawMessage `json:"payload"`
}

// Lesson is the closed set of lesson variants. Only types in this package implement it.
type Lesson interface {
	LessonID() uuid.UUID
	Type() LessonType
	sealed()
}

type lessonBase struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

func (b lessonBase) LessonID() uuid.UUID { return b.ID }
func (lessonBase) sealed() {}

type LiveSessionLesson struct {
	lessonBase
	RoomURL string `json:"room_url"`
}

func (LiveSessionLesson) Type() LessonType { return LessonTypeLiveSession }

type VideoLesson struct {
	lessonBase
	MediaURL string          `json:"media_url"`
	Cues     []TranscriptCue `json:"cues"`
}

func (VideoLesson) Type() LessonType { return LessonTypeVideo }

type ExamLesson struct {
	lessonBase
	Questions []QuizQuestion `json:"questions"`
	MaxScore  float64        `json:"max_score"`
}

func (ExamLesson) Type() LessonType { return LessonTypeExam }

type GameLesson struct {
	lessonBase
	GameURL string `json:"game_url"`
}

func (GameLesson) Type() LessonType { return LessonTypeGame }

type OtherLesson struct {
	lessonBase
}

func (OtherLesson) Type() LessonType { return LessonTypeOther }

// DecodeLesson turns a stored record into its variant. An empty payload decodes to the
// zero payload for the variant.
func DecodeLesson(rec *LessonRecord) (Lesson, error) {
	base := lessonBase{ID: rec.ID, Title: rec.Title}
	payload := rec.PayloadJSON
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("{}")
	}

	switch ParseLessonType(rec.Type) {
	case LessonTypeLiveSession:
		l := LiveSessionLesson{lessonBase: base}
		if err := json.Unmarshal(payload, &l); err != nil {
			return nil, fmt.Errorf("decode live session payload: %w", err)
		}
		l.lessonBase = base
		return l, nil
	case LessonTypeVideo:
		l := VideoLesson{lessonBase: base}
		if err := json.Unmarshal(payload, &l); err != nil {
			return nil, fmt.Errorf("decode video payload: %w", err)
		}
		l.lessonBase = base
		return l, nil
	case LessonTypeExam:
		l := ExamLesson{lessonBase: base}
		if err := json.Unmarshal(payload, &l); err != nil {
			return nil, fmt.Errorf("decode exam payload: %w", err)
		}
		l.lessonBase = base
		return l, nil
	case LessonTypeGame:
		l := GameLesson{lessonBase: base}
		if err := json.Unmarshal(payload, &l); err != nil {
			return nil, fmt.Errorf("decode game payload: %w", err)
		}
		l.lessonBase = base
		return l, nil
	default:
		return OtherLesson{lessonBase: base}, nil
	}
}

// TranscriptCue is one timestamped subtitle line.
type TranscriptCue struct {
	StartSeconds  float64 `json:"start_seconds"`
	TextPrimary   string  `json:"text_primary"`
	TextSecondary *string `json:"text_secondary,omitempty"`
}
