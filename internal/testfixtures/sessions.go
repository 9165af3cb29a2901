// Package testfixtures holds builders shared by package tests.
package testfixtures

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"classroom-backend/internal/models"
)

// ReferenceTime is the fixed instant tests are anchored to.
func ReferenceTime() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

// Session returns an incomplete session of lessonType starting at start.
func Session(lessonType models.LessonType, start time.Time, durationMinutes int) *models.ScheduledSession {
	return &models.ScheduledSession{
		ID:              uuid.New(),
		ClassID:         uuid.New(),
		LessonID:        uuid.New(),
		LessonType:      lessonType,
		LessonTitle:     string(lessonType) + " lesson",
		StartTime:       &start,
		DurationMinutes: durationMinutes,
		CreatedAt:       ReferenceTime().Add(-24 * time.Hour),
	}
}

func Ptr[T any](v T) *T { return &v }

// Record encodes payload into a lesson record of the given type.
func Record(id uuid.UUID, lessonType models.LessonType, title string, payload any) *models.LessonRecord {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &models.LessonRecord{ID: id, Type: string(lessonType), Title: title, PayloadJSON: raw}
}

// Exam decodes an exam lesson with the given questions.
func Exam(id uuid.UUID, maxScore float64, questions ...models.QuizQuestion) models.Lesson {
	lesson, err := models.DecodeLesson(Record(id, models.LessonTypeExam, "Unit test", map[string]any{
		"questions": questions,
		"max_score": maxScore,
	}))
	if err != nil {
		panic(err)
	}
	return lesson
}

// Video decodes a video lesson.
func Video(id uuid.UUID, mediaURL string, cues ...models.TranscriptCue) models.Lesson {
	lesson, err := models.DecodeLesson(Record(id, models.LessonTypeVideo, "Lecture", map[string]any{
		"media_url": mediaURL,
		"cues":      cues,
	}))
	if err != nil {
		panic(err)
	}
	return lesson
}

// Question returns a three-option question whose correct option is correct.
func Question(text string, correct int) models.QuizQuestion {
	return models.QuizQuestion{
		Question:     text,
		Type:         "multiple_choice",
		Options:      []string{"A", "B", "C"},
		CorrectIndex: correct,
		Explanation:  "because",
	}
}
