// Package grading scores discrete quiz submissions.
package grading

import (
	"math"

	"classroom-backend/internal/models"
)

// Result is the outcome of grading one submission.
type Result struct {
	Score              float64 `json:"score"`
	MaxScore           float64 `json:"max_score"`
	CorrectCount       int     `json:"correct_count"`
	Total              int     `json:"total"`
	PerQuestionCorrect []bool  `json:"per_question_correct"`
}

// Grade scores results against maxScore. Unanswered questions count as incorrect and an
// empty submission scores 0. The score is rounded to one decimal place.
func Grade(results []models.QuizQuestionResult, maxScore float64) Result {
	res := Result{
		MaxScore:           maxScore,
		Total:              len(results),
		PerQuestionCorrect: make([]bool, len(results)),
	}

	for i, q := range results {
		if q.SelectedIndex != nil && *q.SelectedIndex == q.CorrectIndex {
			res.PerQuestionCorrect[i] = true
			res.CorrectCount++
		}
	}

	if res.Total == 0 {
		return res
	}

	res.Score = roundTenths(maxScore * float64(res.CorrectCount) / float64(res.Total))
	return res
}

// Pair builds the results for a question set from the selected option per question.
// Missing trailing answers are treated as unanswered.
func Pair(questions []models.QuizQuestion, selected []*int) []models.QuizQuestionResult {
	results := make([]models.QuizQuestionResult, len(questions))
	for i, q := range questions {
		results[i].CorrectIndex = q.CorrectIndex
		if i < len(selected) {
			results[i].SelectedIndex = selected[i]
		}
	}
	return results
}

func roundTenths(v float64) float64 {
	return math.Round(v*10) / 10
}
