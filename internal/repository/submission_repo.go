package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classroom-backend/internal/models"
)

// ErrScoreLocked is returned when an automatic score would replace a human override.
var ErrScoreLocked = errors.New("score was set manually")

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func (r *SubmissionRepo) Create(ctx context.Context, s *models.Submission) error {
	s.ID = uuid.New()
	if len(s.AnswersJSON) == 0 {
		s.AnswersJSON = json.RawMessage("[]")
	}

	query := `INSERT INTO submissions (id, session_id, user_id, answers_json, max_score)
		VALUES ($1, $2, $3, $4, $5) RETURNING submitted_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.SessionID, s.UserID, s.AnswersJSON, s.MaxScore,
	).Scan(&s.SubmittedAt)
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	s := &models.Submission{}
	query := `SELECT id, session_id, user_id, answers_json, score, max_score, score_source, feedback, submitted_at, scored_at
		FROM submissions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.SessionID, &s.UserID, &s.AnswersJSON, &s.Score, &s.MaxScore,
		&s.ScoreSource, &s.Feedback, &s.SubmittedAt, &s.ScoredAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// RecordAutoScore stores an auto-graded score. A score already set by a human is left
// untouched and ErrScoreLocked is returned.
func (r *SubmissionRepo) RecordAutoScore(ctx context.Context, id uuid.UUID, score float64, feedback string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions SET score = $1, feedback = NULLIF($2, ''), score_source = 'auto', scored_at = NOW()
		 WHERE id = $3 AND (score_source IS NULL OR score_source <> 'manual')`,
		score, feedback, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScoreLocked
	}
	return nil
}

// RecordManualScore overrides the score. Later automatic scores will not replace it.
func (r *SubmissionRepo) RecordManualScore(ctx context.Context, id uuid.UUID, score float64, feedback string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE submissions SET score = $1, feedback = NULLIF($2, ''), score_source = 'manual', scored_at = NOW()
		 WHERE id = $3`,
		score, feedback, id,
	)
	return err
}
