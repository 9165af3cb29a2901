package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classroom-backend/internal/models"
)

type LessonRepo struct {
	pool *pgxpool.Pool
}

func NewLessonRepo(pool *pgxpool.Pool) *LessonRepo {
	return &LessonRepo{pool: pool}
}

func (r *LessonRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.LessonRecord, error) {
	rec := &models.LessonRecord{}
	query := `SELECT id, type, title, payload_json FROM lessons WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(&rec.ID, &rec.Type, &rec.Title, &rec.PayloadJSON)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FetchLessonDetail satisfies services.LessonSource.
func (r *LessonRepo) FetchLessonDetail(ctx context.Context, id uuid.UUID) (models.Lesson, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lesson, err := models.DecodeLesson(rec)
	if err != nil {
		return nil, fmt.Errorf("lesson %s: %w", id, err)
	}
	return lesson, nil
}
