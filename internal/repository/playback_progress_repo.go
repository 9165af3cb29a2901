package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaybackProgressRepo keeps one row per viewing of a video lesson.
type PlaybackProgressRepo struct {
	pool *pgxpool.Pool
}

func NewPlaybackProgressRepo(pool *pgxpool.Pool) *PlaybackProgressRepo {
	return &PlaybackProgressRepo{pool: pool}
}

// Start opens a viewing row and returns its id.
func (r *PlaybackProgressRepo) Start(ctx context.Context, userID, lessonID uuid.UUID) (uuid.UUID, error) {
	// Close a previous open viewing for the same user/lesson (idempotent behavior)
	_, _ = r.pool.Exec(ctx, `
		UPDATE playback_progress
		SET ended_at = NOW()
		WHERE user_id = $1
		  AND lesson_id = $2
		  AND ended_at IS NULL
	`, userID, lessonID)

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO playback_progress (user_id, lesson_id)
		VALUES ($1, $2)
		RETURNING id
	`, userID, lessonID).Scan(&id)
	return id, err
}

// Stop closes a viewing and stores the last position.
func (r *PlaybackProgressRepo) Stop(ctx context.Context, id uuid.UUID, elapsedSeconds float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE playback_progress
		SET ended_at = CASE WHEN ended_at IS NULL THEN NOW() ELSE ended_at END,
			last_position_seconds = GREATEST(0, $2)
		WHERE id = $1
	`, id, elapsedSeconds)
	return err
}
