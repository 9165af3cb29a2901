package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"classroom-backend/internal/models"
)

type ScheduleRepo struct {
	pool            *pgxpool.Pool
	defaultDuration time.Duration
}

// NewScheduleRepo returns a repo that gives sessions stored without a duration
// defaultDuration instead.
func NewScheduleRepo(pool *pgxpool.Pool, defaultDuration time.Duration) *ScheduleRepo {
	return &ScheduleRepo{pool: pool, defaultDuration: defaultDuration}
}

const sessionColumns = `s.id, s.class_id, s.lesson_id, l.type, l.title, s.start_time, s.duration_minutes,
	s.recording_url, s.is_completed, s.position, s.created_at`

func (r *ScheduleRepo) scanSession(row pgx.Row) (*models.ScheduledSession, error) {
	s := &models.ScheduledSession{}
	var (
		lessonType string
		duration   *int
	)
	err := row.Scan(
		&s.ID, &s.ClassID, &s.LessonID, &lessonType, &s.LessonTitle, &s.StartTime, &duration,
		&s.RecordingURL, &s.IsCompleted, &s.Position, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.LessonType = models.ParseLessonType(lessonType)
	s.DurationMinutes = durationMinutes(duration, r.defaultDuration)
	return s, nil
}

// durationMinutes keeps a stored duration as is, including 0 and negatives.
// NULL means the session was scheduled without one.
func durationMinutes(stored *int, fallback time.Duration) int {
	if stored != nil {
		return *stored
	}
	return int(fallback / time.Minute)
}

func (r *ScheduleRepo) collect(rows pgx.Rows) ([]*models.ScheduledSession, error) {
	defer rows.Close()

	var sessions []*models.ScheduledSession
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListByClass returns a class's sessions in syllabus order.
func (r *ScheduleRepo) ListByClass(ctx context.Context, classID uuid.UUID) ([]*models.ScheduledSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM class_sessions s JOIN lessons l ON l.id = s.lesson_id
		WHERE s.class_id = $1
		ORDER BY s.position, s.start_time NULLS LAST`

	rows, err := r.pool.Query(ctx, query, classID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// FetchSessionSchedule satisfies services.ScheduleSource.
func (r *ScheduleRepo) FetchSessionSchedule(ctx context.Context, classID uuid.UUID) ([]*models.ScheduledSession, error) {
	return r.ListByClass(ctx, classID)
}

func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM class_sessions s JOIN lessons l ON l.id = s.lesson_id
		WHERE s.id = $1`

	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// ListInWindow returns incomplete sessions starting in [from, to).
func (r *ScheduleRepo) ListInWindow(ctx context.Context, from, to time.Time) ([]*models.ScheduledSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM class_sessions s JOIN lessons l ON l.id = s.lesson_id
		WHERE s.is_completed = FALSE
		  AND s.start_time >= $1
		  AND s.start_time < $2
		ORDER BY s.start_time`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *ScheduleRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE class_sessions SET is_completed = TRUE WHERE id = $1", id)
	return err
}
