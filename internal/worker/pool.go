package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/models"
	"classroom-backend/internal/repository"
	"classroom-backend/internal/services"
)

const (
	maxRetries  = 3
	lockTTL     = 5 * time.Minute
	popTimeout  = 5 * time.Second
	lockKeyBase = "effect_lock:"
)

// SessionStore is the part of the schedule repository effects write to.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledSession, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

type ScoreStore interface {
	RecordAutoScore(ctx context.Context, id uuid.UUID, score float64, feedback string) error
}

// permanentError marks an effect that must not be retried.
type permanentError struct{ error }

func (e permanentError) Unwrap() error { return e.error }

// Pool drains the session effects queue.
type Pool struct {
	redis       *redis.Client
	sessions    SessionStore
	scores      ScoreStore
	publisher   services.Publisher
	workerCount int
	logger      zerolog.Logger

	wg sync.WaitGroup
}

func NewPool(
	redisClient *redis.Client,
	sessions SessionStore,
	scores ScoreStore,
	publisher services.Publisher,
	workerCount int,
	logger zerolog.Logger,
) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		sessions:    sessions,
		scores:      scores,
		publisher:   publisher,
		workerCount: workerCount,
		logger:      logger.With().Str("component", "worker").Logger(),
	}
}

// Run starts the workers and blocks until ctx is done and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info().Int("workers", p.workerCount).Msg("effect workers started")

	<-ctx.Done()
	p.wg.Wait()
	return nil
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker", id).Logger()

	for {
		if ctx.Err() != nil {
			log.Debug().Msg("worker shutting down")
			return
		}

		result, err := p.redis.BLPop(ctx, popTimeout, services.EffectsQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				log.Warn().Err(err).Msg("queue pop failed")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var effect models.Effect
		if err := json.Unmarshal([]byte(result[1]), &effect); err != nil {
			log.Error().Err(err).Msg("failed to parse effect")
			continue
		}

		lockKey := lockKeyBase + effect.ID.String()
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue // another worker has this effect
		}

		log.Debug().Str("effect_id", effect.ID.String()).Str("type", effect.Type).Msg("applying effect")
		if err := p.Apply(ctx, &effect); err != nil {
			p.handleFailure(ctx, &effect, err)
		}

		p.redis.Del(context.Background(), lockKey)
	}
}

// Apply performs one effect.
func (p *Pool) Apply(ctx context.Context, effect *models.Effect) error {
	switch effect.Type {
	case models.EffectRecordCompletion:
		return p.recordCompletion(ctx, effect.SessionID)
	case models.EffectRecordScore:
		if effect.SubmissionID == nil {
			return permanentError{fmt.Errorf("record-score effect %s has no submission", effect.ID)}
		}
		err := p.scores.RecordAutoScore(ctx, *effect.SubmissionID, effect.Score, effect.Feedback)
		if errors.Is(err, repository.ErrScoreLocked) {
			p.logger.Info().Str("submission_id", effect.SubmissionID.String()).Msg("score set manually, auto score skipped")
			return nil
		}
		return err
	default:
		return permanentError{fmt.Errorf("unknown effect type: %s", effect.Type)}
	}
}

func (p *Pool) recordCompletion(ctx context.Context, sessionID uuid.UUID) error {
	if err := p.sessions.MarkCompleted(ctx, sessionID); err != nil {
		return err
	}

	session, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("completed session not reloaded")
		return nil
	}

	event := models.StatusChangedEvent{
		SessionID: session.ID,
		ClassID:   session.ClassID,
		Status:    models.SessionStatusCompleted,
		Action:    lifecycle.ResolveAction(session.LessonType, models.SessionStatusCompleted, session),
	}
	data, _ := json.Marshal(models.WSMessage{Type: "session_status", Payload: event})
	if err := p.publisher.Publish(ctx, services.ClassChannel(session.ClassID), string(data)).Err(); err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to publish completion")
	}
	return nil
}

func (p *Pool) handleFailure(ctx context.Context, effect *models.Effect, err error) {
	effect.RetryCount++
	log := p.logger.With().Str("effect_id", effect.ID.String()).Str("type", effect.Type).Int("attempt", effect.RetryCount).Logger()

	if !shouldRetry(effect, err) {
		log.Error().Err(err).Msg("effect failed permanently")
		return
	}

	log.Warn().Err(err).Msg("effect failed, retrying")
	data, _ := json.Marshal(effect)
	time.AfterFunc(backoff(effect.RetryCount), func() {
		if err := p.redis.LPush(context.Background(), services.EffectsQueue, string(data)).Err(); err != nil {
			p.logger.Error().Err(err).Str("effect_id", effect.ID.String()).Msg("failed to requeue effect")
		}
	})
}

func shouldRetry(effect *models.Effect, err error) bool {
	var perm permanentError
	if errors.As(err, &perm) {
		return false
	}
	return effect.RetryCount < maxRetries
}

func backoff(retry int) time.Duration {
	return time.Duration(1<<uint(retry)) * time.Second
}
