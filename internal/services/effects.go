package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classroom-backend/internal/models"
)

const EffectsQueue = "queue:session-effects"

// RedisEffectSink queues one-way writes for the worker pool. Delivery and retries are
// the worker's job; callers only learn whether the effect was queued.
type RedisEffectSink struct {
	redis *redis.Client
	now   func() time.Time
}

func NewRedisEffectSink(redisClient *redis.Client) *RedisEffectSink {
	return &RedisEffectSink{redis: redisClient, now: time.Now}
}

func (s *RedisEffectSink) RecordCompletion(ctx context.Context, sessionID uuid.UUID) error {
	return s.push(ctx, &models.Effect{
		Type:      models.EffectRecordCompletion,
		SessionID: sessionID,
	})
}

func (s *RedisEffectSink) RecordScore(ctx context.Context, sessionID, submissionID uuid.UUID, score float64, feedback string) error {
	return s.push(ctx, &models.Effect{
		Type:         models.EffectRecordScore,
		SessionID:    sessionID,
		SubmissionID: &submissionID,
		Score:        score,
		Feedback:     feedback,
	})
}

func (s *RedisEffectSink) push(ctx context.Context, effect *models.Effect) error {
	effect.ID = uuid.New()
	effect.CreatedAt = s.now().UTC()

	data, err := json.Marshal(effect)
	if err != nil {
		return err
	}
	if err := s.redis.LPush(ctx, EffectsQueue, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to queue %s: %w", effect.Type, err)
	}
	return nil
}
