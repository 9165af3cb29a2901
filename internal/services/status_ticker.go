package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/models"
)

const (
	statusLookback  = 24 * time.Hour
	statusLookahead = 10 * time.Minute
)

// WindowSource lists incomplete sessions starting in [from, to).
type WindowSource interface {
	ListInWindow(ctx context.Context, from, to time.Time) ([]*models.ScheduledSession, error)
}

// Publisher is the subset of *redis.Client the ticker needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// StatusTicker re-resolves session status on a coarse wall-clock tick and publishes a
// session_status event for every session whose status changed since the last tick.
type StatusTicker struct {
	sessions  WindowSource
	resolver  lifecycle.Resolver
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger

	last map[uuid.UUID]models.SessionStatus
}

func NewStatusTicker(sessions WindowSource, resolver lifecycle.Resolver, publisher Publisher, interval time.Duration, now func() time.Time, logger zerolog.Logger) *StatusTicker {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &StatusTicker{
		sessions:  sessions,
		resolver:  resolver,
		publisher: publisher,
		interval:  interval,
		now:       now,
		logger:    logger.With().Str("component", "status_ticker").Logger(),
		last:      make(map[uuid.UUID]models.SessionStatus),
	}
}

// Run ticks until ctx is done. The first tick happens immediately.
func (t *StatusTicker) Run(ctx context.Context) error {
	t.logger.Info().Dur("interval", t.interval).Msg("status ticker started")
	t.Tick(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("status ticker stopped")
			return nil
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick resolves every session near now and returns the number of events published.
// Sessions seen for the first time are recorded without an event.
func (t *StatusTicker) Tick(ctx context.Context) int {
	now := t.now().UTC()

	sessions, err := t.sessions.ListInWindow(ctx, now.Add(-statusLookback), now.Add(statusLookahead))
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to list sessions")
		return 0
	}

	seen := make(map[uuid.UUID]struct{}, len(sessions))
	published := 0
	for _, s := range sessions {
		seen[s.ID] = struct{}{}

		status := t.resolver.Resolve(now, s)
		prev, known := t.last[s.ID]
		t.last[s.ID] = status
		if !known || prev == status {
			continue
		}

		event := models.StatusChangedEvent{
			SessionID: s.ID,
			ClassID:   s.ClassID,
			Previous:  prev,
			Status:    status,
			Action:    lifecycle.ResolveAction(s.LessonType, status, s),
		}
		if err := t.publish(ctx, event); err != nil {
			t.logger.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to publish status")
			continue
		}
		published++
	}

	for id := range t.last {
		if _, ok := seen[id]; !ok {
			delete(t.last, id)
		}
	}
	return published
}

func (t *StatusTicker) publish(ctx context.Context, event models.StatusChangedEvent) error {
	data, err := json.Marshal(models.WSMessage{Type: "session_status", Payload: event})
	if err != nil {
		return err
	}
	return t.publisher.Publish(ctx, ClassChannel(event.ClassID), string(data)).Err()
}

// ClassChannel is the pub/sub channel for a class's live updates.
func ClassChannel(classID uuid.UUID) string {
	return fmt.Sprintf("class_updates:%s", classID.String())
}
