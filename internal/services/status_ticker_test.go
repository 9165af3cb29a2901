package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/lifecycle"
	"classroom-backend/internal/models"
	"classroom-backend/internal/testfixtures"
)

func decodeStatusEvent(t *testing.T, raw string) models.StatusChangedEvent {
	t.Helper()
	var msg struct {
		Type    string                    `json:"type"`
		Payload models.StatusChangedEvent `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	require.Equal(t, "session_status", msg.Type)
	return msg.Payload
}

func TestStatusTicker_PublishesTransitions(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	session := testfixtures.Session(models.LessonTypeLiveSession, clock.Now().Add(5*time.Minute), 60)
	schedule := &stubSchedule{sessions: []*models.ScheduledSession{session}}
	pub := &stubPublisher{}

	ticker := NewStatusTicker(schedule, lifecycle.NewResolver(), pub, time.Minute, clock.NowFunc(), zerolog.Nop())
	ctx := context.Background()

	assert.Equal(t, 0, ticker.Tick(ctx), "first sighting only records the status")
	assert.Equal(t, 0, ticker.Tick(ctx), "unchanged status is not republished")

	clock.Advance(5 * time.Minute)
	require.Equal(t, 1, ticker.Tick(ctx))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, ClassChannel(session.ClassID), pub.messages[0].Channel)

	event := decodeStatusEvent(t, pub.messages[0].Message)
	assert.Equal(t, session.ID, event.SessionID)
	assert.Equal(t, models.SessionStatusUpcoming, event.Previous)
	assert.Equal(t, models.SessionStatusLive, event.Status)
	assert.Equal(t, models.ActionJoinLive, event.Action.Kind)

	clock.Advance(time.Hour)
	require.Equal(t, 1, ticker.Tick(ctx))
	event = decodeStatusEvent(t, pub.messages[1].Message)
	assert.Equal(t, models.SessionStatusEnded, event.Status)
	assert.Equal(t, models.ActionNone, event.Action.Kind)
}

func TestStatusTicker_ForgetsSessionsOutsideWindow(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	session := testfixtures.Session(models.LessonTypeLiveSession, clock.Now(), 60)
	schedule := &stubSchedule{sessions: []*models.ScheduledSession{session}}

	ticker := NewStatusTicker(schedule, lifecycle.NewResolver(), &stubPublisher{}, time.Minute, clock.NowFunc(), zerolog.Nop())
	ticker.Tick(context.Background())
	require.Contains(t, ticker.last, session.ID)

	clock.Advance(48 * time.Hour)
	ticker.Tick(context.Background())
	assert.NotContains(t, ticker.last, session.ID)
}

func TestStatusTicker_ListFailure(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	schedule := &stubSchedule{err: errors.New("db down")}

	ticker := NewStatusTicker(schedule, lifecycle.NewResolver(), &stubPublisher{}, time.Minute, clock.NowFunc(), zerolog.Nop())
	assert.Equal(t, 0, ticker.Tick(context.Background()))
}

func TestStatusTicker_RunStopsOnCancel(t *testing.T) {
	schedule := &stubSchedule{}
	ticker := NewStatusTicker(schedule, lifecycle.NewResolver(), &stubPublisher{}, 10*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ticker.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
}
