package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/models"
	"classroom-backend/internal/playback"
	"classroom-backend/internal/services"
)

type stubAuth struct{ userID uuid.UUID }

func (a stubAuth) ParseToken(token string) (uuid.UUID, string, error) {
	if token != "good" {
		return uuid.Nil, "", errors.New("bad token")
	}
	return a.userID, "student", nil
}

type stubDriver struct {
	mu       sync.Mutex
	sinks    map[uuid.UUID]func(playback.CueChange)
	opened   []uuid.UUID
	elapsed  []float64
	closed   int
	closedCh chan struct{}

	// when set, ClosePlayback signals entered and blocks until release is closed
	entered chan struct{}
	release chan struct{}
}

func newStubDriver() *stubDriver {
	return &stubDriver{
		sinks:    make(map[uuid.UUID]func(playback.CueChange)),
		closedCh: make(chan struct{}, 4),
	}
}

func (d *stubDriver) SetCueSink(viewerID uuid.UUID, sink func(playback.CueChange)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sink == nil {
		delete(d.sinks, viewerID)
		return
	}
	d.sinks[viewerID] = sink
}

func (d *stubDriver) sink(viewerID uuid.UUID) func(playback.CueChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sinks[viewerID]
}

func (d *stubDriver) OpenVideo(_ context.Context, _, lessonID uuid.UUID) (*services.PlaybackState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, lessonID)
	return &services.PlaybackState{LessonID: lessonID, Title: "Lecture"}, nil
}

func (d *stubDriver) OnTimeUpdate(_ uuid.UUID, _ uint64, elapsed float64) (*services.PlaybackState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elapsed = append(d.elapsed, elapsed)
	return &services.PlaybackState{}, nil
}

func (d *stubDriver) OnSeek(_ uuid.UUID, _ uint64, target float64) (*services.PlaybackState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elapsed = append(d.elapsed, target)
	return &services.PlaybackState{}, nil
}

func (d *stubDriver) ToggleSecondaryLanguage(uuid.UUID) (*services.PlaybackState, error) {
	return nil, &services.NotFoundError{Message: "No video is open"}
}

func (d *stubDriver) ClosePlayback(context.Context, uuid.UUID) error {
	if d.release != nil {
		d.entered <- struct{}{}
		<-d.release
	}
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	d.closedCh <- struct{}{}
	return nil
}

func newTestHub(t *testing.T, userID uuid.UUID) (*Hub, *stubDriver, *httptest.Server) {
	t.Helper()
	driver := newStubDriver()
	hub := NewHub(nil, stubAuth{userID: userID}, driver, zerolog.Nop())
	hub.listen = func(ctx context.Context, _ uuid.UUID) { <-ctx.Done() }

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, driver, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Payload
}

func TestHandleWebSocket_RejectsBadRequests(t *testing.T) {
	_, _, srv := newTestHub(t, uuid.New())

	resp, err := http.Get(srv.URL + "?token=bad&class_id=" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "?token=good")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_PlaybackCommands(t *testing.T) {
	userID := uuid.New()
	_, driver, srv := newTestHub(t, userID)
	conn := dial(t, srv, "token=good&class_id="+uuid.NewString())

	lessonID := uuid.New()
	require.NoError(t, conn.WriteJSON(models.PlaybackCommand{Type: "open_video", LessonID: &lessonID}))
	typ, payload := readMessage(t, conn)
	assert.Equal(t, "playback_state", typ)
	var state services.PlaybackState
	require.NoError(t, json.Unmarshal(payload, &state))
	assert.Equal(t, lessonID, state.LessonID)

	require.NoError(t, conn.WriteJSON(models.PlaybackCommand{Type: "seek", Generation: 1, Elapsed: 42}))
	typ, _ = readMessage(t, conn)
	assert.Equal(t, "playback_state", typ)

	require.NoError(t, conn.WriteJSON(models.PlaybackCommand{Type: "time_update", Elapsed: 43}))
	typ, payload = readMessage(t, conn)
	assert.Equal(t, "error", typ)
	assert.Contains(t, string(payload), "generation is required")

	require.NoError(t, conn.WriteJSON(models.PlaybackCommand{Type: "toggle_secondary"}))
	typ, payload = readMessage(t, conn)
	assert.Equal(t, "error", typ)
	assert.Contains(t, string(payload), "No video is open")

	require.NoError(t, conn.WriteJSON(models.PlaybackCommand{Type: "rewind"}))
	typ, payload = readMessage(t, conn)
	assert.Equal(t, "error", typ)
	assert.Contains(t, string(payload), "UNKNOWN_COMMAND")

	driver.mu.Lock()
	assert.Equal(t, []uuid.UUID{lessonID}, driver.opened)
	assert.Equal(t, []float64{42}, driver.elapsed)
	driver.mu.Unlock()
}

func TestHub_CueSinkDeliversAndClearsOnDisconnect(t *testing.T) {
	userID := uuid.New()
	_, driver, srv := newTestHub(t, userID)
	conn := dial(t, srv, "token=good&class_id="+uuid.NewString())

	// the sink is installed during the upgrade; wait for the registration
	require.Eventually(t, func() bool { return driver.sink(userID) != nil }, time.Second, 10*time.Millisecond)

	driver.sink(userID)(playback.CueChange{VideoID: "v1", Generation: 1, Index: 3})
	typ, payload := readMessage(t, conn)
	assert.Equal(t, "cue", typ)
	var change playback.CueChange
	require.NoError(t, json.Unmarshal(payload, &change))
	assert.Equal(t, 3, change.Index)

	conn.Close()
	select {
	case <-driver.closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("video was not closed on disconnect")
	}
	assert.Nil(t, driver.sink(userID))
}

func TestHub_BroadcastReachesClassOnly(t *testing.T) {
	userID := uuid.New()
	hub, _, srv := newTestHub(t, userID)
	classA, classB := uuid.New(), uuid.New()
	connA := dial(t, srv, "token=good&class_id="+classA.String())
	connB := dial(t, srv, "token=good&class_id="+classB.String())

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.classes) == 2
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(classA, []byte(`{"type":"session_status","payload":{}}`))
	typ, _ := readMessage(t, connA)
	assert.Equal(t, "session_status", typ)

	connB.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := connB.ReadMessage()
	assert.Error(t, err)
}

func TestHub_SlowCloseDoesNotBlockRegistration(t *testing.T) {
	userID := uuid.New()
	hub, driver, srv := newTestHub(t, userID)
	driver.entered = make(chan struct{}, 1)
	driver.release = make(chan struct{})
	classID := uuid.New()

	first := dial(t, srv, "token=good&class_id="+classID.String())
	require.Eventually(t, func() bool { return driver.sink(userID) != nil }, time.Second, 10*time.Millisecond)
	first.Close()

	select {
	case <-driver.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("video was not closed on disconnect")
	}

	// ClosePlayback is still blocked; a new socket must register meanwhile
	dial(t, srv, "token=good&class_id="+classID.String())
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.classes[classID]) == 1
	}, time.Second, 10*time.Millisecond)

	close(driver.release)
	select {
	case <-driver.closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not finish")
	}
}
