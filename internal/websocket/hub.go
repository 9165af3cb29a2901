package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"classroom-backend/internal/models"
	"classroom-backend/internal/playback"
	"classroom-backend/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser resolves a bearer token to a user.
type TokenParser interface {
	ParseToken(tokenStr string) (uuid.UUID, string, error)
}

// PlaybackDriver is the set of playback intents driven over the socket.
type PlaybackDriver interface {
	SetCueSink(viewerID uuid.UUID, sink func(playback.CueChange))
	OpenVideo(ctx context.Context, viewerID, lessonID uuid.UUID) (*services.PlaybackState, error)
	OnTimeUpdate(viewerID uuid.UUID, generation uint64, elapsed float64) (*services.PlaybackState, error)
	OnSeek(viewerID uuid.UUID, generation uint64, target float64) (*services.PlaybackState, error)
	ToggleSecondaryLanguage(viewerID uuid.UUID) (*services.PlaybackState, error)
	ClosePlayback(ctx context.Context, viewerID uuid.UUID) error
}

// client is one socket. gorilla connections allow a single concurrent writer.
type client struct {
	conn    *websocket.Conn
	userID  uuid.UUID
	classID uuid.UUID
	writeMu sync.Mutex
}

func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) sendJSON(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.send(data)
}

// Hub fans class status events out to sockets and routes playback commands from
// them. Each class with at least one socket holds one Redis subscription.
type Hub struct {
	mu          sync.RWMutex
	classes     map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc

	redisClient *redis.Client
	auth        TokenParser
	playback    PlaybackDriver
	logger      zerolog.Logger

	listen func(ctx context.Context, classID uuid.UUID)
}

func NewHub(redisClient *redis.Client, auth TokenParser, playback PlaybackDriver, logger zerolog.Logger) *Hub {
	h := &Hub{
		classes:     make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		auth:        auth,
		playback:    playback,
		logger:      logger.With().Str("component", "ws").Logger(),
	}
	h.listen = h.subscribe
	return h
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	userID, _, err := h.auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	classID, err := uuid.Parse(r.URL.Query().Get("class_id"))
	if err != nil {
		http.Error(w, "class_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, userID: userID, classID: classID}
	h.register(c)

	go h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd models.PlaybackCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.sendError(c, "INVALID_MESSAGE", "Message is not valid JSON")
			continue
		}
		h.handleCommand(c, cmd)
	}
}

func (h *Hub) handleCommand(c *client, cmd models.PlaybackCommand) {
	var (
		state *services.PlaybackState
		err   error
	)

	switch cmd.Type {
	case "open_video":
		if cmd.LessonID == nil {
			h.sendError(c, "VALIDATION_ERROR", "lesson_id is required")
			return
		}
		state, err = h.playback.OpenVideo(context.Background(), c.userID, *cmd.LessonID)
	case "time_update", "seek":
		if cmd.Generation == 0 {
			h.sendError(c, "VALIDATION_ERROR", "generation is required")
			return
		}
		if cmd.Type == "seek" {
			state, err = h.playback.OnSeek(c.userID, cmd.Generation, cmd.Elapsed)
		} else {
			state, err = h.playback.OnTimeUpdate(c.userID, cmd.Generation, cmd.Elapsed)
		}
	case "toggle_secondary":
		state, err = h.playback.ToggleSecondaryLanguage(c.userID)
	case "close_video":
		err = h.playback.ClosePlayback(context.Background(), c.userID)
	default:
		h.sendError(c, "UNKNOWN_COMMAND", "Unknown command: "+cmd.Type)
		return
	}

	if err != nil {
		h.sendError(c, "PLAYBACK_ERROR", err.Error())
		return
	}
	// time updates are answered by cue events only
	if state != nil && cmd.Type != "time_update" {
		c.sendJSON(models.WSMessage{Type: "playback_state", Payload: state})
	}
}

func (h *Hub) sendError(c *client, code, message string) {
	c.sendJSON(models.WSMessage{
		Type:    "error",
		Payload: models.ErrorEvent{ErrorCode: code, ErrorMessage: message},
	})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.classes[c.classID] = append(h.classes[c.classID], c)

	// Start pub/sub subscription if this is the first connection for this class
	if len(h.classes[c.classID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[c.classID] = cancel
		go h.listen(ctx, c.classID)
	}

	h.playback.SetCueSink(c.userID, h.cueSink(c))

	h.logger.Info().
		Str("user_id", c.userID.String()).
		Str("class_id", c.classID.String()).
		Int("class_sockets", len(h.classes[c.classID])).
		Msg("websocket connected")
}

func (h *Hub) unregister(c *client) {
	c.conn.Close()

	h.mu.Lock()
	conns := h.classes[c.classID]
	for i, other := range conns {
		if other == c {
			h.classes[c.classID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.classes[c.classID]) == 0 {
		delete(h.classes, c.classID)
		if cancel, ok := h.cancelFuncs[c.classID]; ok {
			cancel()
			delete(h.cancelFuncs, c.classID)
		}
	}

	// Cues move to another socket of the same user. The video closes with the last one.
	other := h.otherSocketLocked(c.userID)
	if other != nil {
		h.playback.SetCueSink(c.userID, h.cueSink(other))
	} else {
		h.playback.SetCueSink(c.userID, nil)
	}
	h.mu.Unlock()

	if other == nil {
		if err := h.playback.ClosePlayback(context.Background(), c.userID); err == nil {
			h.logger.Debug().Str("user_id", c.userID.String()).Msg("closed video on disconnect")
		}
	}

	h.logger.Info().Str("user_id", c.userID.String()).Msg("websocket disconnected")
}

func (h *Hub) cueSink(c *client) func(playback.CueChange) {
	return func(change playback.CueChange) {
		if err := c.sendJSON(models.WSMessage{Type: "cue", Payload: change}); err != nil {
			h.logger.Debug().Err(err).Str("user_id", c.userID.String()).Msg("cue not delivered")
		}
	}
}

func (h *Hub) otherSocketLocked(userID uuid.UUID) *client {
	for _, conns := range h.classes {
		for _, c := range conns {
			if c.userID == userID {
				return c
			}
		}
	}
	return nil
}

func (h *Hub) subscribe(ctx context.Context, classID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.ClassChannel(classID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(classID, []byte(msg.Payload))
		}
	}
}

// Broadcast writes data to every socket watching classID.
func (h *Hub) Broadcast(classID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.classes[classID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(data); err != nil {
			h.logger.Debug().Err(err).Str("user_id", c.userID.String()).Msg("broadcast write failed")
		}
	}
}
