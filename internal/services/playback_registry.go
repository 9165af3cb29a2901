package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classroom-backend/internal/models"
	"classroom-backend/internal/playback"
)

// MediaProber resolves captions and a playable source for a video.
type MediaProber interface {
	LoadCues(ctx context.Context, videoURL string) ([]models.TranscriptCue, error)
	ProbePlayback(ctx context.Context, videoURL string) (*PlaybackSource, error)
}

// ProgressRecorder keeps playback bookkeeping per viewer and lesson.
type ProgressRecorder interface {
	Start(ctx context.Context, userID, lessonID uuid.UUID) (uuid.UUID, error)
	Stop(ctx context.Context, id uuid.UUID, elapsedSeconds float64) error
}

// PlaybackState describes a viewer's open video.
type PlaybackState struct {
	LessonID    uuid.UUID         `json:"lesson_id"`
	Title       string            `json:"title"`
	Source      *PlaybackSource   `json:"source,omitempty"`
	Unavailable bool              `json:"unavailable"`
	Message     string            `json:"message,omitempty"`
	Snapshot    playback.Snapshot `json:"snapshot"`
}

type viewerPlayback struct {
	ctrl       *playback.SyncController
	lessonID   uuid.UUID
	title      string
	progressID uuid.UUID
	source     *PlaybackSource
	message    string
}

// PlaybackRegistry owns one SyncController per viewer. Opening a video replaces the
// previous one for that viewer, so cues from the old video are never delivered after
// the switch.
type PlaybackRegistry struct {
	lessons      LessonSource
	media        MediaProber
	progress     ProgressRecorder
	guard        *FetchGuard
	fetchTimeout time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	viewers map[uuid.UUID]*viewerPlayback
	sinks   map[uuid.UUID]func(playback.CueChange)
}

func NewPlaybackRegistry(lessons LessonSource, media MediaProber, progress ProgressRecorder, fetchTimeout time.Duration, logger zerolog.Logger) *PlaybackRegistry {
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return &PlaybackRegistry{
		lessons:      lessons,
		media:        media,
		progress:     progress,
		guard:        NewFetchGuard(),
		fetchTimeout: fetchTimeout,
		logger:       logger.With().Str("component", "playback").Logger(),
		viewers:      make(map[uuid.UUID]*viewerPlayback),
		sinks:        make(map[uuid.UUID]func(playback.CueChange)),
	}
}

// SetCueSink routes a viewer's cue changes to sink. A nil sink removes it.
func (r *PlaybackRegistry) SetCueSink(viewerID uuid.UUID, sink func(playback.CueChange)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink == nil {
		delete(r.sinks, viewerID)
		return
	}
	r.sinks[viewerID] = sink
}

func (r *PlaybackRegistry) dispatch(viewerID uuid.UUID, change playback.CueChange) {
	r.mu.Lock()
	sink := r.sinks[viewerID]
	r.mu.Unlock()
	if sink != nil {
		sink(change)
	}
}

func (r *PlaybackRegistry) loadVideo(ctx context.Context, viewerID, lessonID uuid.UUID) (models.VideoLesson, error) {
	return Guarded(ctx, r.guard, "video:"+viewerID.String(), func(ctx context.Context) (models.VideoLesson, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()

		lesson, err := r.lessons.FetchLessonDetail(fetchCtx, lessonID)
		if err != nil {
			return models.VideoLesson{}, &LessonDetailFetchError{LessonID: lessonID, Err: err}
		}
		video, ok := lesson.(models.VideoLesson)
		if !ok {
			return models.VideoLesson{}, &ValidationError{Fields: map[string]string{"lesson_id": "lesson is not a video"}}
		}

		if len(video.Cues) == 0 && video.MediaURL != "" {
			cues, err := r.media.LoadCues(fetchCtx, video.MediaURL)
			if err != nil {
				r.logger.Warn().Err(err).Str("lesson_id", lessonID.String()).Msg("captions unavailable")
			}
			video.Cues = cues
		}
		return video, nil
	})
}

// OpenVideo switches the viewer to lessonID. The old video's controller state is reset
// before the new cues are loaded. A backend failure does not fail the call: the state
// reports an embed fallback or an unavailable video instead.
func (r *PlaybackRegistry) OpenVideo(ctx context.Context, viewerID, lessonID uuid.UUID) (*PlaybackState, error) {
	video, err := r.loadVideo(ctx, viewerID, lessonID)
	if err != nil {
		return nil, err
	}

	source, probeErr := r.media.ProbePlayback(ctx, video.MediaURL)

	r.mu.Lock()
	vp, ok := r.viewers[viewerID]
	if !ok {
		vp = &viewerPlayback{}
		vp.ctrl = playback.NewSyncController(r.logger, func(change playback.CueChange) {
			r.dispatch(viewerID, change)
		})
		r.viewers[viewerID] = vp
	}
	prevProgress := vp.progressID
	r.mu.Unlock()

	if prevProgress != uuid.Nil {
		r.stopProgress(ctx, prevProgress, vp.ctrl.Snapshot().ElapsedSeconds)
	}

	vp.ctrl.Load(lessonID.String(), video.Cues)

	message := ""
	if probeErr != nil {
		var initErr *PlaybackInitError
		if errors.As(probeErr, &initErr) && initErr.FallbackURL != "" {
			vp.ctrl.Degrade(true)
			message = "Playing with the embedded player"
		} else {
			vp.ctrl.Degrade(false)
			source = nil
			message = "Video unavailable"
		}
		r.logger.Warn().Err(probeErr).Str("lesson_id", lessonID.String()).Msg("playback init failed")
	}

	progressID, err := r.progress.Start(ctx, viewerID, lessonID)
	if err != nil {
		r.logger.Error().Err(err).Str("lesson_id", lessonID.String()).Msg("failed to record playback start")
		progressID = uuid.Nil
	}

	r.mu.Lock()
	vp.lessonID = lessonID
	vp.title = video.Title
	vp.source = source
	vp.message = message
	vp.progressID = progressID
	r.mu.Unlock()

	return r.State(viewerID)
}

func (r *PlaybackRegistry) stopProgress(ctx context.Context, id uuid.UUID, elapsed float64) {
	if err := r.progress.Stop(ctx, id, elapsed); err != nil {
		r.logger.Error().Err(err).Str("progress_id", id.String()).Msg("failed to record playback stop")
	}
}

func (r *PlaybackRegistry) controller(viewerID uuid.UUID) (*playback.SyncController, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vp, ok := r.viewers[viewerID]
	if !ok {
		return nil, &NotFoundError{Message: "No video is open"}
	}
	return vp.ctrl, nil
}

// OnTimeUpdate applies a position reported by the player of video generation.
// Reports from a video the viewer has since switched away from are dropped, and the
// current state is returned so the client can pick up the new generation.
func (r *PlaybackRegistry) OnTimeUpdate(viewerID uuid.UUID, generation uint64, elapsed float64) (*PlaybackState, error) {
	ctrl, err := r.controller(viewerID)
	if err != nil {
		return nil, err
	}
	if !ctrl.ApplyTimeUpdate(generation, elapsed) {
		r.logStale(viewerID, generation, "time_update")
	}
	return r.State(viewerID)
}

func (r *PlaybackRegistry) OnSeek(viewerID uuid.UUID, generation uint64, target float64) (*PlaybackState, error) {
	ctrl, err := r.controller(viewerID)
	if err != nil {
		return nil, err
	}
	if !ctrl.ApplySeek(generation, target) {
		r.logStale(viewerID, generation, "seek")
	}
	return r.State(viewerID)
}

func (r *PlaybackRegistry) logStale(viewerID uuid.UUID, generation uint64, kind string) {
	r.logger.Debug().
		Str("viewer_id", viewerID.String()).
		Uint64("generation", generation).
		Str("kind", kind).
		Msg("dropped update for a previous video")
}

func (r *PlaybackRegistry) ToggleSecondaryLanguage(viewerID uuid.UUID) (*PlaybackState, error) {
	ctrl, err := r.controller(viewerID)
	if err != nil {
		return nil, err
	}
	ctrl.ToggleSecondaryLanguage()
	return r.State(viewerID)
}

// State returns the viewer's open video.
func (r *PlaybackRegistry) State(viewerID uuid.UUID) (*PlaybackState, error) {
	r.mu.Lock()
	vp, ok := r.viewers[viewerID]
	if !ok {
		r.mu.Unlock()
		return nil, &NotFoundError{Message: "No video is open"}
	}
	state := &PlaybackState{
		LessonID: vp.lessonID,
		Title:    vp.title,
		Source:   vp.source,
		Message:  vp.message,
	}
	ctrl := vp.ctrl
	r.mu.Unlock()

	state.Snapshot = ctrl.Snapshot()
	state.Unavailable = state.Source == nil
	return state, nil
}

// Close disposes the viewer's controller and records where playback stopped.
func (r *PlaybackRegistry) Close(ctx context.Context, viewerID uuid.UUID) error {
	r.mu.Lock()
	vp, ok := r.viewers[viewerID]
	delete(r.viewers, viewerID)
	r.mu.Unlock()
	if !ok {
		return &NotFoundError{Message: "No video is open"}
	}

	elapsed := vp.ctrl.Snapshot().ElapsedSeconds
	vp.ctrl.Dispose()
	if vp.progressID != uuid.Nil {
		r.stopProgress(ctx, vp.progressID, elapsed)
	}
	return nil
}

// CloseAll disposes every controller. Used on shutdown.
func (r *PlaybackRegistry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.viewers))
	for id := range r.viewers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Close(ctx, id)
	}
}
