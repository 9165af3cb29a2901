package playback

import (
	"math"
	"sync"

	"github.com/rs/zerolog"

	"classroom-backend/internal/models"
)

// CueChange is emitted whenever the active cue or the language flag changes.
type CueChange struct {
	VideoID       string                `json:"video_id"`
	Generation    uint64                `json:"generation"`
	Index         int                   `json:"index"`
	Cue           *models.TranscriptCue `json:"cue"`
	ShowSecondary bool                  `json:"show_secondary"`
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	VideoID        string                `json:"video_id"`
	Generation     uint64                `json:"generation"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	ActiveIndex    int                   `json:"active_index"`
	ActiveCue      *models.TranscriptCue `json:"active_cue"`
	CueCount       int                   `json:"cue_count"`
	ShowSecondary  bool                  `json:"show_secondary"`
	SyncEnabled    bool                  `json:"sync_enabled"`
	Degraded       bool                  `json:"degraded"`
}

// SyncController owns the playback position and active cue of one viewer's video.
// Each Load starts a new generation; updates tagged with an older generation are dropped.
type SyncController struct {
	mu            sync.Mutex
	videoID       string
	index         *TranscriptIndex
	elapsed       float64
	active        int
	showSecondary bool
	syncEnabled   bool
	degraded      bool
	generation    uint64

	onChange func(CueChange)
	logger   zerolog.Logger
}

// NewSyncController returns an idle controller. onChange may be nil; it is called
// without the controller lock held.
func NewSyncController(logger zerolog.Logger, onChange func(CueChange)) *SyncController {
	return &SyncController{
		active:   -1,
		onChange: onChange,
		logger:   logger.With().Str("component", "playback").Logger(),
	}
}

// Load switches to a new video. The previous cue list is discarded before the new one
// is installed and the position restarts at 0.
func (c *SyncController) Load(videoID string, cues []models.TranscriptCue) uint64 {
	index := NewTranscriptIndex(cues)

	c.mu.Lock()
	c.generation++
	c.videoID = videoID
	c.index = index
	c.elapsed = 0
	c.syncEnabled = true
	c.degraded = false
	c.active = c.index.Lookup(0)
	change := c.changeLocked()
	gen := c.generation
	c.mu.Unlock()

	c.logger.Debug().Str("video_id", videoID).Uint64("generation", gen).Int("cues", index.Len()).Msg("video loaded")
	c.emit(change)
	return gen
}

// OnTimeUpdate applies a position reported by the playing video. Forward movement uses
// the incremental scan; repeating the same position is a no-op.
func (c *SyncController) OnTimeUpdate(elapsed float64) {
	c.mu.Lock()
	change, changed := c.applyLocked(elapsed, false)
	c.mu.Unlock()

	if changed {
		c.emit(change)
	}
}

// ApplyTimeUpdate is OnTimeUpdate for a position reported against a specific video
// generation. It reports false when the update was stale and ignored.
func (c *SyncController) ApplyTimeUpdate(generation uint64, elapsed float64) bool {
	return c.applyTagged(generation, elapsed, false)
}

// ApplySeek is OnSeek tagged with a video generation.
func (c *SyncController) ApplySeek(generation uint64, target float64) bool {
	return c.applyTagged(generation, target, true)
}

func (c *SyncController) applyTagged(generation uint64, elapsed float64, seek bool) bool {
	c.mu.Lock()
	if generation != c.generation || c.index == nil {
		c.mu.Unlock()
		return false
	}
	change, changed := c.applyLocked(elapsed, seek)
	c.mu.Unlock()

	if changed {
		c.emit(change)
	}
	return true
}

// OnSeek jumps to target. The active cue is always recomputed with a full lookup.
func (c *SyncController) OnSeek(target float64) {
	c.mu.Lock()
	change, changed := c.applyLocked(target, true)
	c.mu.Unlock()

	if changed {
		c.emit(change)
	}
}

// ToggleSecondaryLanguage flips whether the secondary text is shown and returns the new value.
func (c *SyncController) ToggleSecondaryLanguage() bool {
	c.mu.Lock()
	c.showSecondary = !c.showSecondary
	show := c.showSecondary
	var change *CueChange
	if c.index != nil {
		change = c.changeLocked()
	}
	c.mu.Unlock()

	c.emit(change)
	return show
}

// Degrade marks the video backend as failed. With externalUpdates the controller keeps
// syncing from externally reported positions (e.g. an embedded fallback player);
// without them cue sync is switched off and no cue is active.
func (c *SyncController) Degrade(externalUpdates bool) {
	c.mu.Lock()
	c.degraded = true
	c.syncEnabled = externalUpdates
	var change *CueChange
	if !externalUpdates && c.active != -1 {
		c.active = -1
		change = c.changeLocked()
	}
	c.mu.Unlock()

	c.logger.Warn().Str("video_id", c.VideoID()).Bool("external_updates", externalUpdates).Msg("playback degraded")
	c.emit(change)
}

// Dispose forgets the current video. Pending updates for it are dropped afterwards.
func (c *SyncController) Dispose() {
	c.mu.Lock()
	c.generation++
	c.videoID = ""
	c.index = nil
	c.elapsed = 0
	c.active = -1
	c.syncEnabled = false
	c.degraded = false
	c.mu.Unlock()
}

func (c *SyncController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		VideoID:        c.videoID,
		Generation:     c.generation,
		ElapsedSeconds: c.elapsed,
		ActiveIndex:    c.active,
		CueCount:       c.index.Len(),
		ShowSecondary:  c.showSecondary,
		SyncEnabled:    c.syncEnabled,
		Degraded:       c.degraded,
	}
	if cue, ok := c.index.Cue(c.active); ok {
		snap.ActiveCue = &cue
	}
	return snap
}

func (c *SyncController) VideoID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoID
}

func (c *SyncController) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *SyncController) applyLocked(elapsed float64, seek bool) (*CueChange, bool) {
	if c.index == nil || math.IsNaN(elapsed) || math.IsInf(elapsed, 0) {
		return nil, false
	}

	previous := c.elapsed
	c.elapsed = elapsed
	if !c.syncEnabled {
		return nil, false
	}

	next := c.active
	switch {
	case seek || elapsed < previous:
		next = c.index.Lookup(elapsed)
	case elapsed > previous:
		next = c.index.Advance(c.active, elapsed)
	}

	if next == c.active {
		return nil, false
	}
	c.active = next
	return c.changeLocked(), true
}

func (c *SyncController) changeLocked() *CueChange {
	change := &CueChange{
		VideoID:       c.videoID,
		Generation:    c.generation,
		Index:         c.active,
		ShowSecondary: c.showSecondary,
	}
	if cue, ok := c.index.Cue(c.active); ok {
		change.Cue = &cue
	}
	return change
}

func (c *SyncController) emit(change *CueChange) {
	if change == nil || c.onChange == nil {
		return
	}
	c.onChange(*change)
}
