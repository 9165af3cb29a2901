// Package playback maps a continuously advancing playback position onto transcript cues.
package playback

import (
	"math"
	"sort"

	"classroom-backend/internal/models"
)

// ActiveCueIndex returns the index of the cue active at elapsed, or -1 when the list is
// empty or elapsed is before the first cue. cues must be sorted by StartSeconds.
func ActiveCueIndex(cues []models.TranscriptCue, elapsed float64) int {
	if len(cues) == 0 || math.IsNaN(elapsed) {
		return -1
	}
	// first cue starting strictly after elapsed; the one before it is active
	return sort.Search(len(cues), func(i int) bool {
		return cues[i].StartSeconds > elapsed
	}) - 1
}

// TranscriptIndex is an immutable, start-ordered view over a lesson's cues.
// It is safe to share between goroutines.
type TranscriptIndex struct {
	cues []models.TranscriptCue
}

// NewTranscriptIndex copies cues, orders them by start time and drops later cues that
// repeat an earlier start time.
func NewTranscriptIndex(cues []models.TranscriptCue) *TranscriptIndex {
	sorted := make([]models.TranscriptCue, len(cues))
	copy(sorted, cues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartSeconds < sorted[j].StartSeconds
	})

	unique := sorted[:0]
	for i, c := range sorted {
		if i > 0 && c.StartSeconds == unique[len(unique)-1].StartSeconds {
			continue
		}
		unique = append(unique, c)
	}

	return &TranscriptIndex{cues: unique}
}

func (ix *TranscriptIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.cues)
}

// Cue returns the cue at i.
func (ix *TranscriptIndex) Cue(i int) (models.TranscriptCue, bool) {
	if ix == nil || i < 0 || i >= len(ix.cues) {
		return models.TranscriptCue{}, false
	}
	return ix.cues[i], true
}

// Cues returns a copy of the ordered cue list.
func (ix *TranscriptIndex) Cues() []models.TranscriptCue {
	if ix == nil {
		return nil
	}
	out := make([]models.TranscriptCue, len(ix.cues))
	copy(out, ix.cues)
	return out
}

// Lookup finds the active cue with a binary search. Use it after any jump.
func (ix *TranscriptIndex) Lookup(elapsed float64) int {
	if ix == nil {
		return -1
	}
	return ActiveCueIndex(ix.cues, elapsed)
}

// Advance scans forward from the previously active index. It is only valid while playback
// moves forward; when elapsed is behind the cue at from it falls back to Lookup.
func (ix *TranscriptIndex) Advance(from int, elapsed float64) int {
	if ix == nil || len(ix.cues) == 0 || math.IsNaN(elapsed) {
		return -1
	}
	if from < 0 || from >= len(ix.cues) || elapsed < ix.cues[from].StartSeconds {
		return ix.Lookup(elapsed)
	}

	i := from
	for i+1 < len(ix.cues) && ix.cues[i+1].StartSeconds <= elapsed {
		i++
	}
	return i
}
