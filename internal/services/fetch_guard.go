package services

import (
	"context"
	"sync"
)

// FetchGuard serialises fetches per key with last-writer-wins semantics: starting a
// fetch cancels the one already in flight for that key, and a fetch that has been
// overtaken returns ErrSuperseded instead of its result.
type FetchGuard struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]*guardEntry
}

type guardEntry struct {
	gen    uint64
	cancel context.CancelFunc
}

func NewFetchGuard() *FetchGuard {
	return &FetchGuard{inflight: make(map[string]*guardEntry)}
}

func (g *FetchGuard) begin(ctx context.Context, key string) (context.Context, uint64, context.CancelFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.inflight[key]; ok {
		prev.cancel()
	}
	g.seq++
	cctx, cancel := context.WithCancel(ctx)
	g.inflight[key] = &guardEntry{gen: g.seq, cancel: cancel}
	return cctx, g.seq, cancel
}

// finish reports whether gen is still the latest fetch for key.
func (g *FetchGuard) finish(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	current, ok := g.inflight[key]
	if !ok || current.gen != gen {
		return false
	}
	delete(g.inflight, key)
	return true
}

// InFlight reports whether a fetch for key is running.
func (g *FetchGuard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[key]
	return ok
}

// Guarded runs fn as the latest fetch for key.
func Guarded[T any](ctx context.Context, g *FetchGuard, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, gen, cancel := g.begin(ctx, key)
	defer cancel()

	v, err := fn(cctx)
	if !g.finish(key, gen) {
		var zero T
		return zero, ErrSuperseded
	}
	return v, err
}
