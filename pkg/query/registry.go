package query

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type streamEntry struct {
	cancel context.CancelFunc
	notify func()
}

// Registry tracks in-flight event streams so shutdown can notify and
// cancel them. Entries are keyed by request id.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[string]streamEntry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger.With("component", "stream_registry"),
		streams: make(map[string]streamEntry),
	}
}

// Register stores the stream's cancel function and its drain notifier.
func (r *Registry) Register(id string, cancel context.CancelFunc, notify func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[id] = streamEntry{cancel: cancel, notify: notify}
}

// Unregister removes the stream when it ends.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, id)
}

// Len returns the number of in-flight streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// DrainAll notifies every in-flight stream and cancels its request
// context. Iterates a snapshot so streams can unregister concurrently.
func (r *Registry) DrainAll() {
	r.mu.RLock()
	snapshot := make([]streamEntry, 0, len(r.streams))
	for _, entry := range r.streams {
		snapshot = append(snapshot, entry)
	}
	r.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}
	r.logger.Info("Draining in-flight streams", "count", len(snapshot))
	for _, entry := range snapshot {
		if entry.notify != nil {
			entry.notify()
		}
		entry.cancel()
	}
}

// AwaitEmpty polls until every stream has unregistered or the context
// expires. Returns true when the registry emptied in time.
func (r *Registry) AwaitEmpty(ctx context.Context) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if r.Len() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return r.Len() == 0
		case <-ticker.C:
		}
	}
}
