package defense

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Static fallback pair used when a request carries no session id.
const (
	staticOpenTag  = "<user_query>"
	staticCloseTag = "</user_query>"
)

// Delimiters is a pair of tags wrapping user-supplied query text inside
// LLM prompts, so injected text cannot masquerade as instructions.
type Delimiters struct {
	Open  string
	Close string
}

// Static reports whether this is the fallback pair.
func (d Delimiters) Static() bool { return d.Open == staticOpenTag }

type delimiterEntry struct {
	pair     Delimiters
	lastUsed time.Time
}

// delimiterCache hands out one random delimiter pair per session id and
// keeps it stable while the session stays active. Entries are evicted
// after a TTL of silence. Generation is guarded by the cache mutex, so
// two concurrent requests for the same session observe the same pair.
type delimiterCache struct {
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*delimiterEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newDelimiterCache(ttl time.Duration, logger *slog.Logger) *delimiterCache {
	return &delimiterCache{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*delimiterEntry),
		stopCh:  make(chan struct{}),
	}
}

func (c *delimiterCache) get(sessionID string) Delimiters {
	if sessionID == "" {
		return Delimiters{Open: staticOpenTag, Close: staticCloseTag}
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[sessionID]; ok && now.Sub(entry.lastUsed) < c.ttl {
		entry.lastUsed = now
		return entry.pair
	}

	pair, err := randomPair()
	if err != nil {
		c.logger.Error("Failed to generate session delimiters, using static pair", "error", err)
		return Delimiters{Open: staticOpenTag, Close: staticCloseTag}
	}
	c.entries[sessionID] = &delimiterEntry{pair: pair, lastUsed: now}
	return pair
}

// randomPair derives tags of the form <query_{16 hex}> from a
// cryptographic random source.
func randomPair() (Delimiters, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return Delimiters{}, err
	}
	suffix := hex.EncodeToString(buf)
	return Delimiters{
		Open:  "<query_" + suffix + ">",
		Close: "</query_" + suffix + ">",
	}, nil
}

func (c *delimiterCache) start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.evictStale()
			}
		}
	}()
}

func (c *delimiterCache) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *delimiterCache) evictStale() {
	now := time.Now()
	c.mu.Lock()
	removed := 0
	for id, entry := range c.entries {
		if now.Sub(entry.lastUsed) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.logger.Debug("Evicted stale session delimiters", "removed", removed)
	}
}
