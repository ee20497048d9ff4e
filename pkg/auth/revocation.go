package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revocationKeyPrefix = "auth:revoked:"

// RevocationStore answers whether a token id (jti) has been revoked before
// its natural expiry. Entries carry a TTL matching the token's remaining
// lifetime so the store never outlives the tokens it tracks.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocationStore keeps revocations in Redis so all gateway replicas
// share one view.
type RedisRevocationStore struct {
	rdb *redis.Client
}

func NewRedisRevocationStore(rdb *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	return s.rdb.Set(ctx, revocationKeyPrefix+tokenID, "1", ttl).Err()
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revocationKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationStore is the single-replica fallback used when no Redis
// URL is configured. Reads apply lazy expiry; a background sweep reclaims
// entries for tokens that were never checked again.
type MemoryRevocationStore struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewMemoryRevocationStore(logger *slog.Logger) *MemoryRevocationStore {
	return &MemoryRevocationStore{
		logger:  logger.With("component", "revocation"),
		entries: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
	}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tokenID] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	expiry, ok := s.entries[tokenID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		s.mu.Lock()
		delete(s.entries, tokenID)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Start launches the periodic sweep of expired entries.
func (s *MemoryRevocationStore) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (s *MemoryRevocationStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryRevocationStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for id, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug("Swept expired revocations", "removed", removed)
	}
}
