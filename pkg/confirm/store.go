// Package confirm stores pending write confirmations between the two
// phases of a confirmed action: a tool server proposes, the gateway parks
// the envelope under its confirmation id, and the initiating caller has a
// short window to approve or cancel. Envelopes are read at most once.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/aigateway/pkg/models"
)

const pendingKeyPrefix = "confirm:pending:"

// Store parks confirmation envelopes for their TTL window. TakeOnce
// retrieves and deletes atomically, so concurrent confirmations of the
// same id yield the envelope to exactly one caller; the rest observe nil.
type Store interface {
	Put(ctx context.Context, env *models.ConfirmationEnvelope, ttl time.Duration) error
	TakeOnce(ctx context.Context, confirmationID string) (*models.ConfirmationEnvelope, error)
}

// RedisStore shares pending confirmations across gateway replicas. The
// take path relies on GETDEL for its atomicity.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Put(ctx context.Context, env *models.ConfirmationEnvelope, ttl time.Duration) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode confirmation envelope: %w", err)
	}
	return s.rdb.Set(ctx, pendingKeyPrefix+env.ConfirmationID, payload, ttl).Err()
}

func (s *RedisStore) TakeOnce(ctx context.Context, confirmationID string) (*models.ConfirmationEnvelope, error) {
	payload, err := s.rdb.GetDel(ctx, pendingKeyPrefix+confirmationID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env models.ConfirmationEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("failed to decode confirmation envelope: %w", err)
	}
	return &env, nil
}

type memoryEntry struct {
	env       *models.ConfirmationEnvelope
	expiresAt time.Time
}

// MemoryStore is the single-replica fallback used when no Redis URL is
// configured. Take-and-delete happens under one lock, matching GETDEL.
type MemoryStore struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]memoryEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	return &MemoryStore{
		logger:  logger.With("component", "confirm"),
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
	}
}

func (s *MemoryStore) Put(_ context.Context, env *models.ConfirmationEnvelope, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[env.ConfirmationID] = memoryEntry{env: env, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) TakeOnce(_ context.Context, confirmationID string) (*models.ConfirmationEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[confirmationID]
	if !ok {
		return nil, nil
	}
	delete(s.entries, confirmationID)
	if time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.env, nil
}

// Start launches the periodic sweep of expired envelopes.
func (s *MemoryStore) Start(ctx context.Context) {
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
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	removed := 0
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug("Swept expired confirmation envelopes", "removed", removed)
	}
}
