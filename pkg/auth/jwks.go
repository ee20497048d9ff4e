package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/codeready-toolchain/aigateway/pkg/config"
)

const jwksFetchTimeout = 10 * time.Second

// jwksDocument is the wire form of an RFC 7517 key set. Only RSA signing
// keys are retained; other key types are skipped.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet caches the identity provider's public signing keys and refreshes
// them in the background. Lookups for an unknown kid trigger a forced
// refresh, rate limited so a flood of bad tokens cannot hammer the
// provider.
type KeySet struct {
	url                string
	client             *http.Client
	refreshInterval    time.Duration
	minRefreshInterval time.Duration
	logger             *slog.Logger

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewKeySet creates a key set for the configured JWKS endpoint. Call
// Refresh once during startup so the first request does not pay the
// fetch latency, then Start to keep the cache warm.
func NewKeySet(cfg *config.AuthConfig, logger *slog.Logger) *KeySet {
	return &KeySet{
		url:                cfg.JWKSURL,
		client:             &http.Client{Timeout: jwksFetchTimeout},
		refreshInterval:    cfg.JWKSRefreshInterval,
		minRefreshInterval: cfg.JWKSMinRefreshInterval,
		logger:             logger.With("component", "jwks"),
		keys:               make(map[string]*rsa.PublicKey),
		stopCh:             make(chan struct{}),
	}
}

// Refresh fetches the JWKS document and swaps in the parsed keys.
// The previous key set is kept on any failure.
func (ks *KeySet) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS from %s: %w", ks.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint %s returned status %d", ks.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to parse JWKS document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			ks.logger.Warn("Skipping unparseable JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.lastRefresh = time.Now()
	ks.mu.Unlock()

	ks.logger.Debug("Refreshed JWKS key set", "keys", len(keys))
	return nil
}

// Key returns the public key for the given kid. An unknown kid forces a
// refresh before the lookup is retried, unless a refresh ran within the
// minimum refresh interval.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.RLock()
	key, ok := ks.keys[kid]
	last := ks.lastRefresh
	ks.mu.RUnlock()
	if ok {
		return key, nil
	}

	if time.Since(last) < ks.minRefreshInterval {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	if err := ks.Refresh(ctx); err != nil {
		ks.logger.Warn("Forced JWKS refresh failed", "kid", kid, "error", err)
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	ks.mu.RLock()
	key, ok = ks.keys[kid]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Len returns the number of cached keys.
func (ks *KeySet) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// LastRefresh returns the time of the last successful refresh.
func (ks *KeySet) LastRefresh() time.Time {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.lastRefresh
}

// Start launches the periodic refresh loop. Failed refreshes are logged
// and retried on the next tick; the cached keys stay usable throughout.
func (ks *KeySet) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(ks.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ks.stopCh:
				return
			case <-ticker.C:
				if err := ks.Refresh(ctx); err != nil {
					ks.logger.Warn("Periodic JWKS refresh failed", "error", err)
				}
			}
		}
	}()
	ks.logger.Info("JWKS refresher started", "url", ks.url, "interval", ks.refreshInterval)
}

// Stop terminates the refresh loop.
func (ks *KeySet) Stop() {
	ks.stopOnce.Do(func() { close(ks.stopCh) })
}

func parseRSAKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, fmt.Errorf("empty modulus or exponent")
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid public exponent %d", e)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
