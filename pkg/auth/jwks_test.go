package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/aigateway/pkg/config"
)

func newTestKeySet(t *testing.T, url string, minRefresh time.Duration) *KeySet {
	t.Helper()
	return NewKeySet(&config.AuthConfig{
		JWKSURL:                url,
		JWKSRefreshInterval:    time.Minute,
		JWKSMinRefreshInterval: minRefresh,
	}, testLogger())
}

func TestKeySetRefreshFailureKeepsPreviousKeys(t *testing.T) {
	key := generateKey(t)
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		doc := jwksDocument{Keys: []jwksKey{{
			Kty: "RSA",
			Kid: "kid-1",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}}
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	ks := newTestKeySet(t, srv.URL, 0)
	require.NoError(t, ks.Refresh(context.Background()))
	require.Equal(t, 1, ks.Len())

	failing.Store(true)
	require.Error(t, ks.Refresh(context.Background()))
	assert.Equal(t, 1, ks.Len())

	got, err := ks.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestKeySetForcedRefreshPicksUpRotatedKey(t *testing.T) {
	oldKey := generateKey(t)
	newKey := generateKey(t)

	served := map[string]*rsa.PrivateKey{"kid-old": oldKey}
	srv := newJWKSServer(t, served)

	ks := newTestKeySet(t, srv.URL, 0)
	require.NoError(t, ks.Refresh(context.Background()))

	_, err := ks.Key(context.Background(), "kid-new")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	served["kid-new"] = newKey
	got, err := ks.Key(context.Background(), "kid-new")
	require.NoError(t, err)
	assert.Equal(t, newKey.PublicKey.N, got.N)
}

func TestKeySetMinRefreshIntervalLimitsForcedRefreshes(t *testing.T) {
	key := generateKey(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		doc := jwksDocument{Keys: []jwksKey{{
			Kty: "RSA",
			Kid: "kid-1",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}}
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	ks := newTestKeySet(t, srv.URL, time.Hour)
	require.NoError(t, ks.Refresh(context.Background()))
	require.Equal(t, int32(1), requests.Load())

	for i := 0; i < 5; i++ {
		_, err := ks.Key(context.Background(), "kid-unknown")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.Equal(t, int32(1), requests.Load())
}

func TestKeySetSkipsNonSigningKeys(t *testing.T) {
	key := generateKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := jwksDocument{Keys: []jwksKey{
			{Kty: "EC", Kid: "kid-ec"},
			{
				Kty: "RSA",
				Kid: "kid-enc",
				Use: "enc",
				N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			},
			{
				Kty: "RSA",
				Kid: "kid-sig",
				Use: "sig",
				N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	ks := newTestKeySet(t, srv.URL, 0)
	require.NoError(t, ks.Refresh(context.Background()))
	assert.Equal(t, 1, ks.Len())

	_, err := ks.Key(context.Background(), "kid-sig")
	assert.NoError(t, err)
}

func TestParseRSAKey(t *testing.T) {
	key := generateKey(t)
	validN := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	validE := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())

	tests := []struct {
		name    string
		key     jwksKey
		wantErr bool
	}{
		{"valid key", jwksKey{Kty: "RSA", Kid: "k", N: validN, E: validE}, false},
		{"bad modulus encoding", jwksKey{Kty: "RSA", Kid: "k", N: "!!!", E: validE}, true},
		{"bad exponent encoding", jwksKey{Kty: "RSA", Kid: "k", N: validN, E: "!!!"}, true},
		{"empty modulus", jwksKey{Kty: "RSA", Kid: "k", N: "", E: validE}, true},
		{"exponent of one", jwksKey{Kty: "RSA", Kid: "k", N: validN, E: base64.RawURLEncoding.EncodeToString([]byte{1})}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := parseRSAKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, key.PublicKey.E, pub.E)
			assert.Equal(t, 0, key.PublicKey.N.Cmp(pub.N))
		})
	}
}
