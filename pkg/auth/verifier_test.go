package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/aigateway/pkg/config"
)

const (
	testClientID = "ai-gateway"
	testIssuer   = "https://sso.example.com/realms/corp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// newJWKSServer serves the public halves of the given keys as a JWKS
// document. The returned map can be mutated before a refresh to simulate
// key rotation.
func newJWKSServer(t *testing.T, keys map[string]*rsa.PrivateKey) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := jwksDocument{}
		for kid, key := range keys {
			doc.Keys = append(doc.Keys, jwksKey{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                testClientID,
		"sub":                "f3b2c6d1-9a41-4f7e-8c2d-1b5e6a7f8901",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"jti":                "token-1",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"realm_access":       map[string]any{"roles": []string{"finance-analyst", "employee"}},
	}
}

func newTestVerifier(t *testing.T, jwksURL string) *Verifier {
	t.Helper()
	cfg := &config.AuthConfig{
		Issuer:                 testIssuer,
		JWKSURL:                jwksURL,
		ClientID:               testClientID,
		Algorithms:             []string{"RS256"},
		JWKSRefreshInterval:    time.Minute,
		JWKSMinRefreshInterval: 0,
	}
	ks := NewKeySet(cfg, testLogger())
	require.NoError(t, ks.Refresh(context.Background()))
	return NewVerifier(cfg, ks, testLogger())
}

func TestVerifyValidToken(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"kid-1": key})
	v := newTestVerifier(t, srv.URL)

	claims := baseClaims()
	claims["resource_access"] = map[string]any{
		testClientID: map[string]any{"roles": []string{"employee", "query-user"}},
		"other-app":  map[string]any{"roles": []string{"other-role"}},
	}
	claims["groups"] = []string{"/Everyone", "/Finance-Department"}

	caller, err := v.Verify(context.Background(), signToken(t, key, "kid-1", claims))
	require.NoError(t, err)

	assert.Equal(t, "f3b2c6d1-9a41-4f7e-8c2d-1b5e6a7f8901", caller.UserID)
	assert.Equal(t, "jdoe", caller.Username)
	assert.Equal(t, "jdoe@example.com", caller.Email)
	assert.Equal(t, []string{"finance-analyst", "employee", "query-user"}, caller.Roles)
	assert.Equal(t, "Finance", caller.DepartmentCode)
	assert.Equal(t, "token-1", caller.TokenID)
}

func TestVerifyRejections(t *testing.T) {
	key := generateKey(t)
	otherKey := generateKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"kid-1": key})
	v := newTestVerifier(t, srv.URL)

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "garbage string",
			token:   func(t *testing.T) string { return "not-a-jwt" },
			wantErr: ErrTokenMalformed,
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["exp"] = time.Now().Add(-time.Hour).Unix()
				return signToken(t, key, "kid-1", claims)
			},
			wantErr: ErrTokenExpired,
		},
		{
			name: "signed with wrong key",
			token: func(t *testing.T) string {
				return signToken(t, otherKey, "kid-1", baseClaims())
			},
			wantErr: ErrBadSignature,
		},
		{
			name: "unknown issuer",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["iss"] = "https://evil.example.com/realms/corp"
				return signToken(t, key, "kid-1", claims)
			},
			wantErr: ErrIssuerMismatch,
		},
		{
			name: "audience is only the default account",
			token: func(t *testing.T) string {
				claims := baseClaims()
				claims["aud"] = "account"
				return signToken(t, key, "kid-1", claims)
			},
			wantErr: ErrAudienceMismatch,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				claims := baseClaims()
				delete(claims, "sub")
				return signToken(t, key, "kid-1", claims)
			},
			wantErr: ErrTokenMalformed,
		},
		{
			name: "unknown kid",
			token: func(t *testing.T) string {
				return signToken(t, key, "kid-rotated-away", baseClaims())
			},
			wantErr: ErrKeyNotFound,
		},
		{
			name: "missing kid header",
			token: func(t *testing.T) string {
				return signToken(t, key, "", baseClaims())
			},
			wantErr: ErrKeyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyRejectsHMACToken(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"kid-1": key})
	v := newTestVerifier(t, srv.URL)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims())
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyIssuerPortNormalization(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"kid-1": key})
	v := newTestVerifier(t, srv.URL)

	claims := baseClaims()
	claims["iss"] = "https://sso.example.com:443/realms/corp"

	caller, err := v.Verify(context.Background(), signToken(t, key, "kid-1", claims))
	require.NoError(t, err)
	assert.Equal(t, "jdoe", caller.Username)
}

func TestVerifyIntegrationRunnerAudience(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"kid-1": key})
	v := newTestVerifier(t, srv.URL)

	claims := baseClaims()
	claims["aud"] = []string{"account", integrationRunnerAudience}

	_, err := v.Verify(context.Background(), signToken(t, key, "kid-1", claims))
	require.NoError(t, err)
}

func TestVerifyUsernameFallbacks(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, map[string]*rsa.PrivateKey{"kid-1": key})
	v := newTestVerifier(t, srv.URL)

	tests := []struct {
		name         string
		mutate       func(claims jwt.MapClaims)
		wantUsername string
	}{
		{
			name:         "preferred_username wins",
			mutate:       func(claims jwt.MapClaims) { claims["name"] = "Jane Doe" },
			wantUsername: "jdoe",
		},
		{
			name: "falls back to name",
			mutate: func(claims jwt.MapClaims) {
				delete(claims, "preferred_username")
				claims["name"] = "Jane Doe"
			},
			wantUsername: "Jane Doe",
		},
		{
			name: "falls back to given_name",
			mutate: func(claims jwt.MapClaims) {
				delete(claims, "preferred_username")
				claims["given_name"] = "Jane"
			},
			wantUsername: "Jane",
		},
		{
			name: "falls back to subject prefix",
			mutate: func(claims jwt.MapClaims) {
				delete(claims, "preferred_username")
			},
			wantUsername: "user-f3b2c6d1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := baseClaims()
			tt.mutate(claims)
			caller, err := v.Verify(context.Background(), signToken(t, key, "kid-1", claims))
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsername, caller.Username)
		})
	}
}

func TestNormalizeIssuer(t *testing.T) {
	tests := []struct {
		name   string
		issuer string
		want   string
	}{
		{"https default port stripped", "https://sso.example.com:443/realms/corp", "https://sso.example.com/realms/corp"},
		{"http default port stripped", "http://sso.example.com:80/realms/corp", "http://sso.example.com/realms/corp"},
		{"non-default port kept", "https://sso.example.com:8443/realms/corp", "https://sso.example.com:8443/realms/corp"},
		{"no port unchanged", "https://sso.example.com/realms/corp", "https://sso.example.com/realms/corp"},
		{"not a url unchanged", "corp-issuer", "corp-issuer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeIssuer(tt.issuer))
		})
	}
}

func TestMergeRolesDeduplicates(t *testing.T) {
	merged := mergeRoles(
		[]string{"employee", "finance-analyst", "employee"},
		[]string{"finance-analyst", "query-user", ""},
	)
	assert.Equal(t, []string{"employee", "finance-analyst", "query-user"}, merged)
}

func TestDepartmentFromGroups(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"first department group wins", []string{"/Everyone", "/HR-Department", "/Finance-Department"}, "HR"},
		{"no department group", []string{"/Everyone", "/Admins"}, ""},
		{"suffix without leading slash ignored", []string{"Finance-Department"}, ""},
		{"nil groups", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, departmentFromGroups(tt.groups))
		})
	}
}
