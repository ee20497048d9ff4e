package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/aigateway/pkg/auth"
	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/confirm"
	"github.com/codeready-toolchain/aigateway/pkg/defense"
	"github.com/codeready-toolchain/aigateway/pkg/llm"
	"github.com/codeready-toolchain/aigateway/pkg/query"
	"github.com/codeready-toolchain/aigateway/pkg/ratelimit"
	"github.com/codeready-toolchain/aigateway/pkg/tools"
)

const (
	testIssuer   = "https://sso.example.com/realms/corp"
	testClientID = "ai-gateway"
	testKeyID    = "gateway-test-key-1"
	testUserID   = "f3b2c6d1-9a41-4f7e-8c2d-1b5e6a7f8901"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// newJWKSServer serves a single-key RFC 7517 document for the given key.
func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func apiClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                testClientID,
		"sub":                testUserID,
		"exp":                time.Now().Add(time.Hour).Unix(),
		"jti":                "token-1",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"realm_access":       map[string]any{"roles": []any{"hr-read", "employee"}},
	}
}

func signAPIToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

type gatewayOptions struct {
	generalPerMinute int
	queryPerMinute   int
	toolReadTimeout  time.Duration
	revocations      auth.RevocationStore
	skipKeyRefresh   bool
}

type testGateway struct {
	srv           *Server
	key           *rsa.PrivateKey
	revocations   *auth.MemoryRevocationStore
	confirmations *confirm.MemoryStore
}

// newTestGateway assembles a full server: real verifier against a local
// JWKS endpoint, in-memory revocation and confirmation stores, and the
// mock LLM client.
func newTestGateway(t *testing.T, servers []*config.ToolServer, opt gatewayOptions) *testGateway {
	t.Helper()
	if opt.generalPerMinute == 0 {
		opt.generalPerMinute = 600
	}
	if opt.queryPerMinute == 0 {
		opt.queryPerMinute = 600
	}
	if opt.toolReadTimeout == 0 {
		opt.toolReadTimeout = time.Second
	}

	key := generateTestKey(t)
	jwks := newJWKSServer(t, key)

	heartbeat := time.Duration(0)
	cfg := &config.Config{
		Server: &config.ServerConfig{
			Port:              8080,
			RequestTimeout:    5 * time.Second,
			HeartbeatInterval: &heartbeat,
			DrainTimeout:      time.Second,
		},
		Auth: &config.AuthConfig{
			Issuer:                 testIssuer,
			JWKSURL:                jwks.URL,
			ClientID:               testClientID,
			Algorithms:             []string{"RS256"},
			JWKSRefreshInterval:    time.Minute,
			JWKSMinRefreshInterval: time.Second,
		},
		LLM: &config.LLMConfig{
			APIKey:    "sk-ant-test-local",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
			Timeout:   30 * time.Second,
		},
		Tools:        &config.ToolsConfig{ReadTimeout: opt.toolReadTimeout, WriteTimeout: 2 * time.Second, MaxPages: 10},
		Defense:      &config.DefenseConfig{DelimiterTTL: 30 * time.Minute},
		Limits:       &config.LimitsConfig{GeneralPerMinute: opt.generalPerMinute, QueryPerMinute: opt.queryPerMinute},
		Confirmation: &config.ConfirmationConfig{TTL: 5 * time.Minute},
		Servers:      config.NewToolServerRegistry(servers),
	}

	logger := testLogger()
	keys := auth.NewKeySet(cfg.Auth, logger)
	if !opt.skipKeyRefresh {
		require.NoError(t, keys.Refresh(context.Background()))
	}
	verifier := auth.NewVerifier(cfg.Auth, keys, logger)
	memRevocations := auth.NewMemoryRevocationStore(logger)
	revocations := opt.revocations
	if revocations == nil {
		revocations = memRevocations
	}
	toolClient := tools.NewClient(cfg.Tools, logger)
	confirmations := confirm.NewMemoryStore(logger)
	orchestrator := query.NewOrchestrator(cfg, toolClient, defense.NewService(cfg.Defense, logger),
		llm.NewMockClient(logger), confirmations, query.NewSlogSink(logger), query.NewRegistry(logger), logger)

	srv := NewServer(cfg, verifier, keys, revocations, orchestrator, toolClient, confirmations,
		ratelimit.New(cfg.Limits.GeneralPerMinute, logger), ratelimit.New(cfg.Limits.QueryPerMinute, logger),
		nil, logger)

	return &testGateway{srv: srv, key: key, revocations: memRevocations, confirmations: confirmations}
}

func (g *testGateway) token(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := apiClaims()
	if mutate != nil {
		mutate(claims)
	}
	return signAPIToken(t, g.key, claims)
}

func (g *testGateway) request(method, target, body, token string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (g *testGateway) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.srv.ServeHTTP(rec, req)
	return rec
}

// newToolBackend starts a stub tool server and registers its shutdown.
func newToolBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func employeeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return newToolBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","data":[{"name":"Alice Smith","title":"HR Manager"}]}`))
	})
}

func hrServers(endpoint string) []*config.ToolServer {
	return []*config.ToolServer{{
		Name:          "hr-server",
		Endpoint:      endpoint,
		RequiredRoles: []string{"hr-read"},
		Description:   "Employee records",
	}}
}

// sseDataLines extracts the payload of every data frame in an SSE body.
func sseDataLines(body string) []string {
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

// sseText joins the text of all text events in an SSE body.
func sseText(t *testing.T, body string) string {
	t.Helper()
	var b strings.Builder
	for _, line := range sseDataLines(body) {
		if line == "[DONE]" {
			continue
		}
		var ev struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "frame %q", line)
		if ev.Type == "text" {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestAuthGateRejectsMissingToken(t *testing.T) {
	g := newTestGateway(t, nil, gatewayOptions{})

	rec := g.do(g.request(http.MethodPost, "/api/query", `{"query":"hello"}`, ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication required")
}

func TestAuthGateRejectsMalformedToken(t *testing.T) {
	g := newTestGateway(t, nil, gatewayOptions{})

	req := g.request(http.MethodPost, "/api/query", `{"query":"hello"}`, "")
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := g.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthGateRejectsExpiredToken(t *testing.T) {
	g := newTestGateway(t, nil, gatewayOptions{})

	token := g.token(t, func(claims jwt.MapClaims) {
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
	})
	rec := g.do(g.request(http.MethodPost, "/api/query", `{"query":"hello"}`, token))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestAuthGateRejectsWrongAudience(t *testing.T) {
	g := newTestGateway(t, nil, gatewayOptions{})

	token := g.token(t, func(claims jwt.MapClaims) {
		claims["aud"] = "some-other-app"
	})
	rec := g.do(g.request(http.MethodPost, "/api/query", `{"query":"hello"}`, token))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "audience")
}

func TestAuthGateRejectsRevokedToken(t *testing.T) {
	g := newTestGateway(t, nil, gatewayOptions{})
	require.NoError(t, g.revocations.Revoke(context.Background(), "token-1", time.Hour))

	rec := g.do(g.request(http.MethodPost, "/api/query", `{"query":"hello"}`, g.token(t, nil)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoked")
}

type failingRevocationStore struct{}

func (failingRevocationStore) Revoke(context.Context, string, time.Duration) error {
	return errors.New("store down")
}

func (failingRevocationStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func TestAuthGateFailsOpenOnRevocationStoreError(t *testing.T) {
	backend := employeeBackend(t)
	g := newTestGateway(t, hrServers(backend.URL), gatewayOptions{revocations: failingRevocationStore{}})

	rec := g.do(g.request(http.MethodPost, "/api/query", `{"query":"who is the HR manager?"}`, g.token(t, nil)))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthGateAcceptsQueryParamToken(t *testing.T) {
	backend := employeeBackend(t)
	g := newTestGateway(t, hrServers(backend.URL), gatewayOptions{})

	target := "/api/query?q=who+is+the+HR+manager%3F&token=" + g.token(t, nil)
	rec := g.do(g.request(http.MethodGet, target, "", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	lines := sseDataLines(rec.Body.String())
	require.NotEmpty(t, lines)
	assert.Equal(t, "[DONE]", lines[len(lines)-1])
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "standard", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "surrounding whitespace", header: "Bearer   abc.def.ghi  ", want: "abc.def.ghi"},
		{name: "missing header", header: "", want: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "scheme only", header: "Bearer ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, bearerToken(req))
		})
	}
}
