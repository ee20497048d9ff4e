package config

import (
	"strings"
	"time"
)

// ServerConfig holds HTTP server and lifecycle settings.
type ServerConfig struct {
	// Port the HTTP listener binds to.
	Port int `yaml:"port"`

	// RequestTimeout is the hard budget for a whole request, including the
	// LLM streaming phase. Bounds the sum of all per-stage budgets.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// HeartbeatInterval is how often a keep-alive comment is written on an
	// open event stream. 0 disables heartbeats. Pointer so an explicit 0
	// survives the defaults merge.
	HeartbeatInterval *time.Duration `yaml:"heartbeat_interval,omitempty"`

	// DrainTimeout is how long shutdown waits for in-flight streams.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Heartbeat resolves the heartbeat interval with its default.
func (s *ServerConfig) Heartbeat() time.Duration {
	if s.HeartbeatInterval == nil {
		return DefaultHeartbeatInterval
	}
	return *s.HeartbeatInterval
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	// Issuer is the primary accepted token issuer.
	Issuer string `yaml:"issuer"`

	// AdditionalIssuers extends the accepted set for split-horizon
	// deployments where tokens are minted under another hostname.
	AdditionalIssuers []string `yaml:"additional_issuers,omitempty"`

	// JWKSURL is the public-key set endpoint of the identity provider.
	JWKSURL string `yaml:"jwks_url"`

	// ClientID is the audience this gateway accepts tokens for.
	ClientID string `yaml:"client_id"`

	// Algorithms restricts accepted signing algorithms. Defaults to RS256.
	Algorithms []string `yaml:"algorithms,omitempty"`

	// JWKSRefreshInterval is the background key-set refresh period.
	JWKSRefreshInterval time.Duration `yaml:"jwks_refresh_interval"`

	// JWKSMinRefreshInterval rate-limits forced refreshes triggered by
	// unknown key ids.
	JWKSMinRefreshInterval time.Duration `yaml:"jwks_min_refresh_interval"`
}

// RedisConfig selects the backing store for revocation records and
// confirmation envelopes. An empty URL selects the in-memory stores.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// MockCredentialPrefix marks a provider credential as test-only. With such
// a credential the LLM client synthesises responses and never calls the
// external provider.
const MockCredentialPrefix = "sk-ant-test-"

// LLMConfig holds external provider settings.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MockMode reports whether the credential carries the test prefix.
func (c *LLMConfig) MockMode() bool {
	return strings.HasPrefix(c.APIKey, MockCredentialPrefix)
}

// ToolsConfig holds tool-server call budgets and pagination limits.
type ToolsConfig struct {
	// ReadTimeout is the per-call budget for read queries.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the per-call budget for writes and confirmed executes.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxPages caps auto-pagination per tool call.
	MaxPages int `yaml:"max_pages"`
}

// DefenseConfig holds prompt-defense behaviour switches.
type DefenseConfig struct {
	// StrictOutput fails the stream on leaked instructions or internal tags
	// instead of redacting them.
	StrictOutput bool `yaml:"strict_output"`

	// RedactInputs applies PII redaction to data sent to the LLM provider.
	RedactInputs *bool `yaml:"redact_inputs,omitempty"`

	// RedactOutputs applies PII redaction to LLM output before the client.
	RedactOutputs *bool `yaml:"redact_outputs,omitempty"`

	// AllowedEmailDomains are exempt from external-email redaction.
	AllowedEmailDomains []string `yaml:"allowed_email_domains,omitempty"`

	// DelimiterTTL is the lifetime of per-session query delimiters.
	DelimiterTTL time.Duration `yaml:"delimiter_ttl"`
}

// RedactInputsEnabled resolves the pointer with its default (true).
func (c *DefenseConfig) RedactInputsEnabled() bool {
	return c.RedactInputs == nil || *c.RedactInputs
}

// RedactOutputsEnabled resolves the pointer with its default (true).
func (c *DefenseConfig) RedactOutputsEnabled() bool {
	return c.RedactOutputs == nil || *c.RedactOutputs
}

// LimitsConfig holds rate-limit windows. Buckets refill continuously at
// PerMinute/60 per second with a burst of the full per-minute quota.
type LimitsConfig struct {
	// GeneralPerMinute applies to every API route.
	GeneralPerMinute int `yaml:"general_per_minute"`

	// QueryPerMinute applies to the query endpoints on top of the general
	// limit.
	QueryPerMinute int `yaml:"query_per_minute"`
}

// ConfirmationConfig holds two-phase write settings.
type ConfirmationConfig struct {
	// TTL is how long a pending-write envelope stays confirmable.
	TTL time.Duration `yaml:"ttl"`
}

// ToolServer is one backend data server. Declaration order in the YAML
// sequence is preserved and determines fan-out and prompt-assembly order.
type ToolServer struct {
	Name          string   `yaml:"name"`
	Endpoint      string   `yaml:"endpoint"`
	RequiredRoles []string `yaml:"required_roles"`
	Description   string   `yaml:"description,omitempty"`
}

// AccessibleTo reports whether a caller holding roles may consult this
// server (at least one required role present).
func (s *ToolServer) AccessibleTo(roles []string) bool {
	for _, have := range roles {
		for _, want := range s.RequiredRoles {
			if have == want {
				return true
			}
		}
	}
	return false
}
