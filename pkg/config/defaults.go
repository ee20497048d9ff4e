package config

import "time"

// Default values applied when the YAML leaves a field unset.
const (
	DefaultPort              = 8080
	DefaultRequestTimeout    = 90 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultDrainTimeout      = 30 * time.Second

	DefaultToolReadTimeout  = 5 * time.Second
	DefaultToolWriteTimeout = 10 * time.Second
	DefaultMaxPages         = 10

	DefaultLLMTimeout   = 60 * time.Second
	DefaultLLMModel     = "claude-sonnet-4-5"
	DefaultLLMMaxTokens = 4096

	DefaultJWKSRefreshInterval    = 5 * time.Minute
	DefaultJWKSMinRefreshInterval = 30 * time.Second

	DefaultDelimiterTTL    = 30 * time.Minute
	DefaultConfirmationTTL = 300 * time.Second

	DefaultGeneralPerMinute = 500
	DefaultQueryPerMinute   = 10
)

// DefaultServerConfig returns the built-in server defaults.
// HeartbeatInterval stays nil; ServerConfig.Heartbeat resolves it.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:           DefaultPort,
		RequestTimeout: DefaultRequestTimeout,
		DrainTimeout:   DefaultDrainTimeout,
	}
}

// DefaultAuthConfig returns the built-in auth defaults. Issuer, JWKS URL
// and client id have no defaults; validation requires them.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		Algorithms:             []string{"RS256"},
		JWKSRefreshInterval:    DefaultJWKSRefreshInterval,
		JWKSMinRefreshInterval: DefaultJWKSMinRefreshInterval,
	}
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:     DefaultLLMModel,
		MaxTokens: DefaultLLMMaxTokens,
		Timeout:   DefaultLLMTimeout,
	}
}

// DefaultToolsConfig returns the built-in tool-call defaults.
func DefaultToolsConfig() *ToolsConfig {
	return &ToolsConfig{
		ReadTimeout:  DefaultToolReadTimeout,
		WriteTimeout: DefaultToolWriteTimeout,
		MaxPages:     DefaultMaxPages,
	}
}

// DefaultDefenseConfig returns the built-in prompt-defense defaults.
func DefaultDefenseConfig() *DefenseConfig {
	return &DefenseConfig{
		DelimiterTTL: DefaultDelimiterTTL,
	}
}

// DefaultLimitsConfig returns the built-in rate-limit defaults.
func DefaultLimitsConfig() *LimitsConfig {
	return &LimitsConfig{
		GeneralPerMinute: DefaultGeneralPerMinute,
		QueryPerMinute:   DefaultQueryPerMinute,
	}
}

// DefaultConfirmationConfig returns the built-in confirmation defaults.
func DefaultConfirmationConfig() *ConfirmationConfig {
	return &ConfirmationConfig{
		TTL: DefaultConfirmationTTL,
	}
}
