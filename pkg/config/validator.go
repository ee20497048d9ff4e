package config

import (
	"fmt"
	"net/url"
	"slices"
)

// supportedAlgorithms are the signing algorithms the verifier can handle.
var supportedAlgorithms = []string{"RS256", "RS384", "RS512"}

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateAuth(); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}

	if err := v.validateTools(); err != nil {
		return fmt.Errorf("tools validation failed: %w", err)
	}

	if err := v.validateLimits(); err != nil {
		return fmt.Errorf("limits validation failed: %w", err)
	}

	if err := v.validateToolServers(); err != nil {
		return fmt.Errorf("tool server validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "server", "port", fmt.Errorf("%w: %d", ErrInvalidValue, s.Port))
	}
	if s.RequestTimeout <= 0 {
		return NewValidationError("server", "server", "request_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.HeartbeatInterval != nil && *s.HeartbeatInterval < 0 {
		return NewValidationError("server", "server", "heartbeat_interval", fmt.Errorf("%w: must be >= 0 (0 disables)", ErrInvalidValue))
	}
	if s.DrainTimeout <= 0 {
		return NewValidationError("server", "server", "drain_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateAuth() error {
	a := v.cfg.Auth

	// In mock mode the gateway can run without an identity provider
	// (integration tests sign their own tokens against a local JWKS).
	// Production mode requires the full OIDC wiring.
	if !v.cfg.LLM.MockMode() {
		if a.Issuer == "" {
			return NewValidationError("auth", "auth", "issuer", ErrMissingRequiredField)
		}
		if a.JWKSURL == "" {
			return NewValidationError("auth", "auth", "jwks_url", ErrMissingRequiredField)
		}
		if a.ClientID == "" {
			return NewValidationError("auth", "auth", "client_id", ErrMissingRequiredField)
		}
	}

	if a.JWKSURL != "" {
		if _, err := url.ParseRequestURI(a.JWKSURL); err != nil {
			return NewValidationError("auth", "auth", "jwks_url", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
	}

	for _, alg := range a.Algorithms {
		if !slices.Contains(supportedAlgorithms, alg) {
			return NewValidationError("auth", "auth", "algorithms",
				fmt.Errorf("%w: %s (supported: %v)", ErrInvalidValue, alg, supportedAlgorithms))
		}
	}

	if a.JWKSRefreshInterval <= 0 {
		return NewValidationError("auth", "auth", "jwks_refresh_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if a.JWKSMinRefreshInterval <= 0 {
		return NewValidationError("auth", "auth", "jwks_min_refresh_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}

	return nil
}

func (v *ConfigValidator) validateLLM() error {
	l := v.cfg.LLM
	if l.APIKey == "" {
		return NewValidationError("llm", "llm", "api_key", ErrMissingRequiredField)
	}
	if l.MaxTokens < 1 {
		return NewValidationError("llm", "llm", "max_tokens", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if l.Temperature < 0 || l.Temperature > 1 {
		return NewValidationError("llm", "llm", "temperature", fmt.Errorf("%w: must be in [0, 1]", ErrInvalidValue))
	}
	if l.Timeout <= 0 {
		return NewValidationError("llm", "llm", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateTools() error {
	t := v.cfg.Tools
	if t.ReadTimeout <= 0 {
		return NewValidationError("tools", "tools", "read_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t.WriteTimeout <= 0 {
		return NewValidationError("tools", "tools", "write_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t.MaxPages < 1 {
		return NewValidationError("tools", "tools", "max_pages", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateLimits() error {
	l := v.cfg.Limits
	if l.GeneralPerMinute < 1 {
		return NewValidationError("limits", "limits", "general_per_minute", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if l.QueryPerMinute < 1 {
		return NewValidationError("limits", "limits", "query_per_minute", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateToolServers() error {
	seen := make(map[string]bool)
	for _, s := range v.cfg.Servers.All() {
		if s.Name == "" {
			return NewValidationError("tool_server", "(unnamed)", "name", ErrMissingRequiredField)
		}
		if seen[s.Name] {
			return NewValidationError("tool_server", s.Name, "name", fmt.Errorf("%w: duplicate name", ErrInvalidValue))
		}
		seen[s.Name] = true

		if s.Endpoint == "" {
			return NewValidationError("tool_server", s.Name, "endpoint", ErrMissingRequiredField)
		}
		u, err := url.ParseRequestURI(s.Endpoint)
		if err != nil || u.Host == "" {
			return NewValidationError("tool_server", s.Name, "endpoint", fmt.Errorf("%w: %s", ErrInvalidValue, s.Endpoint))
		}

		if len(s.RequiredRoles) == 0 {
			return NewValidationError("tool_server", s.Name, "required_roles",
				fmt.Errorf("%w: at least one role is required", ErrMissingRequiredField))
		}
	}
	return nil
}
