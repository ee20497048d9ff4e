package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a configuration that passes every check; tests break
// one field at a time.
func validConfig() *Config {
	cfg, err := Resolve("", &GatewayYAMLConfig{
		LLM: &LLMConfig{APIKey: "sk-ant-test-local"},
		ToolServers: []*ToolServer{
			{Name: "hr", Endpoint: "http://hr:8000", RequiredRoles: []string{"hr-read"}},
			{Name: "finance", Endpoint: "http://finance:8000", RequiredRoles: []string{"finance-read"}},
		},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestValidateAllAcceptsValidConfig(t *testing.T) {
	require.NoError(t, NewValidator(validConfig()).ValidateAll())
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		wantContains string
	}{
		{
			name:         "port out of range",
			mutate:       func(c *Config) { c.Server.Port = 70000 },
			wantContains: "port",
		},
		{
			name:         "zero request timeout",
			mutate:       func(c *Config) { c.Server.RequestTimeout = 0 },
			wantContains: "request_timeout",
		},
		{
			name:         "zero drain timeout",
			mutate:       func(c *Config) { c.Server.DrainTimeout = 0 },
			wantContains: "drain_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}

func TestValidateAuthRequiredInProductionMode(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = "sk-ant-api03-realkey" // not the test prefix

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer")
}

func TestValidateAuthOptionalInMockMode(t *testing.T) {
	cfg := validConfig() // mock credential, no issuer configured
	require.NoError(t, NewValidator(cfg).ValidateAll())
}

func TestValidateAuthRejectsUnsupportedAlgorithm(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Algorithms = []string{"HS256"}

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HS256")
}

func TestValidateLLM(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*Config)
		wantContains string
	}{
		{
			name:         "missing api key",
			mutate:       func(c *Config) { c.LLM.APIKey = "" },
			wantContains: "api_key",
		},
		{
			name:         "zero max tokens",
			mutate:       func(c *Config) { c.LLM.MaxTokens = 0 },
			wantContains: "max_tokens",
		},
		{
			name:         "temperature out of range",
			mutate:       func(c *Config) { c.LLM.Temperature = 1.5 },
			wantContains: "temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}

func TestValidateToolServers(t *testing.T) {
	tests := []struct {
		name         string
		servers      []*ToolServer
		wantContains string
	}{
		{
			name: "duplicate name",
			servers: []*ToolServer{
				{Name: "hr", Endpoint: "http://a:1", RequiredRoles: []string{"r"}},
				{Name: "hr", Endpoint: "http://b:1", RequiredRoles: []string{"r"}},
			},
			wantContains: "duplicate",
		},
		{
			name: "missing endpoint",
			servers: []*ToolServer{
				{Name: "hr", RequiredRoles: []string{"r"}},
			},
			wantContains: "endpoint",
		},
		{
			name: "endpoint without host",
			servers: []*ToolServer{
				{Name: "hr", Endpoint: "not-a-url", RequiredRoles: []string{"r"}},
			},
			wantContains: "endpoint",
		},
		{
			name: "no required roles",
			servers: []*ToolServer{
				{Name: "hr", Endpoint: "http://hr:8000"},
			},
			wantContains: "required_roles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Servers = NewToolServerRegistry(tt.servers)
			err := NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}

func TestMockModeDetection(t *testing.T) {
	assert.True(t, (&LLMConfig{APIKey: "sk-ant-test-anything"}).MockMode())
	assert.False(t, (&LLMConfig{APIKey: "sk-ant-api03-real"}).MockMode())
	assert.False(t, (&LLMConfig{APIKey: ""}).MockMode())
}
