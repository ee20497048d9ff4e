package config

// Config is the umbrella configuration object returned by Initialize and
// used throughout the gateway. Immutable after load.
type Config struct {
	configDir string // configuration directory path (for reference)

	Server       *ServerConfig
	Auth         *AuthConfig
	Redis        *RedisConfig
	LLM          *LLMConfig
	Tools        *ToolsConfig
	Defense      *DefenseConfig
	Limits       *LimitsConfig
	Confirmation *ConfirmationConfig

	// Servers is the ordered tool-server registry.
	Servers *ToolServerRegistry
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	ToolServers int
	MockLLM     bool
	RedisBacked bool
}

// Stats returns configuration statistics for startup logging.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Servers != nil {
		s.ToolServers = c.Servers.Len()
	}
	if c.LLM != nil {
		s.MockLLM = c.LLM.MockMode()
	}
	if c.Redis != nil {
		s.RedisBacked = c.Redis.URL != ""
	}
	return s
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetServer retrieves a tool-server configuration by name.
// Convenience wrapper around Servers.Get().
func (c *Config) GetServer(name string) (*ToolServer, error) {
	return c.Servers.Get(name)
}
