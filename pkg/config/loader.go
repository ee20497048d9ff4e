package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// GatewayYAMLConfig represents the complete gateway.yaml file structure.
type GatewayYAMLConfig struct {
	Server       *ServerConfig       `yaml:"server"`
	Auth         *AuthConfig         `yaml:"auth"`
	Redis        *RedisConfig        `yaml:"redis"`
	LLM          *LLMConfig          `yaml:"llm"`
	Tools        *ToolsConfig        `yaml:"tools"`
	Defense      *DefenseConfig      `yaml:"defense"`
	Limits       *LimitsConfig       `yaml:"limits"`
	Confirmation *ConfirmationConfig `yaml:"confirmation"`
	ToolServers  []*ToolServer       `yaml:"tool_servers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load gateway.yaml from configDir
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML into structs
//  4. Merge user values over built-in defaults
//  5. Build the tool-server registry (declaration order preserved)
//  6. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"tool_servers", stats.ToolServers,
		"mock_llm", stats.MockLLM,
		"redis_backed", stats.RedisBacked)

	return cfg, nil
}

// load is the internal loader (not exported).
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadGatewayYAML()
	if err != nil {
		return nil, NewLoadError("gateway.yaml", err)
	}

	return Resolve(configDir, yamlCfg)
}

// Resolve merges the parsed YAML over built-in defaults and builds the
// registry. Exposed so tests can construct configurations without files.
func Resolve(configDir string, yamlCfg *GatewayYAMLConfig) (*Config, error) {
	cfg := &Config{
		configDir:    configDir,
		Server:       DefaultServerConfig(),
		Auth:         DefaultAuthConfig(),
		Redis:        &RedisConfig{},
		LLM:          DefaultLLMConfig(),
		Tools:        DefaultToolsConfig(),
		Defense:      DefaultDefenseConfig(),
		Limits:       DefaultLimitsConfig(),
		Confirmation: DefaultConfirmationConfig(),
	}

	// Merge user-provided sections into the defaults. Non-zero user values
	// override; unset values keep the defaults.
	if yamlCfg.Server != nil {
		if err := mergo.Merge(cfg.Server, yamlCfg.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	if yamlCfg.Auth != nil {
		if err := mergo.Merge(cfg.Auth, yamlCfg.Auth, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge auth config: %w", err)
		}
	}
	if yamlCfg.Redis != nil {
		cfg.Redis = yamlCfg.Redis
	}
	if yamlCfg.LLM != nil {
		if err := mergo.Merge(cfg.LLM, yamlCfg.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}
	if yamlCfg.Tools != nil {
		if err := mergo.Merge(cfg.Tools, yamlCfg.Tools, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge tools config: %w", err)
		}
	}
	if yamlCfg.Defense != nil {
		if err := mergo.Merge(cfg.Defense, yamlCfg.Defense, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defense config: %w", err)
		}
	}
	if yamlCfg.Limits != nil {
		if err := mergo.Merge(cfg.Limits, yamlCfg.Limits, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge limits config: %w", err)
		}
	}
	if yamlCfg.Confirmation != nil {
		if err := mergo.Merge(cfg.Confirmation, yamlCfg.Confirmation, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge confirmation config: %w", err)
		}
	}

	cfg.Servers = NewToolServerRegistry(yamlCfg.ToolServers)

	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser produce the clearer error message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadGatewayYAML() (*GatewayYAMLConfig, error) {
	var config GatewayYAMLConfig
	if err := l.loadYAML("gateway.yaml", &config); err != nil {
		return nil, err
	}
	return &config, nil
}
