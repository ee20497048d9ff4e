package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// yaml.v3 cannot decode human duration strings into time.Duration, so every
// section carrying durations decodes through a shadow struct with string
// fields and parses them here. Empty strings stay zero and let the defaults
// merge fill them in.

func parseDurationField(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	return d, nil
}

// UnmarshalYAML accepts human-readable durations ("90s", "5m") for the
// timeout fields.
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Port              int     `yaml:"port"`
		RequestTimeout    string  `yaml:"request_timeout"`
		HeartbeatInterval *string `yaml:"heartbeat_interval"`
		DrainTimeout      string  `yaml:"drain_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.Port = raw.Port
	var err error
	if s.RequestTimeout, err = parseDurationField("request_timeout", raw.RequestTimeout); err != nil {
		return err
	}
	if raw.HeartbeatInterval != nil {
		d, err := parseDurationField("heartbeat_interval", *raw.HeartbeatInterval)
		if err != nil {
			return err
		}
		s.HeartbeatInterval = &d
	}
	s.DrainTimeout, err = parseDurationField("drain_timeout", raw.DrainTimeout)
	return err
}

func (a *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Issuer                 string   `yaml:"issuer"`
		AdditionalIssuers      []string `yaml:"additional_issuers"`
		JWKSURL                string   `yaml:"jwks_url"`
		ClientID               string   `yaml:"client_id"`
		Algorithms             []string `yaml:"algorithms"`
		JWKSRefreshInterval    string   `yaml:"jwks_refresh_interval"`
		JWKSMinRefreshInterval string   `yaml:"jwks_min_refresh_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	a.Issuer = raw.Issuer
	a.AdditionalIssuers = raw.AdditionalIssuers
	a.JWKSURL = raw.JWKSURL
	a.ClientID = raw.ClientID
	a.Algorithms = raw.Algorithms
	var err error
	if a.JWKSRefreshInterval, err = parseDurationField("jwks_refresh_interval", raw.JWKSRefreshInterval); err != nil {
		return err
	}
	a.JWKSMinRefreshInterval, err = parseDurationField("jwks_min_refresh_interval", raw.JWKSMinRefreshInterval)
	return err
}

func (c *LLMConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		Timeout     string  `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.APIKey = raw.APIKey
	c.Model = raw.Model
	c.MaxTokens = raw.MaxTokens
	c.Temperature = raw.Temperature
	var err error
	c.Timeout, err = parseDurationField("timeout", raw.Timeout)
	return err
}

func (c *ToolsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		MaxPages     int    `yaml:"max_pages"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.MaxPages = raw.MaxPages
	var err error
	if c.ReadTimeout, err = parseDurationField("read_timeout", raw.ReadTimeout); err != nil {
		return err
	}
	c.WriteTimeout, err = parseDurationField("write_timeout", raw.WriteTimeout)
	return err
}

func (c *DefenseConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		StrictOutput        bool     `yaml:"strict_output"`
		RedactInputs        *bool    `yaml:"redact_inputs"`
		RedactOutputs       *bool    `yaml:"redact_outputs"`
		AllowedEmailDomains []string `yaml:"allowed_email_domains"`
		DelimiterTTL        string   `yaml:"delimiter_ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.StrictOutput = raw.StrictOutput
	c.RedactInputs = raw.RedactInputs
	c.RedactOutputs = raw.RedactOutputs
	c.AllowedEmailDomains = raw.AllowedEmailDomains
	var err error
	c.DelimiterTTL, err = parseDurationField("delimiter_ttl", raw.DelimiterTTL)
	return err
}

func (c *ConfirmationConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TTL string `yaml:"ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	var err error
	c.TTL, err = parseDurationField("ttl", raw.TTL)
	return err
}
