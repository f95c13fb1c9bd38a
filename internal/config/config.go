// Package config loads and validates the admissiond configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/manenim/gateway-admission/pkg/admission"
	"github.com/manenim/gateway-admission/pkg/middleware"
)

var validate = validator.New()

// Duration is a time.Duration that unmarshals from YAML strings such as
// "500ms" or "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root of the admissiond configuration file.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Policies []PolicyConfig `yaml:"policies" validate:"omitempty,dive"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// RedisConfig configures the shared counter store. An empty Addr runs the
// daemon local-only.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db" validate:"gte=0"`
	Timeout  Duration `yaml:"timeout"`
	Prefix   string   `yaml:"prefix"`
}

// SweepConfig configures local-store housekeeping.
type SweepConfig struct {
	Interval Duration `yaml:"interval"`
}

// PolicyConfig declares one rate-limit policy bound to an operation name.
type PolicyConfig struct {
	Name        string   `yaml:"name" validate:"required"`
	Window      Duration `yaml:"window" validate:"required,gt=0"`
	MaxRequests int64    `yaml:"maxRequests" validate:"required,gt=0"`
	Penalty     Duration `yaml:"penalty" validate:"gte=0"`
	Algorithm   string   `yaml:"algorithm" validate:"omitempty,oneof=fixed sliding"`

	// Per selects the identity strategy: "ip" (default) or "header:<Name>"
	// for API-key style identities.
	Per string `yaml:"per"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.setDefaults()

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	for _, p := range cfg.Policies {
		if err := validatePer(p.Per); err != nil {
			return nil, fmt.Errorf("validate config: policy %q: %w", p.Name, err)
		}
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.Timeout <= 0 {
		c.Redis.Timeout = Duration(5 * time.Second)
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "admission:"
	}
	if c.Sweep.Interval <= 0 {
		c.Sweep.Interval = Duration(30 * time.Second)
	}
}

// Registry builds the policy registry declared by the file.
func (c *Config) Registry() (*admission.Registry, error) {
	registry := admission.NewRegistry()
	for _, pc := range c.Policies {
		policy := admission.Policy{
			Name:        pc.Name,
			Window:      pc.Window.Std(),
			MaxRequests: pc.MaxRequests,
			Penalty:     pc.Penalty.Std(),
			Algorithm:   admission.Algorithm(pc.Algorithm),
		}
		if header, ok := headerPer(pc.Per); ok {
			policy.Key = middleware.HeaderKey(header)
		}
		if err := registry.Register(policy); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func validatePer(per string) error {
	if per == "" || per == "ip" {
		return nil
	}
	if header, ok := headerPer(per); ok {
		if header == "" {
			return fmt.Errorf("per: header name is required")
		}
		return nil
	}
	return fmt.Errorf("per: unknown strategy %q", per)
}

func headerPer(per string) (string, bool) {
	const prefix = "header:"
	if len(per) >= len(prefix) && per[:len(prefix)] == prefix {
		return per[len(prefix):], true
	}
	return "", false
}
