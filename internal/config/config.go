// Package config loads and persists the mall CLI configuration: named profiles
// (backend URL plus the stored token pair), defaults, token-store selection,
// logging and HTTP settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProfile = "default"
	DefaultBaseURL = "http://127.0.0.1:8000/api"

	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// ErrProfileNotFound is returned when a named profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

type Config struct {
	CurrentProfile string              `yaml:"current_profile" mapstructure:"current_profile"`
	Profiles       map[string]*Profile `yaml:"profiles" mapstructure:"profiles"`
	Defaults       *Defaults           `yaml:"defaults" mapstructure:"defaults"`
	TokenStore     TokenStoreConfig    `yaml:"token_store" mapstructure:"token_store"`
	Logging        LoggingConfig       `yaml:"logging" mapstructure:"logging"`
	HTTP           HTTPConfig          `yaml:"http" mapstructure:"http"`

	path string
	mu   sync.Mutex
}

// Profile holds the backend URL and persisted session tokens for one account.
type Profile struct {
	BaseURL      string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	AccessToken  string `yaml:"access_token,omitempty" mapstructure:"access_token"`
	RefreshToken string `yaml:"refresh_token,omitempty" mapstructure:"refresh_token"`
}

type Defaults struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// TokenStoreConfig selects where access/refresh tokens are persisted.
type TokenStoreConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // "file" (default), "redis" or "memory"
	RedisURL  string `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	KeyPrefix string `yaml:"key_prefix,omitempty" mapstructure:"key_prefix"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		CurrentProfile: DefaultProfile,
		Profiles:       make(map[string]*Profile),
		Defaults: &Defaults{
			BaseURL: DefaultBaseURL,
		},
		TokenStore: TokenStoreConfig{
			Backend:   StoreFile,
			KeyPrefix: "mall",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// DefaultPath returns $MALL_CONFIG_DIR/config.yaml, falling back to ~/.mall/config.yaml.
func DefaultPath() (string, error) {
	configDir := os.Getenv("MALL_CONFIG_DIR")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		configDir = filepath.Join(home, ".mall")
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// Load reads the config file at cfgFile (or the default path) and applies
// MALL_* environment overrides. A missing file yields the defaults.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	v := viper.New()
	def := Default()
	v.SetDefault("current_profile", def.CurrentProfile)
	v.SetDefault("defaults.base_url", def.Defaults.BaseURL)
	v.SetDefault("token_store.backend", def.TokenStore.Backend)
	v.SetDefault("token_store.key_prefix", def.TokenStore.KeyPrefix)
	v.SetDefault("token_store.redis_url", "")
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("http.timeout", def.HTTP.Timeout)

	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Nested keys need explicit bindings
	_ = v.BindEnv("defaults.base_url", "MALL_BASE_URL", "MALL_DEFAULTS_BASE_URL")
	_ = v.BindEnv("token_store.backend", "MALL_TOKEN_STORE", "MALL_TOKEN_STORE_BACKEND")
	_ = v.BindEnv("token_store.redis_url", "MALL_REDIS_URL", "MALL_TOKEN_STORE_REDIS_URL")
	_ = v.BindEnv("token_store.key_prefix", "MALL_TOKEN_STORE_KEY_PREFIX")
	_ = v.BindEnv("logging.level", "MALL_LOG_LEVEL", "MALL_LOGGING_LEVEL")
	_ = v.BindEnv("logging.format", "MALL_LOG_FORMAT", "MALL_LOGGING_FORMAT")
	_ = v.BindEnv("http.timeout", "MALL_HTTP_TIMEOUT")

	if _, err := os.Stat(cfgFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg := Default()
	cfg.path = cfgFile

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	if cfg.Defaults == nil {
		cfg.Defaults = &Defaults{BaseURL: DefaultBaseURL}
	}

	return cfg, nil
}

// Path returns the file the config is saved to.
func (c *Config) Path() string {
	return c.path
}

// SetPath overrides the file the config is saved to.
func (c *Config) SetPath(path string) {
	c.path = path
}

// Save writes the config to disk with owner-only permissions.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0600)
}

// UpdateProfile applies fn to the named profile, creating it if needed, and saves.
func (c *Config) UpdateProfile(name string, fn func(p *Profile)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}

	p, ok := c.Profiles[name]
	if !ok {
		p = &Profile{}
		c.Profiles[name] = p
	}
	fn(p)

	return c.saveLocked()
}

// GetProfile retrieves a copy of a profile (or of the current profile if name is empty).
func (c *Config) GetProfile(name string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		name = c.CurrentProfile
	}

	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile '%s': %w", name, ErrProfileNotFound)
	}

	return *p, nil
}

// RemoveProfile deletes a profile and saves.
func (c *Config) RemoveProfile(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s': %w", name, ErrProfileNotFound)
	}

	delete(c.Profiles, name)

	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}

	return c.saveLocked()
}

// BaseURL returns the profile's backend URL, or the default one.
func (c *Config) BaseURL(profile string) string {
	if p, err := c.GetProfile(profile); err == nil && p.BaseURL != "" {
		return p.BaseURL
	}
	if c.Defaults != nil && c.Defaults.BaseURL != "" {
		return c.Defaults.BaseURL
	}
	return DefaultBaseURL
}
