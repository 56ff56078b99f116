package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vpnda/sparebank-sync/pkg/validation"
)

const (
	DefaultConfigPath    = "config.yaml"
	DefaultBaseURL       = "https://api.sparebank1.no"
	DefaultTimeout       = "30s"
	DefaultPollInterval  = "1h"
	DefaultBackoffPolicy = "rate_limit"
	DefaultCurrency      = "NOK"
	DefaultMaxAmount     = 200.0
	DefaultDatabase      = "~/.sparebank-sync/sparebank.db"
	DefaultRedirectURL   = "http://localhost:8765/callback"
)

var backoffPolicies = []string{"rate_limit", "rate_limit_and_auth"}

type APIOptions struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout string `yaml:"timeout"`
	Debug   bool   `yaml:"debug"`
}

type OAuthOptions struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RedirectURL  string `yaml:"redirectUrl"`
}

// InstanceConfig configures one bank connection.
type InstanceConfig struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	DefaultCurrency string  `yaml:"defaultCurrency"`
	MaxAmount       float64 `yaml:"maxAmount"`
	// SelectedAccounts limits polling to these accounts; empty tracks all
	SelectedAccounts []string `yaml:"selectedAccounts"`
}

// MaxAmountDecimal returns the transfer cap in the default currency.
func (i InstanceConfig) MaxAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(i.MaxAmount)
}

// Config holds the application configuration
type Config struct {
	API           APIOptions       `yaml:"api"`
	OAuth         OAuthOptions     `yaml:"oauth"`
	Database      string           `yaml:"database"`
	PollInterval  string           `yaml:"pollInterval"`
	BackoffPolicy string           `yaml:"backoffPolicy"`
	Instances     []InstanceConfig `yaml:"instances"`
}

var (
	// Global configuration instance
	globalConfig *Config
	// Path the global configuration was loaded from
	globalConfigPath = DefaultConfigPath
	// Mutex to ensure thread-safe access to the global configuration
	configMutex sync.RWMutex
	// Flag to track if the configuration has been loaded
	configLoaded bool
)

// Default returns a configuration with a single instance and every default
// applied.
func Default() *Config {
	cfg := &Config{
		Instances: []InstanceConfig{{ID: "main", Name: "SpareBank 1"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	c.API.BaseURL = lo.CoalesceOrEmpty(c.API.BaseURL, DefaultBaseURL)
	c.API.Timeout = lo.CoalesceOrEmpty(c.API.Timeout, DefaultTimeout)
	c.OAuth.RedirectURL = lo.CoalesceOrEmpty(c.OAuth.RedirectURL, DefaultRedirectURL)
	c.Database = lo.CoalesceOrEmpty(c.Database, DefaultDatabase)
	c.PollInterval = lo.CoalesceOrEmpty(c.PollInterval, DefaultPollInterval)
	c.BackoffPolicy = lo.CoalesceOrEmpty(c.BackoffPolicy, DefaultBackoffPolicy)

	for i := range c.Instances {
		inst := &c.Instances[i]
		inst.DefaultCurrency = strings.ToUpper(lo.CoalesceOrEmpty(inst.DefaultCurrency, DefaultCurrency))
		if inst.MaxAmount == 0 {
			inst.MaxAmount = DefaultMaxAmount
		}
		inst.Name = lo.CoalesceOrEmpty(inst.Name, inst.ID)
	}
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	if _, err := c.PollIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.APITimeout(); err != nil {
		return err
	}
	if !lo.Contains(backoffPolicies, c.BackoffPolicy) {
		return fmt.Errorf("unknown backoff policy %q, expected one of %s",
			c.BackoffPolicy, strings.Join(backoffPolicies, ", "))
	}

	seen := map[string]bool{}
	for i, inst := range c.Instances {
		if inst.ID == "" {
			return fmt.Errorf("instance %d: id is required", i)
		}
		if seen[inst.ID] {
			return fmt.Errorf("instance %s: duplicate id", inst.ID)
		}
		seen[inst.ID] = true

		if !validation.IsSupportedCurrency(inst.DefaultCurrency) {
			return fmt.Errorf("instance %s: unsupported default currency %q", inst.ID, inst.DefaultCurrency)
		}
		if inst.MaxAmount <= 0 {
			return fmt.Errorf("instance %s: maxAmount must be positive", inst.ID)
		}
	}
	return nil
}

// PollIntervalDuration parses the poll interval.
func (c *Config) PollIntervalDuration() (time.Duration, error) {
	return parsePositiveDuration("pollInterval", c.PollInterval)
}

// APITimeout parses the HTTP timeout.
func (c *Config) APITimeout() (time.Duration, error) {
	return parsePositiveDuration("api.timeout", c.API.Timeout)
}

func parsePositiveDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, v)
	}
	return d, nil
}

// Instance returns the instance configuration with the given id.
func (c *Config) Instance(id string) (*InstanceConfig, bool) {
	for i := range c.Instances {
		if c.Instances[i].ID == id {
			return &c.Instances[i], true
		}
	}
	return nil, false
}

// DatabasePath returns the database path with a leading ~ expanded.
func (c *Config) DatabasePath() string {
	if strings.HasPrefix(c.Database, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, c.Database[2:])
		}
	}
	return c.Database
}

// LoadConfig loads the configuration from the specified YAML file
func LoadConfig(configPath string) (*Config, error) {
	// Read the configuration file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse the YAML data
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(configPath string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	// the file holds the OAuth client secret
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// InitGlobalConfig initializes the global configuration from the specified
// file. A missing file is replaced by a default configuration written to
// that path.
func InitGlobalConfig(configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		config = Default()
		if err := SaveConfig(configPath, config); err != nil {
			return fmt.Errorf("error writing default config: %w", err)
		}
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = config
	globalConfigPath = configPath
	configLoaded = true
	return nil
}

// GetConfig returns the global configuration instance
// If the configuration hasn't been loaded yet, it attempts to load it from
// the default location (./config.yaml)
func GetConfig() (*Config, error) {
	configMutex.RLock()
	if configLoaded {
		defer configMutex.RUnlock()
		return globalConfig, nil
	}
	configMutex.RUnlock()

	if err := InitGlobalConfig(DefaultConfigPath); err != nil {
		return nil, err
	}

	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig, nil
}

// SetSelectedAccounts stores a new account selection for an instance and
// persists the global configuration.
func SetSelectedAccounts(instanceID string, accounts []string) error {
	config, err := GetConfig()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	inst, ok := config.Instance(instanceID)
	if !ok {
		return fmt.Errorf("instance %q not found in configuration", instanceID)
	}
	inst.SelectedAccounts = lo.Uniq(accounts)

	return SaveConfig(globalConfigPath, config)
}
