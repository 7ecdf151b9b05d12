package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the weather collector
type Config struct {
	// Provider selection and cooldown behavior
	Providers ProvidersConfig `yaml:"providers" json:"providers"`

	// Dispatch settings (worker pool, retry, backoff)
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`

	// Client-side request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Collection targets
	Targets TargetsConfig `yaml:"targets" json:"targets"`

	// Checkpoint persistence
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Response cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ProvidersConfig controls which providers are consulted and how long a
// rate-limited provider sits out
type ProvidersConfig struct {
	// Priority lists provider names in the order they are tried
	Priority []string      `yaml:"priority" json:"priority" validate:"required,min=1,dive,oneof=visualcrossing openweather qweather"`
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown" validate:"gt=0"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// DispatchConfig holds worker pool and retry configuration
type DispatchConfig struct {
	Workers           int           `yaml:"workers" json:"workers" validate:"gte=1,lte=32"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	BackoffBase       time.Duration `yaml:"backoff_base" json:"backoff_base" validate:"gt=0"`
	BackoffMax        time.Duration `yaml:"backoff_max" json:"backoff_max" validate:"gtefield=BackoffBase"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier" validate:"gte=1"`
	JitterFactor      float64       `yaml:"jitter_factor" json:"jitter_factor" validate:"gte=0,lte=1"`

	// WaitForCooldown makes the dispatcher sleep until the soonest
	// provider recovers instead of failing the task when every provider
	// is rate limited
	WaitForCooldown bool `yaml:"wait_for_cooldown" json:"wait_for_cooldown"`

	// MaxAPICalls caps outbound requests per run. Zero means no limit.
	MaxAPICalls int `yaml:"max_api_calls" json:"max_api_calls" validate:"gte=0"`
}

// RateLimitConfig holds client-side pacing configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute" validate:"gte=1"`
	BurstSize         int `yaml:"burst_size" json:"burst_size" validate:"gte=1"`
}

// TargetsConfig names what to collect
type TargetsConfig struct {
	// Provinces filters the city list. Empty means every province.
	Provinces []string `yaml:"provinces" json:"provinces"`
	Years     []int    `yaml:"years" json:"years" validate:"required,min=1,dive,gte=1970,lte=2100"`
	CityList  string   `yaml:"city_list" json:"city_list" validate:"required"`
}

// CheckpointConfig holds checkpoint persistence configuration
type CheckpointConfig struct {
	Directory string `yaml:"directory" json:"directory" validate:"required"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`

	// MaxMemoryEntries bounds the in-memory tier; the disk tier is never
	// bounded. Zero means unbounded.
	MaxMemoryEntries int `yaml:"max_memory_entries" json:"max_memory_entries" validate:"gte=0"`
}

// OutputConfig holds CSV output configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory" validate:"required"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Priority: []string{"visualcrossing", "openweather", "qweather"},
			Cooldown: 60 * time.Minute,
			Timeout:  30 * time.Second,
		},
		Dispatch: DispatchConfig{
			Workers:           4,
			MaxRetries:        3,
			BackoffBase:       time.Second,
			BackoffMax:        60 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFactor:      0.1,
			WaitForCooldown:   false,
			MaxAPICalls:       0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Targets: TargetsConfig{
			Years:    []int{time.Now().Year() - 1},
			CityList: "city_list.json",
		},
		Checkpoint: CheckpointConfig{
			Directory: "./checkpoints",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Directory: "./cache",
		},
		Output: OutputConfig{
			Directory: "./data",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if priority := os.Getenv("WEATHERCOLLECT_PROVIDERS"); priority != "" {
		c.Providers.Priority = splitList(priority)
	}
	if cooldown := os.Getenv("WEATHERCOLLECT_PROVIDER_COOLDOWN"); cooldown != "" {
		d, err := time.ParseDuration(cooldown)
		if err != nil {
			return fmt.Errorf("invalid WEATHERCOLLECT_PROVIDER_COOLDOWN: %w", err)
		}
		c.Providers.Cooldown = d
	}

	if workers := os.Getenv("WEATHERCOLLECT_WORKERS"); workers != "" {
		if val, err := strconv.Atoi(workers); err == nil && val > 0 {
			c.Dispatch.Workers = val
		}
	}
	if budget := os.Getenv("WEATHERCOLLECT_MAX_API_CALLS"); budget != "" {
		if val, err := strconv.Atoi(budget); err == nil && val >= 0 {
			c.Dispatch.MaxAPICalls = val
		}
	}
	if wait := os.Getenv("WEATHERCOLLECT_WAIT_FOR_COOLDOWN"); wait != "" {
		c.Dispatch.WaitForCooldown = strings.ToLower(wait) == "true"
	}

	if rpm := os.Getenv("WEATHERCOLLECT_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if provinces := os.Getenv("WEATHERCOLLECT_PROVINCES"); provinces != "" {
		c.Targets.Provinces = splitList(provinces)
	}
	if years := os.Getenv("WEATHERCOLLECT_YEARS"); years != "" {
		parsed, err := parseYears(splitList(years))
		if err != nil {
			return fmt.Errorf("invalid WEATHERCOLLECT_YEARS: %w", err)
		}
		c.Targets.Years = parsed
	}
	if cityList := os.Getenv("WEATHERCOLLECT_CITY_LIST"); cityList != "" {
		c.Targets.CityList = cityList
	}

	if dir := os.Getenv("WEATHERCOLLECT_CHECKPOINT_DIR"); dir != "" {
		c.Checkpoint.Directory = dir
	}
	if dir := os.Getenv("WEATHERCOLLECT_CACHE_DIR"); dir != "" {
		c.Cache.Directory = dir
	}
	if dir := os.Getenv("WEATHERCOLLECT_OUTPUT_DIR"); dir != "" {
		c.Output.Directory = dir
	}

	if logLevel := os.Getenv("WEATHERCOLLECT_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".weathercollect.yaml",
		".weathercollect.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "weathercollect", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "weathercollect", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".weathercollect.yaml"),
		filepath.Join(os.Getenv("HOME"), ".weathercollect.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if seen := duplicateProvider(c.Providers.Priority); seen != "" {
		return fmt.Errorf("provider %q listed more than once", seen)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if provinces, ok := flags["provinces"].([]string); ok && len(provinces) > 0 {
		c.Targets.Provinces = provinces
	}
	if years, ok := flags["years"].([]int); ok && len(years) > 0 {
		c.Targets.Years = years
	}
	if cityList, ok := flags["city-list"].(string); ok && cityList != "" {
		c.Targets.CityList = cityList
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Dispatch.Workers = workers
	}
	if budget, ok := flags["max-api-calls"].(int); ok && budget > 0 {
		c.Dispatch.MaxAPICalls = budget
	}
	if wait, ok := flags["wait-for-cooldown"].(bool); ok && wait {
		c.Dispatch.WaitForCooldown = true
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".weathercollect.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseYears(values []string) ([]int, error) {
	years := make([]int, 0, len(values))
	for _, v := range values {
		year, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", v)
		}
		years = append(years, year)
	}
	return years, nil
}

func duplicateProvider(priority []string) string {
	seen := make(map[string]bool, len(priority))
	for _, name := range priority {
		if seen[name] {
			return name
		}
		seen[name] = true
	}
	return ""
}
