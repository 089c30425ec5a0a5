package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultStorageKey is the versioned key the bill selection snapshot lives under.
const DefaultStorageKey = "ixora_bill_selection_v1"

// Backend configures the portal REST backend client.
type Backend struct {
	BaseURL       string        `yaml:"base_url" validate:"required,url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	RatePerSecond float64       `yaml:"rate_per_second" validate:"gte=0"`
	Burst         int           `yaml:"burst" validate:"gte=0"`
	Language      string        `yaml:"language"`
}

// Storage configures selection snapshot persistence.
type Storage struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	DSN    string `yaml:"dsn"`
	Key    string `yaml:"key" validate:"required"`
}

// Payment configures checkout references and status polling.
type Payment struct {
	ReferencePrefix string        `yaml:"reference_prefix"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gt=0"`
	MaxAttempts     int           `yaml:"max_attempts" validate:"gt=0"`
}

// Search configures outstanding bill lookups.
type Search struct {
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// Auth configures bearer verification on the local HTTP surface.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Config is the process configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr" validate:"required"`
	// TrustedProxies lists proxy addresses or CIDRs whose forwarding
	// headers are believed when recording client addresses.
	TrustedProxies []string `yaml:"trusted_proxies" validate:"dive,cidr|ip"`
	LogLevel       string   `yaml:"log_level"`
	Development    bool     `yaml:"development"`
	Backend        Backend  `yaml:"backend"`
	Storage     Storage `yaml:"storage"`
	Payment     Payment `yaml:"payment"`
	Search      Search  `yaml:"search"`
	Auth        Auth    `yaml:"auth"`
}

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)

// ErrInvalidReferencePrefix is returned for a prefix outside [A-Z0-9]{2,8}.
var ErrInvalidReferencePrefix = errors.New("config: invalid reference prefix")

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr: ":8080",
		LogLevel: "info",
		Backend: Backend{
			Timeout:       10 * time.Second,
			RatePerSecond: 10,
			Burst:         20,
			Language:      "ms",
		},
		Storage: Storage{
			Driver: DriverSQLite,
			DSN:    "var/selection.db",
			Key:    DefaultStorageKey,
		},
		Payment: Payment{
			ReferencePrefix: "IXO",
			PollInterval:    4 * time.Second,
			MaxAttempts:     30,
		},
		Search: Search{CacheTTL: 2 * time.Minute},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// PORTAL_CONFIG (if any), then environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("PORTAL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !prefixPattern.MatchString(c.Payment.ReferencePrefix) {
		return ErrInvalidReferencePrefix
	}
	if c.Storage.Driver != DriverMemory && c.Storage.DSN == "" {
		return errors.New("config: storage dsn required")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	if proxies := os.Getenv("HTTP_TRUSTED_PROXIES"); proxies != "" {
		cfg.TrustedProxies = splitList(proxies)
	}
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.Development = getenvBoolDefault("DEVELOPMENT", cfg.Development)

	cfg.Backend.BaseURL = getenvDefault("PORTAL_API_BASE_URL", cfg.Backend.BaseURL)
	cfg.Backend.Token = getenvDefault("PORTAL_API_TOKEN", cfg.Backend.Token)
	cfg.Backend.Timeout = getenvDuration("PORTAL_API_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.RatePerSecond = getenvFloatDefault("PORTAL_API_RPS", cfg.Backend.RatePerSecond)
	cfg.Backend.Burst = getenvIntDefault("PORTAL_API_BURST", cfg.Backend.Burst)
	cfg.Backend.Language = getenvDefault("PORTAL_LANGUAGE", cfg.Backend.Language)

	cfg.Storage.Driver = strings.ToLower(getenvDefault("SELECTION_STORAGE_DRIVER", cfg.Storage.Driver))
	cfg.Storage.DSN = getenvDefault("SELECTION_STORAGE_DSN", getenvDefault("DATABASE_URL", cfg.Storage.DSN))
	cfg.Storage.Key = getenvDefault("SELECTION_STORAGE_KEY", cfg.Storage.Key)

	cfg.Payment.ReferencePrefix = getenvDefault("REFERENCE_PREFIX", cfg.Payment.ReferencePrefix)
	cfg.Payment.PollInterval = getenvDuration("PAYMENT_POLL_INTERVAL", cfg.Payment.PollInterval)
	cfg.Payment.MaxAttempts = getenvIntDefault("PAYMENT_POLL_MAX_ATTEMPTS", cfg.Payment.MaxAttempts)

	cfg.Search.CacheTTL = getenvDuration("SEARCH_CACHE_TTL", cfg.Search.CacheTTL)
	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
