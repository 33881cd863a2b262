// Package config loads client configuration from the environment and an
// optional dashboard profile file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the client runtime. All fields carry
// defaults so a bare environment produces a working configuration.
type Config struct {
	APIBaseURL  string        `env:"DASHBOARD_API_URL,default=http://localhost:8000"`
	HTTPTimeout time.Duration `env:"DASHBOARD_HTTP_TIMEOUT,default=15s"`

	LogLevel string `env:"DASHBOARD_LOG_LEVEL,default=info"`
	LogJSON  bool   `env:"DASHBOARD_LOG_JSON,default=false"`

	// CredentialFile is where the bearer token and cached profile live.
	// Empty selects a file under the user config directory.
	CredentialFile string `env:"DASHBOARD_CREDENTIAL_FILE,default="`

	// Request cache policy.
	CacheFreshness time.Duration `env:"DASHBOARD_CACHE_FRESHNESS,default=60s"`
	CacheIdleEvict time.Duration `env:"DASHBOARD_CACHE_IDLE_EVICT,default=600s"`
	RetryBudget    int           `env:"DASHBOARD_RETRY_BUDGET,default=2"`
	BackoffBase    time.Duration `env:"DASHBOARD_BACKOFF_BASE,default=500ms"`
	BackoffCap     time.Duration `env:"DASHBOARD_BACKOFF_CAP,default=8s"`

	// Search controller.
	SearchDebounce time.Duration `env:"DASHBOARD_SEARCH_DEBOUNCE,default=300ms"`
	SearchMinLen   int           `env:"DASHBOARD_SEARCH_MIN_LEN,default=1"`

	// Feed polling.
	PollInterval time.Duration `env:"DASHBOARD_POLL_INTERVAL,default=60s"`

	// Outbound rate limit.
	RateLimit float64 `env:"DASHBOARD_RATE_LIMIT,default=20"`
	RateBurst int     `env:"DASHBOARD_RATE_BURST,default=40"`
}

// Load decodes configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment before
// Load reads it. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate checks invariants that envdecode cannot express.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("DASHBOARD_API_URL is required")
	}
	if c.CacheFreshness <= 0 {
		return fmt.Errorf("cache freshness must be positive")
	}
	if c.CacheIdleEvict < c.CacheFreshness {
		return fmt.Errorf("cache idle eviction must be at least the freshness window")
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry budget cannot be negative")
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff base must be positive and no greater than the cap")
	}
	if c.SearchMinLen < 1 {
		return fmt.Errorf("search minimum length must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// Duration is a time.Duration that unmarshals from YAML scalars like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Profile is an optional per-user dashboard profile: the symbols pinned on
// startup, the tab to open, and feed interval overrides.
type Profile struct {
	Symbols      []string `yaml:"symbols"`
	ActiveTab    string   `yaml:"active_tab"`
	PollInterval Duration `yaml:"poll_interval"`
}

// LoadProfile reads a YAML profile file. A missing path returns a zero
// profile without error so the profile stays optional.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}
