// Package config resolves the harvester's process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingValue is returned when a required setting is absent.
var ErrMissingValue = errors.New("required configuration value missing")

// Configuration keys. Each key is also read from the environment under the same name.
const (
	KeyESHost            = "ES_HOST"
	KeyAuthKey           = "AUTH_KEY"
	KeyAPIBaseURL        = "DATA4LIBRARY_API_URL"
	KeyWebBaseURL        = "DATA4LIBRARY_WEB_URL"
	KeyRegion            = "REGION"
	KeyDetailRegion      = "DETAIL_REGION"
	KeyWorkers           = "WORKERS"
	KeyChunkSize         = "CHUNK_SIZE"
	KeyRequestsPerSecond = "REQUESTS_PER_SECOND"
	KeyHTTPTimeout       = "HTTP_TIMEOUT"
	KeySkipExisting      = "SKIP_EXISTING"
)

// Config holds everything a harvest run needs. It is passed explicitly to each component.
type Config struct {
	ESHost  string
	AuthKey string

	APIBaseURL   string
	WebBaseURL   string
	Region       string
	DetailRegion string

	Workers           int
	ChunkSize         int
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
	SkipExisting      bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIBaseURL, "http://data4library.kr")
	v.SetDefault(KeyWebBaseURL, "https://www.data4library.kr")
	v.SetDefault(KeyRegion, "11") // Seoul
	v.SetDefault(KeyDetailRegion, "A")
	v.SetDefault(KeyWorkers, 1)
	v.SetDefault(KeyChunkSize, 30000)
	v.SetDefault(KeyRequestsPerSecond, 2.0)
	v.SetDefault(KeyHTTPTimeout, 5*time.Minute)
	v.SetDefault(KeySkipExisting, true)
}

// New returns a viper instance with defaults applied and environment lookup enabled.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

// Load builds a Config from v and validates it for a full harvest.
func Load(v *viper.Viper) (*Config, error) {
	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEngine builds a Config for commands that only talk to Elasticsearch.
// Only ES_HOST is required.
func LoadEngine(v *viper.Viper) (*Config, error) {
	cfg := fromViper(v)
	if cfg.ESHost == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingValue, KeyESHost)
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ESHost:            strings.TrimSpace(v.GetString(KeyESHost)),
		AuthKey:           strings.TrimSpace(v.GetString(KeyAuthKey)),
		APIBaseURL:        strings.TrimRight(v.GetString(KeyAPIBaseURL), "/"),
		WebBaseURL:        strings.TrimRight(v.GetString(KeyWebBaseURL), "/"),
		Region:            v.GetString(KeyRegion),
		DetailRegion:      v.GetString(KeyDetailRegion),
		Workers:           v.GetInt(KeyWorkers),
		ChunkSize:         v.GetInt(KeyChunkSize),
		RequestsPerSecond: v.GetFloat64(KeyRequestsPerSecond),
		HTTPTimeout:       v.GetDuration(KeyHTTPTimeout),
		SkipExisting:      v.GetBool(KeySkipExisting),
	}
}

// Validate checks required values and normalizes out-of-range numbers.
func (c *Config) Validate() error {
	if c.ESHost == "" {
		return fmt.Errorf("%w: %s", ErrMissingValue, KeyESHost)
	}
	if c.AuthKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingValue, KeyAuthKey)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("invalid %s: %d", KeyChunkSize, c.ChunkSize)
	}
	return nil
}
