package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	envAPIBaseURL = "AKSARA_API_BASE_URL"
	envDummyMode  = "AKSARA_DUMMY_MODE"
	envStateDir   = "AKSARA_STATE_DIR"
	envTimeout    = "AKSARA_HTTP_TIMEOUT"

	DefaultAPIBaseURL = "http://localhost:8000"
)

// ClientConfig holds terminal client settings read from the environment.
type ClientConfig struct {
	APIBaseURL string
	DummyMode  bool
	StateDir   string
	Timeout    time.Duration
}

// LoadClient builds the client configuration from environment variables.
func LoadClient() ClientConfig {
	cfg := ClientConfig{
		APIBaseURL: strings.TrimRight(os.Getenv(envAPIBaseURL), "/"),
		StateDir:   os.Getenv(envStateDir),
		Timeout:    60 * time.Second,
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if v, err := strconv.ParseBool(os.Getenv(envDummyMode)); err == nil {
		cfg.DummyMode = v
	}
	if v, err := time.ParseDuration(os.Getenv(envTimeout)); err == nil && v > 0 {
		cfg.Timeout = v
	}
	if cfg.StateDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.StateDir = filepath.Join(dir, "aksara")
		} else {
			cfg.StateDir = ".aksara"
		}
	}
	return cfg
}

// StatePath returns the file holding the persisted session.
func (c ClientConfig) StatePath() string {
	return filepath.Join(c.StateDir, "session.json")
}
