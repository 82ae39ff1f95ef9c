package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents runtime configuration for the server.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Chat        ChatConfig                `json:"chat"`
	AdminSeed   AdminSeed                 `json:"admin_seed"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	LogLevel          string `json:"log_level"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
	AccessTokenTTL    int    `json:"access_token_ttl"`    // minutes
	RefreshTokenTTL   int    `json:"refresh_token_ttl"`   // minutes
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// ChatConfig selects the language model used for replies.
type ChatConfig struct {
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	SystemPrompt       string  `json:"system_prompt"`
	WebSearch          bool    `json:"web_search"`
	DefaultTemperature float64 `json:"default_temperature"`
	DefaultMaxTokens   int     `json:"default_max_tokens"`
	ReplyTimeout       int     `json:"reply_timeout"` // seconds
}

// AdminSeed describes the administrator account created at startup.
type AdminSeed struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

const (
	DefaultProvider  = "gemini"
	DefaultModel     = "gemini-2.5-flash"
	DefaultMaxTokens = 512
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for name, db := range cfg.Databases {
		if !isSQLite(name) || db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their built-in values.
func (c *Config) ApplyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8000"
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 2
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		c.BasicConfig.MaxWorkers = c.BasicConfig.MinWorkers * 4
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.BasicConfig.AccessTokenTTL <= 0 {
		c.BasicConfig.AccessTokenTTL = 24 * 60
	}
	if c.BasicConfig.RefreshTokenTTL <= 0 {
		c.BasicConfig.RefreshTokenTTL = 7 * 24 * 60
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = DefaultProvider
	}
	if c.Chat.Model == "" {
		if p, ok := c.Providers[c.Chat.Provider]; ok && p.Model != "" {
			c.Chat.Model = p.Model
		} else {
			c.Chat.Model = DefaultModel
		}
	}
	if c.Chat.DefaultMaxTokens <= 0 {
		c.Chat.DefaultMaxTokens = DefaultMaxTokens
	}
	if c.Chat.ReplyTimeout <= 0 {
		c.Chat.ReplyTimeout = 120
	}
}

// AccessTTL reports the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.BasicConfig.AccessTokenTTL) * time.Minute
}

// RefreshTTL reports the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.BasicConfig.RefreshTokenTTL) * time.Minute
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}
