package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "YOLINKIFY"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "yolinkify.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "yolinkify_session"
	defaultSessionIssuer     = "yolinkify"
	defaultStoreBackend      = StoreBackendSQLite
	defaultStoreTimeout      = 2 * time.Second
	defaultRedisAddress      = "127.0.0.1:6379"
	defaultRedisKeyPrefix    = "yolinkify"
	defaultClientBaseURL     = "http://127.0.0.1:8080"
	defaultClientLikeCache   = "yolinkify-likes.json"
	defaultClientHTTPTimeout = 5 * time.Second
)

// Store backends accepted by store.backend.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	AllowedOrigins       []string
	DatabasePath         string
	LogLevel             string
	SessionSigningSecret string
	SessionCookieName    string
	SessionIssuer        string
	StoreConfig
}

// StoreConfig selects the counter store backend. It is shared by the server
// and the admin commands that publish links.
type StoreConfig struct {
	StoreBackend   string
	StoreTimeout   time.Duration
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
}

// ClientConfig captures configuration for the command line engagement client.
type ClientConfig struct {
	BaseURL       string
	SessionToken  string
	LikeCachePath string
	HTTPTimeout   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("store.backend", defaultStoreBackend)
	configViper.SetDefault("store.timeout", defaultStoreTimeout)
	configViper.SetDefault("redis.address", defaultRedisAddress)
	configViper.SetDefault("redis.db", 0)
	configViper.SetDefault("redis.key_prefix", defaultRedisKeyPrefix)
	configViper.SetDefault("client.base_url", defaultClientBaseURL)
	configViper.SetDefault("client.like_cache", defaultClientLikeCache)
	configViper.SetDefault("client.timeout", defaultClientHTTPTimeout)
}

// LoadStore parses the counter store configuration from viper.
func LoadStore(configViper *viper.Viper) (StoreConfig, error) {
	cfg := StoreConfig{
		StoreBackend:   strings.ToLower(strings.TrimSpace(configViper.GetString("store.backend"))),
		StoreTimeout:   configViper.GetDuration("store.timeout"),
		RedisAddress:   configViper.GetString("redis.address"),
		RedisPassword:  configViper.GetString("redis.password"),
		RedisDB:        configViper.GetInt("redis.db"),
		RedisKeyPrefix: configViper.GetString("redis.key_prefix"),
	}
	if err := cfg.validate(); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	storeConfig, err := LoadStore(configViper)
	if err != nil {
		return AppConfig{}, err
	}
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		AllowedOrigins:       configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		StoreConfig:          storeConfig,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadClient parses the engagement client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		BaseURL:       strings.TrimRight(strings.TrimSpace(configViper.GetString("client.base_url")), "/"),
		SessionToken:  strings.TrimSpace(configViper.GetString("client.session_token")),
		LikeCachePath: configViper.GetString("client.like_cache"),
		HTTPTimeout:   configViper.GetDuration("client.timeout"),
	}
	if cfg.BaseURL == "" {
		return ClientConfig{}, fmt.Errorf("client.base_url is required")
	}
	if cfg.HTTPTimeout <= 0 {
		return ClientConfig{}, fmt.Errorf("client.timeout must be positive")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c StoreConfig) validate() error {
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}
	switch c.StoreBackend {
	case StoreBackendSQLite:
	case StoreBackendRedis:
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("redis.address is required for the redis store backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", StoreBackendSQLite, StoreBackendRedis, c.StoreBackend)
	}
	return nil
}
