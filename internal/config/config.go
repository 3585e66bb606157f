// Package config loads WasteLink settings from an optional config file and
// WASTELINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wastelink/internal/logging"
)

type Config struct {
	Client ClientConfig
	Server ServerConfig
	Auth   AuthConfig
	Notify NotifyConfig
	Log    logging.Config
}

// ClientConfig configures the walker operation client.
type ClientConfig struct {
	Endpoint  string
	Transport string // http or ws
	Timeout   time.Duration
	Retries   int
	Token     string
	RateLimit float64 // calls per second, 0 disables
	RateBurst int
}

// ServerConfig configures the walkerd fixture server.
type ServerConfig struct {
	Addr        string
	DatabaseURL string
	RedisURL    string
	SeedFile    string
}

type AuthConfig struct {
	Mode   string // dev or hmac
	Secret string
}

type NotifyConfig struct {
	WebhookURL         string
	WebhookSecret      string
	WebhookMaxAttempts int
}

// Load reads configuration. Priority, highest first: WASTELINK_* environment
// variables, the config file (path, or ./wastelink.yaml when path is empty),
// built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("client.retries", 3)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wastelink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/wastelink")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("WASTELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{
		Client: ClientConfig{
			Endpoint:  v.GetString("client.endpoint"),
			Transport: v.GetString("client.transport"),
			Timeout:   v.GetDuration("client.timeout"),
			Retries:   v.GetInt("client.retries"),
			Token:     v.GetString("client.token"),
			RateLimit: v.GetFloat64("client.rate_limit"),
			RateBurst: v.GetInt("client.rate_burst"),
		},
		Server: ServerConfig{
			Addr:        v.GetString("server.addr"),
			DatabaseURL: v.GetString("server.database_url"),
			RedisURL:    v.GetString("server.redis_url"),
			SeedFile:    v.GetString("server.seed_file"),
		},
		Auth: AuthConfig{
			Mode:   v.GetString("auth.mode"),
			Secret: v.GetString("auth.secret"),
		},
		Notify: NotifyConfig{
			WebhookURL:         v.GetString("notify.webhook_url"),
			WebhookSecret:      v.GetString("notify.webhook_secret"),
			WebhookMaxAttempts: v.GetInt("notify.webhook_max_attempts"),
		},
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}
	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var keys = []string{
	"client.endpoint", "client.transport", "client.timeout", "client.retries", "client.token",
	"client.rate_limit", "client.rate_burst",
	"server.addr", "server.database_url", "server.redis_url", "server.seed_file",
	"auth.mode", "auth.secret",
	"notify.webhook_url", "notify.webhook_secret", "notify.webhook_max_attempts",
	"log.level", "log.format", "log.output",
}

func applyDefaults(cfg *Config) {
	if cfg.Client.Endpoint == "" {
		cfg.Client.Endpoint = "http://localhost:8888"
	}
	if cfg.Client.Transport == "" {
		cfg.Client.Transport = "http"
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 10 * time.Second
	}
	if cfg.Client.RateLimit > 0 && cfg.Client.RateBurst == 0 {
		cfg.Client.RateBurst = 1
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8888"
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "dev"
	}
	if cfg.Notify.WebhookMaxAttempts == 0 {
		cfg.Notify.WebhookMaxAttempts = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Client.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("client.endpoint %q is not an absolute URL", c.Client.Endpoint)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("client.endpoint scheme %q not supported", u.Scheme)
	}
	if c.Client.Transport != "http" && c.Client.Transport != "ws" {
		return fmt.Errorf("client.transport must be http or ws, got %q", c.Client.Transport)
	}
	if c.Client.Timeout < 0 {
		return errors.New("client.timeout must be >= 0")
	}
	if c.Client.Retries < 0 {
		return errors.New("client.retries must be >= 0")
	}
	if c.Client.RateLimit < 0 {
		return errors.New("client.rate_limit must be >= 0")
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.Secret == "" {
			return errors.New("auth.secret is required in hmac mode")
		}
	default:
		return fmt.Errorf("auth.mode must be dev or hmac, got %q", c.Auth.Mode)
	}
	return nil
}
