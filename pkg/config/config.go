package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ErrMissingRequired is wrapped by every validation failure caused by an
// absent credential or identifier.
var ErrMissingRequired = errors.New("required configuration value is missing")

const (
	DefaultMagnitBaseURL = "https://b2b-api.magnit.ru"
	DefaultOzonBaseURL   = "https://api-seller.ozon.ru"
	DefaultWebhookPath   = "/api/webhook"

	MinFlushTimeout = time.Second
	MaxFlushTimeout = 60 * time.Second
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Magnit    MagnitConfig    `yaml:"magnit"`
	Ozon      OzonConfig      `yaml:"ozon"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	KeepAlive KeepAliveConfig `yaml:"keep_alive"`
	LogLevel  string          `yaml:"log_level"  env:"SELLERBOT_LOG_LEVEL"`
}

type TelegramConfig struct {
	Token     string `yaml:"token"      env:"TELEGRAM_BOT_TOKEN"`
	AdminIDs  IDList `yaml:"admin_ids"  env:"ADMIN_IDS"`
	APIServer string `yaml:"api_server" env:"SELLERBOT_TELEGRAM_API_SERVER"`
}

type MagnitConfig struct {
	APIKey      string `yaml:"api_key"      env:"MAGNIT_API_KEY"`
	BaseURL     string `yaml:"base_url"     env:"SELLERBOT_MAGNIT_BASE_URL"`
	WarehouseID string `yaml:"warehouse_id" env:"WAREHOUSE_ID"`
	Currency    string `yaml:"currency"     env:"SELLERBOT_MAGNIT_CURRENCY"`
}

type OzonConfig struct {
	APIKey   string `yaml:"api_key"   env:"OZON_API_KEY"`
	ClientID string `yaml:"client_id" env:"OZON_CLIENT_ID"`
	BaseURL  string `yaml:"base_url"  env:"SELLERBOT_OZON_BASE_URL"`
}

type GatewayConfig struct {
	Host           string        `yaml:"host"            env:"SELLERBOT_GATEWAY_HOST"`
	Port           int           `yaml:"port"            env:"PORT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SELLERBOT_REQUEST_TIMEOUT"`
}

type WebhookConfig struct {
	Path         string        `yaml:"path"          env:"SELLERBOT_WEBHOOK_PATH"`
	URL          string        `yaml:"url"           env:"SELLERBOT_WEBHOOK_URL"`
	SecretToken  string        `yaml:"secret_token"  env:"SELLERBOT_WEBHOOK_SECRET"`
	FlushTimeout time.Duration `yaml:"flush_timeout" env:"SELLERBOT_FLUSH_TIMEOUT"`
}

type KeepAliveConfig struct {
	Enabled  bool   `yaml:"enabled"  env:"SELLERBOT_KEEPALIVE_ENABLED"`
	URL      string `yaml:"url"      env:"RENDER_URL"`
	Schedule string `yaml:"schedule" env:"SELLERBOT_KEEPALIVE_SCHEDULE"`
}

// IDList is a list of Telegram user ids. From the environment it is read as a
// comma-separated string; blanks around ids are ignored.
type IDList []int64

func (l *IDList) UnmarshalText(text []byte) error {
	var ids IDList
	for _, part := range strings.Split(string(text), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	*l = ids
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Magnit: MagnitConfig{
			BaseURL:  DefaultMagnitBaseURL,
			Currency: "RUB",
		},
		Ozon: OzonConfig{
			BaseURL: DefaultOzonBaseURL,
		},
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
		},
		Webhook: WebhookConfig{
			Path:         DefaultWebhookPath,
			FlushTimeout: 20 * time.Second,
		},
		KeepAlive: KeepAliveConfig{
			Schedule: "*/5 * * * *",
		},
		LogLevel: "info",
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file at
// path and the environment, in that order, and validates the result.
// A missing file is not an error: serverless deployments configure through the
// environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads the configuration from the environment only.
func LoadFromEnv() (*Config, error) {
	return LoadConfig(os.Getenv("SELLERBOT_CONFIG"))
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) normalize() {
	if c.Webhook.Path == "" {
		c.Webhook.Path = DefaultWebhookPath
	}
	if c.Webhook.Path[0] != '/' {
		c.Webhook.Path = "/" + c.Webhook.Path
	}
	if c.Webhook.FlushTimeout < MinFlushTimeout {
		c.Webhook.FlushTimeout = MinFlushTimeout
	}
	if c.Webhook.FlushTimeout > MaxFlushTimeout {
		c.Webhook.FlushTimeout = MaxFlushTimeout
	}
	if c.Gateway.RequestTimeout <= 0 {
		c.Gateway.RequestTimeout = 30 * time.Second
	}
	if c.Magnit.Currency == "" {
		c.Magnit.Currency = "RUB"
	}
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	required := []struct {
		name  string
		value string
	}{
		{"TELEGRAM_BOT_TOKEN", c.Telegram.Token},
		{"MAGNIT_API_KEY", c.Magnit.APIKey},
		{"OZON_API_KEY", c.Ozon.APIKey},
		{"OZON_CLIENT_ID", c.Ozon.ClientID},
		{"WAREHOUSE_ID", c.Magnit.WarehouseID},
	}
	for _, r := range required {
		if r.value == "" {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.name, ErrMissingRequired))
		}
	}
	if len(c.Telegram.AdminIDs) == 0 {
		result = multierror.Append(result, fmt.Errorf("ADMIN_IDS: %w", ErrMissingRequired))
	}
	if c.KeepAlive.Enabled && c.KeepAlive.URL == "" {
		result = multierror.Append(result, fmt.Errorf("RENDER_URL (keep-alive enabled): %w", ErrMissingRequired))
	}

	return result.ErrorOrNil()
}

// IsAdmin reports whether the user id is on the static allow-list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ListenAddr returns host:port for the gateway HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// WebhookFromEnv reads only the webhook section. Serverless entry points use
// it to mount the route before credentials are loaded.
func WebhookFromEnv() (WebhookConfig, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg.Webhook); err != nil {
		return WebhookConfig{}, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.normalize()
	return cfg.Webhook, nil
}
