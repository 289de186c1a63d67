package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides (EMAIL_BUDDY_STORE_TYPE, ...)
const EnvPrefix = "EMAIL_BUDDY"

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a configuration from the first config.yaml found in the search paths
func New() (*Config, error) {
	return NewFromFile("")
}

// NewFromFile creates a configuration from path, or from the search paths when path is empty
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/email-buddy/")
		v.AddConfigPath("$HOME/.email-buddy")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.type", "file")
	v.SetDefault("store.file_path", "./data/email_data.json")
	v.SetDefault("store.sqlite_path", "./data/email_buddy.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/email_buddy")
	v.SetDefault("store.postgres_url", "postgres://localhost:5432/email_buddy")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_key", "email_buddy:snapshot")

	// Mail source defaults
	v.SetDefault("mail.source", "gmail")
	v.SetDefault("mail.max_results", 50)
	v.SetDefault("mail.fetch_concurrency", 4)
	v.SetDefault("mail.snippet_length", 200)
	v.SetDefault("mail.breaker.enabled", true)
	v.SetDefault("mail.breaker.max_requests", 3)
	v.SetDefault("mail.breaker.interval", "60s")
	v.SetDefault("mail.breaker.timeout", "30s")
	v.SetDefault("mail.breaker.failure_ratio", 0.6)
	v.SetDefault("mail.breaker.min_requests", 5)

	// Gmail defaults
	v.SetDefault("gmail.credentials_file", "credentials/client_secret.json")
	v.SetDefault("gmail.token_file", "credentials/gmail_token.json")
	v.SetDefault("gmail.user_id", "me")
	v.SetDefault("gmail.label", "INBOX")

	// IMAP defaults
	v.SetDefault("imap.address", "")
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.security", "tls")

	// SMTP intake defaults
	v.SetDefault("intake.listen_address", "127.0.0.1:2525")
	v.SetDefault("intake.domain", "localhost")
	v.SetDefault("intake.max_message_bytes", 25*1024*1024)
	v.SetDefault("intake.capacity", 1000)
	v.SetDefault("intake.allowed_domains", []string{})

	// Scoring defaults
	v.SetDefault("scoring.settings_file", "settings.json")
	v.SetDefault("scoring.watch", true)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.ingest_interval", "15m")
	v.SetDefault("scheduler.recalculate_on_change", true)

	// Ops endpoint defaults
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.listen_address", "127.0.0.1:9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Set overrides a configuration value
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets an int64 value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetUint32 gets a uint32 value from the configuration
func (c *Config) GetUint32(key string) uint32 {
	return c.v.GetUint32(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
