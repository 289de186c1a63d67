package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// StoreConfig selects and configures the triage store
type StoreConfig struct {
	Type          string `validate:"oneof=memory file sqlite mysql postgres redis"`
	FilePath      string `validate:"required_if=Type file"`
	SQLitePath    string `validate:"required_if=Type sqlite"`
	MySQLDSN      string `validate:"required_if=Type mysql"`
	PostgresURL   string `validate:"required_if=Type postgres"`
	RedisAddr     string `validate:"required_if=Type redis"`
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	RedisKey      string `validate:"required_if=Type redis"`
}

// BreakerConfig configures the circuit breaker around the mail source
type BreakerConfig struct {
	Enabled      bool
	MaxRequests  uint32        `validate:"gte=1"`
	Interval     time.Duration `validate:"gte=0"`
	Timeout      time.Duration `validate:"gt=0"`
	FailureRatio float64       `validate:"gt=0,lte=1"`
	MinRequests  uint32        `validate:"gte=1"`
}

// MailConfig selects and configures the mail source
type MailConfig struct {
	Source           string `validate:"oneof=gmail imap spool"`
	MaxResults       int    `validate:"gte=1"`
	FetchConcurrency int    `validate:"gte=1,lte=64"`
	SnippetLength    int    `validate:"gte=1"`
}

// GmailConfig configures the Gmail mail source
type GmailConfig struct {
	CredentialsFile string `validate:"required"`
	TokenFile       string `validate:"required"`
	UserID          string `validate:"required"`
	Label           string `validate:"required"`
}

// IMAPConfig configures the IMAP mail source
type IMAPConfig struct {
	Address  string `validate:"required,hostname_port"`
	Username string `validate:"required"`
	Password string
	Mailbox  string `validate:"required"`
	Security string `validate:"oneof=tls starttls none"`
}

// IntakeConfig configures the SMTP intake that feeds the spool
type IntakeConfig struct {
	ListenAddress   string   `validate:"required,hostname_port"`
	Domain          string   `validate:"required"`
	MaxMessageBytes int64    `validate:"gte=1024"`
	Capacity        int      `validate:"gte=1"`
	AllowedDomains  []string `validate:"dive,required,fqdn"`
}

// ScoringConfig locates the scoring settings file
type ScoringConfig struct {
	SettingsFile string `validate:"required"`
	Watch        bool
}

// SchedulerConfig configures periodic passes in the daemon
type SchedulerConfig struct {
	Enabled             bool
	IngestInterval      time.Duration `validate:"gte=1s"`
	RecalculateOnChange bool
}

// OpsConfig configures the metrics and health endpoint
type OpsConfig struct {
	Enabled       bool
	ListenAddress string `validate:"required,hostname_port"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

var validate = validator.New()

// Check validates a section struct against its tags
func Check(section interface{}) error {
	if err := validate.Struct(section); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.Join(problems...)
		}
		return err
	}
	return nil
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:          c.GetString("store.type"),
		FilePath:      c.GetString("store.file_path"),
		SQLitePath:    c.GetString("store.sqlite_path"),
		MySQLDSN:      c.GetString("store.mysql_dsn"),
		PostgresURL:   c.GetString("store.postgres_url"),
		RedisAddr:     c.GetString("store.redis_addr"),
		RedisPassword: c.GetString("store.redis_password"),
		RedisDB:       c.GetInt("store.redis_db"),
		RedisKey:      c.GetString("store.redis_key"),
	}
}

// GetMail returns the mail source configuration
func (c *Config) GetMail() MailConfig {
	return MailConfig{
		Source:           c.GetString("mail.source"),
		MaxResults:       c.GetInt("mail.max_results"),
		FetchConcurrency: c.GetInt("mail.fetch_concurrency"),
		SnippetLength:    c.GetInt("mail.snippet_length"),
	}
}

// GetBreaker returns the circuit breaker configuration
func (c *Config) GetBreaker() (BreakerConfig, error) {
	interval, err := c.GetDuration("mail.breaker.interval")
	if err != nil {
		return BreakerConfig{}, err
	}
	timeout, err := c.GetDuration("mail.breaker.timeout")
	if err != nil {
		return BreakerConfig{}, err
	}
	return BreakerConfig{
		Enabled:      c.GetBool("mail.breaker.enabled"),
		MaxRequests:  c.GetUint32("mail.breaker.max_requests"),
		Interval:     interval,
		Timeout:      timeout,
		FailureRatio: c.GetFloat64("mail.breaker.failure_ratio"),
		MinRequests:  c.GetUint32("mail.breaker.min_requests"),
	}, nil
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile: c.GetString("gmail.credentials_file"),
		TokenFile:       c.GetString("gmail.token_file"),
		UserID:          c.GetString("gmail.user_id"),
		Label:           c.GetString("gmail.label"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Address:  c.GetString("imap.address"),
		Username: c.GetString("imap.username"),
		Password: c.GetString("imap.password"),
		Mailbox:  c.GetString("imap.mailbox"),
		Security: c.GetString("imap.security"),
	}
}

// GetIntake returns the SMTP intake configuration
func (c *Config) GetIntake() IntakeConfig {
	return IntakeConfig{
		ListenAddress:   c.GetString("intake.listen_address"),
		Domain:          c.GetString("intake.domain"),
		MaxMessageBytes: c.GetInt64("intake.max_message_bytes"),
		Capacity:        c.GetInt("intake.capacity"),
		AllowedDomains:  c.GetStringSlice("intake.allowed_domains"),
	}
}

// GetScoring returns the scoring settings location
func (c *Config) GetScoring() ScoringConfig {
	return ScoringConfig{
		SettingsFile: c.GetString("scoring.settings_file"),
		Watch:        c.GetBool("scoring.watch"),
	}
}

// GetScheduler returns the scheduler configuration
func (c *Config) GetScheduler() (SchedulerConfig, error) {
	interval, err := c.GetDuration("scheduler.ingest_interval")
	if err != nil {
		return SchedulerConfig{}, err
	}
	return SchedulerConfig{
		Enabled:             c.GetBool("scheduler.enabled"),
		IngestInterval:      interval,
		RecalculateOnChange: c.GetBool("scheduler.recalculate_on_change"),
	}, nil
}

// GetOps returns the ops endpoint configuration
func (c *Config) GetOps() OpsConfig {
	return OpsConfig{
		Enabled:       c.GetBool("ops.enabled"),
		ListenAddress: c.GetString("ops.listen_address"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}

// Validate checks the sections every binary depends on. Source and
// frontend specific sections are checked by the factories that use them.
func (c *Config) Validate() error {
	breaker, err := c.GetBreaker()
	if err != nil {
		return err
	}
	return errors.Join(
		Check(c.GetStore()),
		Check(c.GetMail()),
		Check(breaker),
		Check(c.GetScoring()),
		Check(c.GetLogging()),
	)
}
