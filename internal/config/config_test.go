package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	require.NoError(t, cfg.Validate())

	store := cfg.GetStore()
	assert.Equal(t, "file", store.Type)
	assert.Equal(t, "./data/email_data.json", store.FilePath)

	mail := cfg.GetMail()
	assert.Equal(t, "gmail", mail.Source)
	assert.Equal(t, 50, mail.MaxResults)
	assert.Equal(t, 4, mail.FetchConcurrency)

	breaker, err := cfg.GetBreaker()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, breaker.Interval)
	assert.Equal(t, 30*time.Second, breaker.Timeout)
	assert.Equal(t, uint32(5), breaker.MinRequests)

	sched, err := cfg.GetScheduler()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, sched.IngestInterval)
	require.NoError(t, Check(sched))

	require.NoError(t, Check(cfg.GetIntake()))
	require.NoError(t, Check(cfg.GetOps()))
	require.NoError(t, Check(cfg.GetGmail()))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("store.type", "cassandra")
	cfg.Set("mail.fetch_concurrency", 0)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreConfig.Type")
	assert.Contains(t, err.Error(), "MailConfig.FetchConcurrency")
}

func TestStoreRequiresBackendSetting(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("store.type", "mysql")
	cfg.Set("store.mysql_dsn", "")

	err := Check(cfg.GetStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MySQLDSN")
}

func TestIMAPSectionIsCheckedWhenUsed(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	assert.Error(t, Check(cfg.GetIMAP()), "address and username are required")

	cfg.Set("imap.address", "imap.example.com:993")
	cfg.Set("imap.username", "me@example.com")
	assert.NoError(t, Check(cfg.GetIMAP()))

	cfg.Set("imap.security", "ssl3")
	assert.Error(t, Check(cfg.GetIMAP()))
}

func TestInvalidDuration(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	cfg.Set("scheduler.ingest_interval", "soon")

	_, err := cfg.GetScheduler()
	assert.Error(t, err)
}

func TestNewFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: sqlite\nmail:\n  max_results: 10\n"), 0o644))
	t.Setenv("EMAIL_BUDDY_MAIL_SOURCE", "spool")

	cfg, err := NewFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.GetStore().Type)
	assert.Equal(t, 10, cfg.GetMail().MaxResults)
	assert.Equal(t, "spool", cfg.GetMail().Source)
	assert.Equal(t, 4, cfg.GetMail().FetchConcurrency)
}

func TestNewFromFileMissing(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
