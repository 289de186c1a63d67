package factory

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/mailsource"
	"github.com/NickCassab/email-buddy/internal/adapters/scoringconfig"
	"github.com/NickCassab/email-buddy/internal/adapters/store"
	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/metrics"
)

func testConfig(t *testing.T, settings map[string]interface{}) *config.Config {
	t.Helper()
	cfg := config.NewFromViper(config.NewEmptyViper())
	for key, value := range settings {
		cfg.Set(key, value)
	}
	return cfg
}

func TestCreateTriageStore(t *testing.T) {
	logger := zap.NewNop()

	memory, err := NewStoreFactory(testConfig(t, map[string]interface{}{"store.type": "memory"}), logger).CreateTriageStore()
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, memory)

	path := filepath.Join(t.TempDir(), "email_data.json")
	file, err := NewStoreFactory(testConfig(t, map[string]interface{}{"store.type": "file", "store.file_path": path}), logger).CreateTriageStore()
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, file)
	require.NoError(t, file.Close())

	sqlitePath := filepath.Join(t.TempDir(), "triage.db")
	sqlite, err := NewStoreFactory(testConfig(t, map[string]interface{}{"store.type": "sqlite", "store.sqlite_path": sqlitePath}), logger).CreateTriageStore()
	require.NoError(t, err)
	require.NoError(t, sqlite.Close())
}

func TestCreateTriageStoreRejectsBadConfig(t *testing.T) {
	logger := zap.NewNop()

	_, err := NewStoreFactory(testConfig(t, map[string]interface{}{"store.type": "cassandra"}), logger).CreateTriageStore()
	assert.Error(t, err)

	_, err = NewStoreFactory(testConfig(t, map[string]interface{}{"store.type": "file", "store.file_path": ""}), logger).CreateTriageStore()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfig))
}

func newSourceFactory(t *testing.T, settings map[string]interface{}) *MailSourceFactory {
	t.Helper()
	cfg := testConfig(t, settings)
	tp := NewTextProcessorFactory(cfg, zap.NewNop()).CreateTextProcessor()
	return NewMailSourceFactory(cfg, zap.NewNop(), tp, metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestCreateMailSourceSpool(t *testing.T) {
	f := newSourceFactory(t, map[string]interface{}{"mail.source": "spool", "mail.breaker.enabled": false})

	source, err := f.CreateMailSource()
	require.NoError(t, err)
	assert.Same(t, f.Spool(), source)
}

func TestCreateMailSourceWrapsBreaker(t *testing.T) {
	f := newSourceFactory(t, map[string]interface{}{"mail.source": "spool"})

	source, err := f.CreateMailSource()
	require.NoError(t, err)
	assert.IsType(t, &mailsource.BreakerSource{}, source)
}

func TestCreateMailSourceIMAP(t *testing.T) {
	f := newSourceFactory(t, map[string]interface{}{
		"mail.source":          "imap",
		"mail.breaker.enabled": false,
		"imap.address":         "imap.example.com:993",
		"imap.username":        "me",
		"imap.password":        "secret",
	})

	source, err := f.CreateMailSource()
	require.NoError(t, err)
	assert.IsType(t, &mailsource.IMAPSource{}, source)
}

func TestCreateMailSourceRejectsBadConfig(t *testing.T) {
	_, err := newSourceFactory(t, map[string]interface{}{"mail.source": "pop3"}).CreateMailSource()
	assert.Error(t, err)

	_, err = newSourceFactory(t, map[string]interface{}{"mail.source": "imap", "mail.breaker.enabled": false}).CreateMailSource()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfig))

	_, err = newSourceFactory(t, map[string]interface{}{"mail.source": "spool", "mail.breaker.failure_ratio": 2.0}).CreateMailSource()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfig))
}

func newFrontendFactory(t *testing.T, settings map[string]interface{}) *FrontendFactory {
	t.Helper()
	cfg := testConfig(t, settings)
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	tp := NewTextProcessorFactory(cfg, logger).CreateTextProcessor()
	sources := NewMailSourceFactory(cfg, logger, tp, m)
	st := store.NewMemoryStore(logger)
	svc := core.NewTriageService(sources.Spool(), st, logger)
	provider := scoringconfig.NewFileProvider(filepath.Join(t.TempDir(), "settings.json"), logger)
	return NewFrontendFactory(cfg, logger, svc, st, provider, sources, m, registry)
}

func frontendNames(t *testing.T, f *FrontendFactory) []string {
	t.Helper()
	frontends, err := f.CreateFrontends()
	require.NoError(t, err)
	names := make([]string, 0, len(frontends))
	for _, fe := range frontends {
		names = append(names, fe.Name())
	}
	return names
}

func TestCreateFrontends(t *testing.T) {
	assert.Equal(t,
		[]string{"scheduler", "ops-http"},
		frontendNames(t, newFrontendFactory(t, map[string]interface{}{})))

	assert.Equal(t,
		[]string{"smtp-intake", "scheduler", "ops-http"},
		frontendNames(t, newFrontendFactory(t, map[string]interface{}{"mail.source": "spool"})))

	assert.Empty(t, frontendNames(t, newFrontendFactory(t, map[string]interface{}{
		"scheduler.enabled": false,
		"ops.enabled":       false,
	})))
}

func TestCreateFrontendsRejectsBadConfig(t *testing.T) {
	_, err := newFrontendFactory(t, map[string]interface{}{"scheduler.ingest_interval": "1ms"}).CreateFrontends()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfig))

	_, err = newFrontendFactory(t, map[string]interface{}{"ops.listen_address": "not an address"}).CreateFrontends()
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindConfig))
}
