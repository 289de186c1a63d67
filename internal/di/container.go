package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/scoringconfig"
	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/factory"
	"github.com/NickCassab/email-buddy/internal/logging"
	"github.com/NickCassab/email-buddy/internal/metrics"
	"github.com/NickCassab/email-buddy/internal/ports"
	"github.com/NickCassab/email-buddy/internal/utils"
)

// BuildContainer creates and configures the dependency injection container for the daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		cfg, err := config.New()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, core.NewError(core.KindConfig, "load_config", "", err)
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics registry with runtime collectors
	if err := container.Provide(func() *prometheus.Registry {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg
	}); err != nil {
		return nil, err
	}

	if err := provideTriage(container); err != nil {
		return nil, err
	}

	// Register frontends
	if err := container.Provide(factory.NewFrontendFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FrontendFactory) ([]ports.Frontend, error) {
		return f.CreateFrontends()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideTriage registers everything between configuration and the triage
// service. It expects *config.Config, *zap.Logger and *prometheus.Registry.
func provideTriage(container *dig.Container) error {
	// Register metrics
	if err := container.Provide(func(reg *prometheus.Registry) *metrics.Metrics {
		return metrics.NewMetrics(reg)
	}); err != nil {
		return err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewMailSourceFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register triage store
	if err := container.Provide(func(f *factory.StoreFactory) (core.TriageStore, error) {
		return f.CreateTriageStore()
	}); err != nil {
		return err
	}

	// Register mail source
	if err := container.Provide(func(f *factory.MailSourceFactory) (core.MailSource, error) {
		return f.CreateMailSource()
	}); err != nil {
		return err
	}

	// Register scoring configuration provider
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *scoringconfig.FileProvider {
		p := scoringconfig.NewFileProvider(cfg.GetScoring().SettingsFile, logger)
		p.OnReload(m.IncConfigReload)
		return p
	}); err != nil {
		return err
	}
	if err := container.Provide(func(p *scoringconfig.FileProvider) core.ScoringConfigProvider {
		return p
	}); err != nil {
		return err
	}

	// Register triage service
	if err := container.Provide(func(
		cfg *config.Config,
		source core.MailSource,
		store core.TriageStore,
		logger *zap.Logger,
		m *metrics.Metrics,
	) *core.TriageService {
		return core.NewTriageService(source, store, logger,
			core.WithFetchConcurrency(cfg.GetMail().FetchConcurrency),
			core.WithRecorder(m))
	}); err != nil {
		return err
	}

	return nil
}
