package factory

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/intake"
	"github.com/NickCassab/email-buddy/internal/adapters/opsserver"
	"github.com/NickCassab/email-buddy/internal/adapters/scheduler"
	"github.com/NickCassab/email-buddy/internal/adapters/scoringconfig"
	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/metrics"
	"github.com/NickCassab/email-buddy/internal/ports"
	"github.com/NickCassab/email-buddy/internal/whitelist"
)

// FrontendFactory creates the daemon's frontends based on configuration
type FrontendFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	service       *core.TriageService
	store         core.TriageStore
	provider      *scoringconfig.FileProvider
	sourceFactory *MailSourceFactory
	metrics       *metrics.Metrics
	registry      *prometheus.Registry
}

// NewFrontendFactory creates a new frontend factory
func NewFrontendFactory(
	cfg *config.Config,
	logger *zap.Logger,
	service *core.TriageService,
	store core.TriageStore,
	provider *scoringconfig.FileProvider,
	sourceFactory *MailSourceFactory,
	m *metrics.Metrics,
	registry *prometheus.Registry,
) *FrontendFactory {
	return &FrontendFactory{
		cfg:           cfg,
		logger:        logger,
		service:       service,
		store:         store,
		provider:      provider,
		sourceFactory: sourceFactory,
		metrics:       m,
		registry:      registry,
	}
}

// CreateFrontends creates every enabled frontend, in start order
func (f *FrontendFactory) CreateFrontends() ([]ports.Frontend, error) {
	var frontends []ports.Frontend

	if f.cfg.GetMail().Source == "spool" {
		intakeCfg := f.cfg.GetIntake()
		if err := config.Check(intakeCfg); err != nil {
			return nil, core.NewError(core.KindConfig, "create_frontends", "", err)
		}
		frontends = append(frontends, intake.NewSMTPIntake(intake.Settings{
			ListenAddress:   intakeCfg.ListenAddress,
			Domain:          intakeCfg.Domain,
			MaxMessageBytes: intakeCfg.MaxMessageBytes,
		}, f.sourceFactory.Spool(), whitelist.NewChecker(intakeCfg.AllowedDomains, f.logger), f.metrics, f.logger))
	}

	schedCfg, err := f.cfg.GetScheduler()
	if err != nil {
		return nil, core.NewError(core.KindConfig, "create_frontends", "", err)
	}
	if schedCfg.Enabled {
		if err := config.Check(schedCfg); err != nil {
			return nil, core.NewError(core.KindConfig, "create_frontends", "", err)
		}
		sched := scheduler.NewScheduler(f.service, f.provider, scheduler.Settings{
			IngestInterval: schedCfg.IngestInterval,
			MaxResults:     f.cfg.GetMail().MaxResults,
		}, f.logger)
		if schedCfg.RecalculateOnChange {
			f.provider.OnChange(func(core.ScoringConfig) { sched.RequestRecalculate() })
		}
		frontends = append(frontends, sched)
	}

	opsCfg := f.cfg.GetOps()
	if opsCfg.Enabled {
		if err := config.Check(opsCfg); err != nil {
			return nil, core.NewError(core.KindConfig, "create_frontends", "", err)
		}
		frontends = append(frontends, opsserver.New(opsCfg.ListenAddress, f.service, f.registry, func(ctx context.Context) error {
			_, err := f.store.Load(ctx)
			return err
		}, f.logger))
	}

	return frontends, nil
}
