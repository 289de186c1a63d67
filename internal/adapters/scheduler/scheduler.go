package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

// Triager runs triage passes
type Triager interface {
	Ingest(ctx context.Context, cfg core.ScoringConfig, maxResults int) (*core.IngestResult, error)
	Recalculate(ctx context.Context, cfg core.ScoringConfig) (*core.RecalcResult, error)
}

// Settings configures the scheduler
type Settings struct {
	IngestInterval time.Duration
	MaxResults     int
}

// Scheduler runs ingestion on an interval and recalculation on request.
// All passes run on one goroutine, so they never overlap.
type Scheduler struct {
	triager  Triager
	provider core.ScoringConfigProvider
	settings Settings
	logger   *zap.Logger

	recalc chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler
func NewScheduler(triager Triager, provider core.ScoringConfigProvider, settings Settings, logger *zap.Logger) *Scheduler {
	if settings.IngestInterval <= 0 {
		settings.IngestInterval = 15 * time.Minute
	}
	if settings.MaxResults <= 0 {
		settings.MaxResults = core.DefaultMaxResults
	}
	return &Scheduler{
		triager:  triager,
		provider: provider,
		settings: settings,
		logger:   logger,
		recalc:   make(chan struct{}, 1),
	}
}

// Name identifies the frontend in logs
func (s *Scheduler) Name() string {
	return "scheduler"
}

// RequestRecalculate queues a recalculation pass. Requests made while one is
// already queued are merged.
func (s *Scheduler) RequestRecalculate() {
	select {
	case s.recalc <- struct{}{}:
	default:
	}
}

// Start runs an ingestion pass immediately and then on every interval
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Scheduler starting", zap.Duration("ingest_interval", s.settings.IngestInterval))
	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels any running pass and waits for the loop to exit
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.settings.IngestInterval)
	defer ticker.Stop()

	s.RunIngest(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunIngest(ctx)
		case <-s.recalc:
			s.RunRecalculate(ctx)
		}
	}
}

func (s *Scheduler) config() core.ScoringConfig {
	cfg, err := s.provider.Load()
	if err != nil {
		s.logger.Warn("Scoring configuration has problems, using fallback values", zap.Error(err))
	}
	return cfg
}

// RunIngest performs one ingestion pass
func (s *Scheduler) RunIngest(ctx context.Context) {
	result, err := s.triager.Ingest(ctx, s.config(), s.settings.MaxResults)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Scheduled ingestion failed", zap.Error(err))
		}
		return
	}
	s.logger.Info("Scheduled ingestion finished",
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Errors)))
}

// RunRecalculate performs one recalculation pass
func (s *Scheduler) RunRecalculate(ctx context.Context) {
	result, err := s.triager.Recalculate(ctx, s.config())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Scheduled recalculation failed", zap.Error(err))
		}
		return
	}
	s.logger.Info("Scheduled recalculation finished",
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Errors)))
}
