package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxResults is the listing size used when none is given
	DefaultMaxResults = 50

	// DefaultFetchConcurrency bounds concurrent full fetches within a pass
	DefaultFetchConcurrency = 4
)

// Operation names used for errors and metrics
const (
	OpIngest        = "ingest"
	OpRecalculate   = "recalculate"
	OpMarkProcessed = "mark_processed"
	OpList          = "list"
)

// Recorder receives operational measurements from the triage service
type Recorder interface {
	ObservePass(op, outcome string, elapsed time.Duration)
	AddItems(op, result string, n int)
	ObserveScore(score int)
}

type nopRecorder struct{}

func (nopRecorder) ObservePass(string, string, time.Duration) {}
func (nopRecorder) AddItems(string, string, int)              {}
func (nopRecorder) ObserveScore(int)                          {}

// ServiceOption configures a TriageService
type ServiceOption func(*TriageService)

// WithClock overrides the time source used for identified_at
func WithClock(now func() time.Time) ServiceOption {
	return func(s *TriageService) { s.now = now }
}

// WithFetchConcurrency sets how many full fetches run at once within a pass
func WithFetchConcurrency(n int) ServiceOption {
	return func(s *TriageService) {
		if n > 0 {
			s.fetchConcurrency = n
		}
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) ServiceOption {
	return func(s *TriageService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// TriageService is the core service for message triage. Writers are
// serialized; List reads the last committed snapshot without waiting for them.
type TriageService struct {
	source           MailSource
	store            TriageStore
	logger           *zap.Logger
	recorder         Recorder
	now              func() time.Time
	fetchConcurrency int

	writeMu sync.Mutex
}

// NewTriageService creates a new triage service
func NewTriageService(source MailSource, store TriageStore, logger *zap.Logger, opts ...ServiceOption) *TriageService {
	s := &TriageService{
		source:           source,
		store:            store,
		logger:           logger,
		recorder:         nopRecorder{},
		now:              time.Now,
		fetchConcurrency: DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fetchOutcome struct {
	item *InboxItem
	err  error
}

// fetchAll retrieves full items for ids with bounded concurrency. Results keep the order of ids.
func (s *TriageService) fetchAll(ctx context.Context, op string, ids []string) ([]fetchOutcome, error) {
	results := make([]fetchOutcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item, err := s.source.FetchFull(gctx, id)
			switch {
			case err != nil:
				results[i].err = classifyFetchError(op, id, err)
			case item == nil:
				results[i].err = NewError(KindNotFound, op, id, ErrMessageNotFound)
			default:
				results[i].item = item
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Ingest pulls recent messages, scores the ones not seen before and commits
// them in one atomic write. Failed fetches are reported and retried next pass.
func (s *TriageService) Ingest(ctx context.Context, cfg ScoringConfig, maxResults int) (result *IngestResult, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	defer func() { s.recorder.ObservePass(OpIngest, outcomeOf(err), time.Since(start)) }()

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, NewError(KindPersistence, OpIngest, "", err)
	}

	candidates, err := s.source.FetchRecent(ctx, maxResults)
	if err != nil {
		return nil, NewError(KindTransientFetch, OpIngest, "", err)
	}

	result = &IngestResult{Errors: []ItemFailure{}}
	seen := snap.ProcessedSet()
	var fresh []string
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			result.Skipped++
			continue
		}
		seen[c.ID] = struct{}{}
		fresh = append(fresh, c.ID)
	}

	outcomes, err := s.fetchAll(ctx, OpIngest, fresh)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cs := &Changeset{}
	for i, id := range fresh {
		o := outcomes[i]
		if o.err != nil {
			s.logger.Warn("Failed to fetch message",
				zap.String("id", id),
				zap.String("kind", string(KindOf(o.err))),
				zap.Error(o.err))
			result.Errors = append(result.Errors, failureOf(id, o.err))
			continue
		}
		score := Score(o.item, cfg)
		s.recorder.ObserveScore(score)
		rec := NewTriageRecord(o.item, score, now)
		rec.ID = id
		cs.Added = append(cs.Added, rec)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !cs.Empty() {
		if err := s.store.Apply(ctx, cs); err != nil {
			s.logger.Error("Failed to commit ingestion", zap.Int("records", len(cs.Added)), zap.Error(err))
			return nil, NewError(KindPersistence, OpIngest, "", err)
		}
	}
	result.Added = len(cs.Added)

	s.recorder.AddItems(OpIngest, "added", result.Added)
	s.recorder.AddItems(OpIngest, "skipped", result.Skipped)
	s.recorder.AddItems(OpIngest, "failed", len(result.Errors))

	s.logger.Info("Ingestion complete",
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Errors)))

	return result, nil
}

// Recalculate re-fetches and re-scores every stored record, writing only changed scores
func (s *TriageService) Recalculate(ctx context.Context, cfg ScoringConfig) (result *RecalcResult, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	defer func() { s.recorder.ObservePass(OpRecalculate, outcomeOf(err), time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, NewError(KindPersistence, OpRecalculate, "", err)
	}

	ids := make([]string, len(snap.TriageRecords))
	for i, r := range snap.TriageRecords {
		ids[i] = r.ID
	}

	outcomes, err := s.fetchAll(ctx, OpRecalculate, ids)
	if err != nil {
		return nil, err
	}

	result = &RecalcResult{Errors: []ItemFailure{}}
	cs := &Changeset{Rescored: make(map[string]int)}
	for i, rec := range snap.TriageRecords {
		result.Processed++
		o := outcomes[i]
		if o.err != nil {
			s.logger.Warn("Failed to re-fetch message",
				zap.String("id", rec.ID),
				zap.String("kind", string(KindOf(o.err))),
				zap.Error(o.err))
			result.Errors = append(result.Errors, failureOf(rec.ID, o.err))
			continue
		}
		score := Score(o.item, cfg)
		if score != rec.ImportanceScore {
			s.logger.Debug("Importance score changed",
				zap.String("id", rec.ID),
				zap.Int("old", rec.ImportanceScore),
				zap.Int("new", score))
			cs.Rescored[rec.ID] = score
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !cs.Empty() {
		if err := s.store.Apply(ctx, cs); err != nil {
			s.logger.Error("Failed to commit recalculation", zap.Int("records", len(cs.Rescored)), zap.Error(err))
			return nil, NewError(KindPersistence, OpRecalculate, "", err)
		}
	}
	result.Updated = len(cs.Rescored)

	s.recorder.AddItems(OpRecalculate, "updated", result.Updated)
	s.recorder.AddItems(OpRecalculate, "unchanged", result.Processed-result.Updated-len(result.Errors))
	s.recorder.AddItems(OpRecalculate, "failed", len(result.Errors))

	s.logger.Info("Recalculation complete",
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("failed", len(result.Errors)))

	return result, nil
}

// ListOptions controls List
type ListOptions struct {
	Order Order
}

// List returns the committed triage records ranked by opts.Order
func (s *TriageService) List(ctx context.Context, opts ListOptions) ([]TriageRecord, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, NewError(KindPersistence, OpList, "", err)
	}
	return Rank(snap.TriageRecords, opts.Order), nil
}

// MarkProcessed flags a record as handled. Unknown ids return a NOT_FOUND error.
func (s *TriageService) MarkProcessed(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return NewError(KindPersistence, OpMarkProcessed, id, err)
	}

	rec, ok := snap.Find(id)
	if !ok {
		return NewError(KindNotFound, OpMarkProcessed, id, errors.New("no triage record with this id"))
	}
	if rec.Processed {
		return nil
	}

	if err := s.store.Apply(ctx, &Changeset{Processed: []string{id}}); err != nil {
		return NewError(KindPersistence, OpMarkProcessed, id, err)
	}

	s.logger.Info("Marked message as processed", zap.String("id", id))
	return nil
}

func failureOf(id string, err error) ItemFailure {
	return ItemFailure{ID: id, Kind: KindOf(err), Reason: err.Error()}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case KindOf(err) != "":
		return string(KindOf(err))
	default:
		return "error"
	}
}
