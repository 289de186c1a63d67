package mailsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

// BreakerSettings configures the circuit breaker around a mail source
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerSettings returns the default breaker configuration
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// BreakerSource guards a mail source with a circuit breaker. Missing messages
// and cancellations do not count as failures.
type BreakerSource struct {
	inner core.MailSource
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps inner. onStateChange may be nil.
func NewBreakerSource(name string, inner core.MailSource, settings BreakerSettings, logger *zap.Logger, onStateChange func(open bool)) *BreakerSource {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip if we have enough requests to make a decision
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Mail source circuit breaker state changed",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if onStateChange != nil {
				onStateChange(to != gobreaker.StateClosed)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, core.ErrMessageNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &BreakerSource{inner: inner, cb: cb}
}

// FetchRecent lists messages through the breaker
func (b *BreakerSource) FetchRecent(ctx context.Context, max int) ([]core.MessageSummary, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.FetchRecent(ctx, max)
	})
	if err != nil {
		return nil, wrapBreakerError(err)
	}
	return out.([]core.MessageSummary), nil
}

// FetchFull fetches a message through the breaker
func (b *BreakerSource) FetchFull(ctx context.Context, id string) (*core.InboxItem, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.FetchFull(ctx, id)
	})
	if err != nil {
		return nil, wrapBreakerError(err)
	}
	return out.(*core.InboxItem), nil
}

// State returns the current breaker state
func (b *BreakerSource) State() gobreaker.State {
	return b.cb.State()
}

// Close closes the wrapped source if it holds resources
func (b *BreakerSource) Close() error {
	if closer, ok := b.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func wrapBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("mail source unavailable: %w", err)
	}
	return err
}
