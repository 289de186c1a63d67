package core

import (
	"context"
)

// MailSource defines the interface for retrieving messages from a mailbox
type MailSource interface {
	// FetchRecent lists up to max recent messages, newest first
	FetchRecent(ctx context.Context, max int) ([]MessageSummary, error)

	// FetchFull retrieves a complete message. Missing messages wrap ErrMessageNotFound.
	FetchFull(ctx context.Context, id string) (*InboxItem, error)
}

// TriageStore defines the interface for durable triage state
type TriageStore interface {
	// Load returns a private copy of the last committed snapshot
	Load(ctx context.Context) (*Snapshot, error)

	// Apply commits a changeset atomically. On error nothing is committed.
	Apply(ctx context.Context, cs *Changeset) error

	// Close releases the store's resources
	Close() error
}

// ScoringConfigProvider supplies the current scoring configuration
type ScoringConfigProvider interface {
	// Load always returns a usable configuration. A non-nil error is a
	// CONFIG error describing the values that fell back to defaults.
	Load() (ScoringConfig, error)
}

// StaticConfigProvider serves a fixed scoring configuration
type StaticConfigProvider struct {
	Config ScoringConfig
}

// Load returns the fixed configuration
func (p StaticConfigProvider) Load() (ScoringConfig, error) {
	return p.Config, nil
}
