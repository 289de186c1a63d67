package core

import (
	"time"
)

// MessageSummary is the lightweight listing entry returned by a mail source
type MessageSummary struct {
	ID       string
	ThreadID string
	Sender   string
	Subject  string
	Date     string
	Snippet  string
}

// InboxItem represents a fully fetched message. It is never persisted.
type InboxItem struct {
	ID        string
	ThreadID  string
	Sender    string
	Recipient string
	CC        []string
	Subject   string
	Date      string
	Snippet   string
	Body      string
	BodyHTML  string
}

// TriageRecord is the persisted triage state of one message
type TriageRecord struct {
	ID              string    `json:"id"`
	ThreadID        string    `json:"threadId"`
	Sender          string    `json:"sender"`
	Subject         string    `json:"subject"`
	Date            string    `json:"date"`
	Snippet         string    `json:"snippet"`
	Processed       bool      `json:"processed"`
	ImportanceScore int       `json:"importance_score"`
	IdentifiedAt    time.Time `json:"identified_at"`
}

// NewTriageRecord builds an unprocessed record for a freshly scored item
func NewTriageRecord(item *InboxItem, score int, now time.Time) TriageRecord {
	return TriageRecord{
		ID:              item.ID,
		ThreadID:        item.ThreadID,
		Sender:          item.Sender,
		Subject:         item.Subject,
		Date:            item.Date,
		Snippet:         item.Snippet,
		Processed:       false,
		ImportanceScore: score,
		IdentifiedAt:    now,
	}
}

// Weights holds the points awarded per scoring signal
type Weights struct {
	SubjectKeyword  int `json:"subject_keyword"`
	BodyKeyword     int `json:"body_keyword"`
	ImportantSender int `json:"important_sender"`
	QuestionMark    int `json:"question_mark"`
	DirectMessage   int `json:"direct_message"`
	EmailLength     int `json:"email_length"`
}

// DefaultWeights returns the built-in weight table
func DefaultWeights() Weights {
	return Weights{
		SubjectKeyword:  3,
		BodyKeyword:     1,
		ImportantSender: 5,
		QuestionMark:    1,
		DirectMessage:   2,
		EmailLength:     1,
	}
}

// DefaultKeywords returns the built-in keyword list
func DefaultKeywords() []string {
	return []string{
		"urgent", "important", "asap", "deadline", "required",
		"review", "approve", "confirm", "request", "attention",
	}
}

// ScoringConfig is an immutable scoring configuration. Build it with
// NewScoringConfig so the slices are private copies.
type ScoringConfig struct {
	keywords         []string
	importantSenders []string
	weights          Weights
}

// NewScoringConfig creates a scoring configuration from the given values
func NewScoringConfig(keywords, importantSenders []string, weights Weights) ScoringConfig {
	return ScoringConfig{
		keywords:         append([]string(nil), keywords...),
		importantSenders: append([]string(nil), importantSenders...),
		weights:          weights,
	}
}

// DefaultScoringConfig returns the configuration used when no settings are available
func DefaultScoringConfig() ScoringConfig {
	return NewScoringConfig(DefaultKeywords(), nil, DefaultWeights())
}

// Keywords returns a copy of the keyword list
func (c ScoringConfig) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// ImportantSenders returns a copy of the important sender list
func (c ScoringConfig) ImportantSenders() []string {
	return append([]string(nil), c.importantSenders...)
}

// Weights returns the weight table
func (c ScoringConfig) Weights() Weights {
	return c.weights
}

// ItemFailure describes one item that could not be processed during a pass
type ItemFailure struct {
	ID     string    `json:"id"`
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

// IngestResult summarizes an ingestion pass
type IngestResult struct {
	Added   int           `json:"added"`
	Skipped int           `json:"skipped"`
	Errors  []ItemFailure `json:"errors"`
}

// FailedIDs returns the ids of the items that failed
func (r *IngestResult) FailedIDs() []string {
	return failedIDs(r.Errors)
}

// RecalcResult summarizes a recalculation pass
type RecalcResult struct {
	Processed int           `json:"processed"`
	Updated   int           `json:"updated"`
	Errors    []ItemFailure `json:"errors"`
}

// FailedIDs returns the ids of the records that failed
func (r *RecalcResult) FailedIDs() []string {
	return failedIDs(r.Errors)
}

func failedIDs(failures []ItemFailure) []string {
	ids := make([]string, 0, len(failures))
	for _, f := range failures {
		ids = append(ids, f.ID)
	}
	return ids
}
