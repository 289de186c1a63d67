package mailsource

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/mimeparse"
	"github.com/NickCassab/email-buddy/internal/utils"
)

// DefaultSpoolCapacity is the number of messages kept when no capacity is configured
const DefaultSpoolCapacity = 1000

type spooledMessage struct {
	id         string
	receivedAt time.Time
	envelope   Envelope
	parsed     *mimeparse.Message
}

// Envelope carries the SMTP envelope of a delivered message
type Envelope struct {
	From string
	To   []string
}

// Spool is a bounded in-memory mail source fed by the SMTP intake.
// When full, the oldest message is evicted and its id becomes NotFound.
type Spool struct {
	mu       sync.RWMutex
	capacity int
	order    []string // oldest first
	messages map[string]*spooledMessage
	tp       *utils.TextProcessor
	logger   *zap.Logger
	now      func() time.Time
}

// NewSpool creates an empty spool
func NewSpool(capacity int, tp *utils.TextProcessor, logger *zap.Logger) *Spool {
	if capacity <= 0 {
		capacity = DefaultSpoolCapacity
	}
	return &Spool{
		capacity: capacity,
		messages: make(map[string]*spooledMessage),
		tp:       tp,
		logger:   logger,
		now:      time.Now,
	}
}

// Deliver parses and stores a raw message, returning its id
func (s *Spool) Deliver(env Envelope, raw []byte) (string, error) {
	parsed, err := mimeparse.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse delivered message: %w", err)
	}

	now := s.now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[id] = &spooledMessage{
		id:         id,
		receivedAt: now,
		envelope:   Envelope{From: env.From, To: append([]string(nil), env.To...)},
		parsed:     parsed,
	}
	s.order = append(s.order, id)

	for len(s.order) > s.capacity {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.messages, evicted)
		s.logger.Debug("Evicted spooled message", zap.String("id", evicted))
	}

	return id, nil
}

// Len returns the number of spooled messages
func (s *Spool) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// FetchRecent lists up to max spooled messages, newest first
func (s *Spool) FetchRecent(ctx context.Context, max int) ([]core.MessageSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]core.MessageSummary, 0, max)
	for i := len(s.order) - 1; i >= 0 && len(summaries) < max; i-- {
		m := s.messages[s.order[i]]
		item := s.item(m)
		summaries = append(summaries, core.MessageSummary{
			ID:       item.ID,
			ThreadID: item.ThreadID,
			Sender:   item.Sender,
			Subject:  item.Subject,
			Date:     item.Date,
			Snippet:  item.Snippet,
		})
	}
	return summaries, nil
}

// FetchFull returns a spooled message
func (s *Spool) FetchFull(ctx context.Context, id string) (*core.InboxItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not in the spool", core.ErrMessageNotFound, id)
	}
	return s.item(m), nil
}

func (s *Spool) item(m *spooledMessage) *core.InboxItem {
	p := m.parsed
	body := s.tp.SanitizeUTF8(p.Text)

	sender := p.From
	if sender == "" {
		sender = m.envelope.From
	}
	recipient := p.To
	if recipient == "" && len(m.envelope.To) > 0 {
		recipient = m.envelope.To[0]
	}
	date := p.Date
	if date == "" {
		date = m.receivedAt.Format(time.RFC1123Z)
	}

	return &core.InboxItem{
		ID:        m.id,
		ThreadID:  threadID(p.InReplyTo, p.MessageID, m.id),
		Sender:    sender,
		Recipient: recipient,
		CC:        append([]string{}, p.CC...),
		Subject:   p.Subject,
		Date:      date,
		Snippet:   s.tp.Snippet(body),
		Body:      body,
		BodyHTML:  s.tp.SanitizeUTF8(p.HTML),
	}
}
