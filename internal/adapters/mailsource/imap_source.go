package mailsource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/mimeparse"
	"github.com/NickCassab/email-buddy/internal/utils"
)

// IMAPSettings configures the IMAP mail source
type IMAPSettings struct {
	Address  string
	Username string
	Password string
	Mailbox  string
	Security string // tls, starttls or none
}

// IMAPSource reads messages from an IMAP mailbox. Message ids have the form
// <uidvalidity>-<uid> so a mailbox rebuild never aliases old ids.
type IMAPSource struct {
	settings IMAPSettings
	tp       *utils.TextProcessor
	logger   *zap.Logger

	mu     sync.Mutex
	client *client.Client
}

// NewIMAPSource creates an IMAP mail source. The connection is opened lazily.
func NewIMAPSource(settings IMAPSettings, tp *utils.TextProcessor, logger *zap.Logger) *IMAPSource {
	if settings.Mailbox == "" {
		settings.Mailbox = "INBOX"
	}
	return &IMAPSource{settings: settings, tp: tp, logger: logger}
}

func (s *IMAPSource) dial() (*client.Client, error) {
	host, _, err := net.SplitHostPort(s.settings.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid IMAP address %q: %w", s.settings.Address, err)
	}
	tlsConfig := &tls.Config{ServerName: host}

	var c *client.Client
	switch strings.ToLower(s.settings.Security) {
	case "starttls":
		c, err = client.Dial(s.settings.Address)
		if err == nil {
			err = c.StartTLS(tlsConfig)
		}
	case "none":
		c, err = client.Dial(s.settings.Address)
	default:
		c, err = client.DialTLS(s.settings.Address, tlsConfig)
	}
	if err != nil {
		if c != nil {
			c.Logout()
		}
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(s.settings.Username, s.settings.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	s.logger.Debug("Connected to IMAP server", zap.String("address", s.settings.Address))
	return c, nil
}

// withMailbox runs fn with a connected client and a freshly examined mailbox.
// Any error drops the connection so the next call reconnects.
func (s *IMAPSource) withMailbox(ctx context.Context, fn func(*client.Client, *imap.MailboxStatus) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		c, err := s.dial()
		if err != nil {
			return err
		}
		s.client = c
	}

	// Read-only select keeps \Seen flags untouched
	status, err := s.client.Select(s.settings.Mailbox, true)
	if err == nil {
		err = fn(s.client, status)
	}
	if err != nil && !isIMAPNotFound(err) {
		s.client.Logout()
		s.client = nil
	}
	return err
}

// FetchRecent lists the newest messages of the mailbox
func (s *IMAPSource) FetchRecent(ctx context.Context, max int) ([]core.MessageSummary, error) {
	var summaries []core.MessageSummary
	err := s.withMailbox(ctx, func(c *client.Client, status *imap.MailboxStatus) error {
		if status.Messages == 0 || max <= 0 {
			return nil
		}
		from := uint32(1)
		if status.Messages > uint32(max) {
			from = status.Messages - uint32(max) + 1
		}
		seqset := new(imap.SeqSet)
		seqset.AddRange(from, status.Messages)

		var fetched []*imap.Message
		err := fetchMessages(func(ch chan *imap.Message) error {
			return c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, ch)
		}, func(msg *imap.Message) {
			fetched = append(fetched, msg)
		})
		if err != nil {
			return fmt.Errorf("failed to fetch envelopes: %w", err)
		}

		// Newest first
		sort.Slice(fetched, func(i, j int) bool { return fetched[i].SeqNum > fetched[j].SeqNum })
		for _, msg := range fetched {
			summaries = append(summaries, summaryFromEnvelope(status.UidValidity, msg))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// FetchFull retrieves and parses a complete message
func (s *IMAPSource) FetchFull(ctx context.Context, id string) (*core.InboxItem, error) {
	validity, uid, err := parseIMAPID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMessageNotFound, err)
	}

	var item *core.InboxItem
	err = s.withMailbox(ctx, func(c *client.Client, status *imap.MailboxStatus) error {
		if status.UidValidity != validity {
			return fmt.Errorf("%w: uidvalidity changed for %s", core.ErrMessageNotFound, id)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uid)
		var section imap.BodySectionName

		var found *imap.Message
		err := fetchMessages(func(ch chan *imap.Message) error {
			return c.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}, ch)
		}, func(msg *imap.Message) {
			if msg.Uid == uid {
				found = msg
			}
		})
		if err != nil {
			return fmt.Errorf("failed to fetch message %s: %w", id, err)
		}
		if found == nil {
			return fmt.Errorf("%w: %s", core.ErrMessageNotFound, id)
		}

		literal := found.GetBody(&section)
		if literal == nil {
			return fmt.Errorf("message %s has no body", id)
		}
		parsed, err := mimeparse.Parse(literal)
		if err != nil {
			return fmt.Errorf("failed to parse message %s: %w", id, err)
		}
		item = s.itemFromParsed(id, found, parsed)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *IMAPSource) itemFromParsed(id string, msg *imap.Message, parsed *mimeparse.Message) *core.InboxItem {
	body := s.tp.SanitizeUTF8(parsed.Text)
	date := parsed.Date
	if date == "" && msg.Envelope != nil && !msg.Envelope.Date.IsZero() {
		date = msg.Envelope.Date.Format(time.RFC1123Z)
	}
	return &core.InboxItem{
		ID:        id,
		ThreadID:  threadID(parsed.InReplyTo, parsed.MessageID, id),
		Sender:    parsed.From,
		Recipient: parsed.To,
		CC:        parsed.CC,
		Subject:   parsed.Subject,
		Date:      date,
		Snippet:   s.tp.Snippet(body),
		Body:      body,
		BodyHTML:  s.tp.SanitizeUTF8(parsed.HTML),
	}
}

// Close logs out of the IMAP server
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Logout()
	s.client = nil
	return err
}

// fetchMessages drains a go-imap fetch into handle
func fetchMessages(fetch func(chan *imap.Message) error, handle func(*imap.Message)) error {
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- fetch(messages)
	}()
	for msg := range messages {
		handle(msg)
	}
	return <-done
}

func summaryFromEnvelope(validity uint32, msg *imap.Message) core.MessageSummary {
	id := formatIMAPID(validity, msg.Uid)
	summary := core.MessageSummary{ID: id, ThreadID: id}
	if env := msg.Envelope; env != nil {
		summary.ThreadID = threadID(env.InReplyTo, env.MessageId, id)
		summary.Sender = formatAddress(env.From)
		summary.Subject = env.Subject
		if !env.Date.IsZero() {
			summary.Date = env.Date.Format(time.RFC1123Z)
		}
	}
	return summary
}

func formatIMAPID(validity, uid uint32) string {
	return fmt.Sprintf("%d-%d", validity, uid)
}

func parseIMAPID(id string) (validity, uid uint32, err error) {
	left, right, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed IMAP id %q", id)
	}
	v, err := strconv.ParseUint(left, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed IMAP id %q: %w", id, err)
	}
	u, err := strconv.ParseUint(right, 10, 32)
	if err != nil || u == 0 {
		return 0, 0, fmt.Errorf("malformed IMAP id %q", id)
	}
	return uint32(v), uint32(u), nil
}

// threadID prefers the parent message id, then the message's own id
func threadID(inReplyTo, messageID, fallback string) string {
	if v := strings.Trim(inReplyTo, "<> "); v != "" {
		return v
	}
	if v := strings.Trim(messageID, "<> "); v != "" {
		return v
	}
	return fallback
}

func formatAddress(addrs []*imap.Address) string {
	var result []string
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		email := addr.MailboxName + "@" + addr.HostName
		if addr.PersonalName != "" {
			result = append(result, fmt.Sprintf("%s <%s>", addr.PersonalName, email))
		} else {
			result = append(result, email)
		}
	}
	return strings.Join(result, ", ")
}

func isIMAPNotFound(err error) bool {
	return errors.Is(err, core.ErrMessageNotFound)
}
