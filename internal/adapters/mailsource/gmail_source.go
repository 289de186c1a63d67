package mailsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/mimeparse"
	"github.com/NickCassab/email-buddy/internal/utils"
)

// GmailSettings configures the Gmail mail source
type GmailSettings struct {
	CredentialsFile string
	TokenFile       string
	UserID          string
	Label           string
}

// GmailSource reads messages through the Gmail API
type GmailSource struct {
	svc    *gmail.Service
	userID string
	label  string
	tp     *utils.TextProcessor
	logger *zap.Logger
}

// NewGmailSource builds a Gmail client from an OAuth client secret and a stored token
func NewGmailSource(ctx context.Context, settings GmailSettings, tp *utils.TextProcessor, logger *zap.Logger) (*GmailSource, error) {
	secret, err := os.ReadFile(settings.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Gmail credentials: %w", err)
	}

	tokenData, err := os.ReadFile(settings.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gmail token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenData, &token); err != nil {
		return nil, fmt.Errorf("failed to parse Gmail token: %w", err)
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	logger.Info("Initialized Gmail mail source",
		zap.String("user_id", settings.UserID),
		zap.String("label", settings.Label))

	return NewGmailSourceFromService(svc, settings.UserID, settings.Label, tp, logger), nil
}

// NewGmailSourceFromService wraps an existing Gmail service
func NewGmailSourceFromService(svc *gmail.Service, userID, label string, tp *utils.TextProcessor, logger *zap.Logger) *GmailSource {
	if userID == "" {
		userID = "me"
	}
	if label == "" {
		label = "INBOX"
	}
	return &GmailSource{svc: svc, userID: userID, label: label, tp: tp, logger: logger}
}

// FetchRecent lists recent messages in the configured label with their metadata headers
func (s *GmailSource) FetchRecent(ctx context.Context, max int) ([]core.MessageSummary, error) {
	resp, err := s.svc.Users.Messages.List(s.userID).
		LabelIds(s.label).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list Gmail messages: %w", mapGmailError(err))
	}

	summaries := make([]core.MessageSummary, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := s.svc.Users.Messages.Get(s.userID, ref.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			if errors.Is(mapGmailError(err), core.ErrMessageNotFound) {
				// Deleted between list and get
				s.logger.Debug("Listed message disappeared", zap.String("id", ref.Id))
				continue
			}
			return nil, fmt.Errorf("failed to get Gmail message metadata: %w", mapGmailError(err))
		}
		headers := gmailHeaders(msg.Payload)
		summaries = append(summaries, core.MessageSummary{
			ID:       msg.Id,
			ThreadID: msg.ThreadId,
			Sender:   headers["from"],
			Subject:  headers["subject"],
			Date:     headers["date"],
			Snippet:  msg.Snippet,
		})
	}
	return summaries, nil
}

// FetchFull retrieves a complete message with its text bodies
func (s *GmailSource) FetchFull(ctx context.Context, id string) (*core.InboxItem, error) {
	msg, err := s.svc.Users.Messages.Get(s.userID, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get Gmail message %s: %w", id, mapGmailError(err))
	}
	return s.itemFromMessage(msg), nil
}

func (s *GmailSource) itemFromMessage(msg *gmail.Message) *core.InboxItem {
	headers := gmailHeaders(msg.Payload)
	item := &core.InboxItem{
		ID:        msg.Id,
		ThreadID:  msg.ThreadId,
		Sender:    headers["from"],
		Recipient: headers["to"],
		CC:        mimeparse.SplitAddressList(headers["cc"]),
		Subject:   headers["subject"],
		Date:      headers["date"],
		Snippet:   msg.Snippet,
	}

	var text, html string
	var textFound, htmlFound bool
	walkGmailParts(msg.Payload, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		switch {
		case part.MimeType == "text/plain" && !textFound:
			text, textFound = decodeGmailData(part.Body.Data), true
		case part.MimeType == "text/html" && !htmlFound:
			html, htmlFound = decodeGmailData(part.Body.Data), true
		}
	})
	item.Body = s.tp.SanitizeUTF8(text)
	item.BodyHTML = s.tp.SanitizeUTF8(html)
	if item.Snippet == "" {
		item.Snippet = s.tp.Snippet(item.Body)
	}
	return item
}

// gmailHeaders returns the first value of each header keyed by lowercase name
func gmailHeaders(part *gmail.MessagePart) map[string]string {
	out := make(map[string]string)
	if part == nil {
		return out
	}
	for _, h := range part.Headers {
		key := strings.ToLower(h.Name)
		if _, ok := out[key]; !ok {
			out[key] = h.Value
		}
	}
	return out
}

func walkGmailParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, child := range part.Parts {
		walkGmailParts(child, fn)
	}
}

// decodeGmailData decodes the base64url payload data Gmail returns
func decodeGmailData(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

func mapGmailError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %v", core.ErrMessageNotFound, err)
	}
	return err
}
