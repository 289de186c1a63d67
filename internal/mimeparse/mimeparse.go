// Package mimeparse extracts the triage-relevant parts of an RFC 5322 message.
package mimeparse

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Message holds the headers and text bodies of a parsed message
type Message struct {
	MessageID string
	InReplyTo string
	From      string
	To        string
	CC        []string
	Subject   string
	Date      string
	Text      string
	HTML      string
}

// Parse reads a raw message. The first text/plain and text/html inline parts
// become Text and HTML; attachments are skipped.
func Parse(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to create message reader: %w", err)
	}
	if mr == nil {
		return nil, fmt.Errorf("failed to create message reader: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	msg := &Message{
		From:      headerText(h, "From"),
		To:        headerText(h, "To"),
		CC:        SplitAddressList(headerText(h, "Cc")),
		Date:      h.Get("Date"),
		InReplyTo: strings.TrimSpace(h.Get("In-Reply-To")),
	}
	if msg.Subject, err = h.Subject(); err != nil {
		msg.Subject = h.Get("Subject")
	}
	if msg.MessageID, err = h.MessageID(); err != nil {
		msg.MessageID = strings.Trim(h.Get("Message-Id"), "<> ")
	}

	textFound, htmlFound := false, false
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}
		if p == nil {
			continue
		}

		inline, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		if contentType == "" {
			contentType = "text/plain"
		}
		switch {
		case contentType == "text/plain" && !textFound:
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read text body: %w", err)
			}
			msg.Text, textFound = string(b), true
		case contentType == "text/html" && !htmlFound:
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read html body: %w", err)
			}
			msg.HTML, htmlFound = string(b), true
		}
	}

	return msg, nil
}

// SplitAddressList splits a comma separated header value into trimmed, non-empty entries
func SplitAddressList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func headerText(h mail.Header, key string) string {
	if v, err := h.Text(key); err == nil {
		return v
	}
	return h.Get(key)
}
