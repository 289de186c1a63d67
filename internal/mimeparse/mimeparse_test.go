package mimeparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.com\r\n" +
	"Cc: carol@example.com, dave@example.com\r\n" +
	"Subject: =?utf-8?q?Urgent:_Please_Review?=\r\n" +
	"Date: Tue, 1 Oct 2024 09:00:00 +0000\r\n" +
	"Message-Id: <abc123@example.com>\r\n" +
	"In-Reply-To: <parent@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hi, can you review this?\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Hi, can you review this?</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=report.pdf\r\n" +
	"\r\n" +
	"%PDF-1.4\r\n" +
	"--outer--\r\n"

func TestParseMultipart(t *testing.T) {
	msg, err := Parse(strings.NewReader(multipartMessage))
	require.NoError(t, err)

	assert.Equal(t, "Alice <alice@example.com>", msg.From)
	assert.Equal(t, "bob@example.com", msg.To)
	assert.Equal(t, []string{"carol@example.com", "dave@example.com"}, msg.CC)
	assert.Equal(t, "Urgent: Please Review", msg.Subject)
	assert.Equal(t, "Tue, 1 Oct 2024 09:00:00 +0000", msg.Date)
	assert.Equal(t, "abc123@example.com", msg.MessageID)
	assert.Equal(t, "<parent@example.com>", msg.InReplyTo)
	assert.Contains(t, msg.Text, "can you review this?")
	assert.Contains(t, msg.HTML, "<p>")
}

func TestParsePlainMessage(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"plain body\r\n"

	msg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "hello", msg.Subject)
	assert.Empty(t, msg.CC)
	assert.Equal(t, "plain body\r\n", msg.Text)
	assert.Empty(t, msg.HTML)
}

func TestSplitAddressList(t *testing.T) {
	assert.Equal(t, []string{"a@x", "b@y"}, SplitAddressList(" a@x ,b@y, "))
	assert.Empty(t, SplitAddressList(""))
}
