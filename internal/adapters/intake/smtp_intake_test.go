package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/mailsource"
	"github.com/NickCassab/email-buddy/internal/utils"
	"github.com/NickCassab/email-buddy/internal/whitelist"
)

type fakeDeliverer struct {
	envelopes []mailsource.Envelope
	raws      [][]byte
	err       error
}

func (f *fakeDeliverer) Deliver(env mailsource.Envelope, raw []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.envelopes = append(f.envelopes, env)
	f.raws = append(f.raws, raw)
	return "id-1", nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) IncIntake(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[result]++
}

func (r *countingRecorder) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[result]
}

const testMessage = "From: alice@example.com\r\n" +
	"To: bob@example.com\r\n" +
	"Subject: Urgent: sign-off\r\n" +
	"\r\n" +
	"Can you approve?\r\n"

func newSession(deliverer Deliverer, domains []string, rec Recorder) *intakeSession {
	in := NewSMTPIntake(Settings{}, deliverer, whitelist.NewChecker(domains, nil), rec, zap.NewNop())
	return &intakeSession{intake: in}
}

func TestSessionDeliversEnvelope(t *testing.T) {
	d := &fakeDeliverer{}
	rec := &countingRecorder{}
	s := newSession(d, nil, rec)

	require.NoError(t, s.Mail("alice@example.com", nil))
	require.NoError(t, s.Rcpt("bob@example.com", nil))
	require.NoError(t, s.Rcpt("carol@example.org", nil))
	require.NoError(t, s.Data(strings.NewReader(testMessage)))

	require.Len(t, d.envelopes, 1)
	assert.Equal(t, "alice@example.com", d.envelopes[0].From)
	assert.Equal(t, []string{"bob@example.com", "carol@example.org"}, d.envelopes[0].To)
	assert.Equal(t, testMessage, string(d.raws[0]))
	assert.Equal(t, 1, rec.count(ResultAccepted))

	s.Reset()
	assert.Empty(t, s.sender)
	assert.Empty(t, s.recipients)
}

func TestSessionRefusesForeignRecipients(t *testing.T) {
	rec := &countingRecorder{}
	s := newSession(&fakeDeliverer{}, []string{"example.com"}, rec)

	err := s.Rcpt("mallory@evil.test", nil)
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
	assert.Empty(t, s.recipients)
	assert.Equal(t, 1, rec.count(ResultRejectedRecipient))

	require.NoError(t, s.Rcpt("bob@example.com", nil))
	assert.Equal(t, []string{"bob@example.com"}, s.recipients)
}

func TestSessionReportsDeliveryFailure(t *testing.T) {
	rec := &countingRecorder{}
	s := newSession(&fakeDeliverer{err: errors.New("bad mime")}, nil, rec)

	err := s.Data(strings.NewReader(testMessage))
	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 554, smtpErr.Code)
	assert.Equal(t, 1, rec.count(ResultFailed))
}

func TestIntakeStartStop(t *testing.T) {
	spool := mailsource.NewSpool(10, utils.NewTextProcessor(zap.NewNop(), 0), zap.NewNop())
	in := NewSMTPIntake(Settings{ListenAddress: "127.0.0.1:0"}, spool, nil, nil, zap.NewNop())

	assert.Nil(t, in.Addr())
	require.NoError(t, in.Start())
	assert.Error(t, in.Start(), "second start is refused")

	addr := in.Addr()
	require.NotNil(t, addr)

	c, err := smtp.Dial(addr.String())
	require.NoError(t, err)
	require.NoError(t, c.Hello("localhost"))
	require.NoError(t, c.Mail("alice@example.com", nil))
	require.NoError(t, c.Rcpt("bob@example.com", nil))
	w, err := c.Data()
	require.NoError(t, err)
	_, err = w.Write([]byte(testMessage))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, c.Quit())

	summaries, err := spool.FetchRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Urgent: sign-off", summaries[0].Subject)

	require.NoError(t, in.Stop())
	require.NoError(t, in.Stop())
	assert.Nil(t, in.Addr())
}
