package intake

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/mailsource"
	"github.com/NickCassab/email-buddy/internal/whitelist"
)

// Intake outcomes reported to the recorder
const (
	ResultAccepted          = "accepted"
	ResultRejectedRecipient = "rejected_recipient"
	ResultFailed            = "failed"
)

// Deliverer accepts raw messages received over SMTP
type Deliverer interface {
	Deliver(env mailsource.Envelope, raw []byte) (string, error)
}

// Recorder counts intake outcomes
type Recorder interface {
	IncIntake(result string)
}

// Settings configures the SMTP listener
type Settings struct {
	ListenAddress   string
	Domain          string
	MaxMessageBytes int64
	MaxRecipients   int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// SMTPIntake is an SMTP server that spools every accepted message for triage
type SMTPIntake struct {
	settings  Settings
	deliverer Deliverer
	allowed   *whitelist.Checker
	recorder  Recorder
	logger    *zap.Logger

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
}

// NewSMTPIntake creates an intake. Recipients outside allowed are refused;
// an empty checker accepts all recipients. recorder may be nil.
func NewSMTPIntake(settings Settings, deliverer Deliverer, allowed *whitelist.Checker, recorder Recorder, logger *zap.Logger) *SMTPIntake {
	if settings.Domain == "" {
		settings.Domain = "localhost"
	}
	if settings.MaxMessageBytes <= 0 {
		settings.MaxMessageBytes = 30 * 1024 * 1024
	}
	if settings.MaxRecipients <= 0 {
		settings.MaxRecipients = 50
	}
	if settings.ReadTimeout <= 0 {
		settings.ReadTimeout = 30 * time.Second
	}
	if settings.WriteTimeout <= 0 {
		settings.WriteTimeout = 30 * time.Second
	}
	if allowed == nil {
		allowed = whitelist.NewChecker(nil, nil)
	}
	return &SMTPIntake{
		settings:  settings,
		deliverer: deliverer,
		allowed:   allowed,
		recorder:  recorder,
		logger:    logger,
	}
}

// Name identifies the frontend in logs
func (i *SMTPIntake) Name() string {
	return "smtp-intake"
}

// Start binds the listen address and serves in the background
func (i *SMTPIntake) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.server != nil {
		return errors.New("smtp intake already started")
	}

	server := smtp.NewServer(&intakeBackend{intake: i})
	server.Addr = i.settings.ListenAddress
	server.Domain = i.settings.Domain
	server.ReadTimeout = i.settings.ReadTimeout
	server.WriteTimeout = i.settings.WriteTimeout
	server.MaxMessageBytes = i.settings.MaxMessageBytes
	server.MaxRecipients = i.settings.MaxRecipients
	server.AllowInsecureAuth = true

	l, err := net.Listen("tcp", i.settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", i.settings.ListenAddress, err)
	}
	i.server = server
	i.listener = l

	i.logger.Info("SMTP intake starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			i.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (i *SMTPIntake) Addr() net.Addr {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return nil
	}
	return i.listener.Addr()
}

// Stop closes the listener and all open sessions
func (i *SMTPIntake) Stop() error {
	i.mu.Lock()
	server := i.server
	i.server = nil
	i.listener = nil
	i.mu.Unlock()

	if server == nil {
		return nil
	}
	i.logger.Info("SMTP intake stopping")
	return server.Close()
}

func (i *SMTPIntake) record(result string) {
	if i.recorder != nil {
		i.recorder.IncIntake(result)
	}
}

type intakeBackend struct {
	intake *SMTPIntake
}

// NewSession creates a new SMTP session
func (b *intakeBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &intakeSession{intake: b.intake}, nil
}

type intakeSession struct {
	intake     *SMTPIntake
	sender     string
	recipients []string
}

func (s *intakeSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *intakeSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *intakeSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if !s.intake.allowed.Allows(to) {
		s.intake.logger.Info("Refusing recipient",
			zap.String("recipient", to),
			zap.String("recipient_domain", whitelist.DomainOf(to)))
		s.intake.record(ResultRejectedRecipient)
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Recipient domain not accepted",
		}
	}
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *intakeSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.intake.logger.Error("Failed to read message data", zap.Error(err))
		s.intake.record(ResultFailed)
		return err
	}

	id, err := s.intake.deliverer.Deliver(mailsource.Envelope{
		From: s.sender,
		To:   append([]string(nil), s.recipients...),
	}, raw)
	if err != nil {
		s.intake.logger.Error("Failed to spool message",
			zap.String("sender", s.sender),
			zap.Error(err))
		s.intake.record(ResultFailed)
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}

	s.intake.logger.Info("Spooled message",
		zap.String("id", id),
		zap.String("sender", s.sender),
		zap.String("sender_domain", whitelist.DomainOf(s.sender)),
		zap.Int("recipients", len(s.recipients)),
		zap.Int("bytes", len(raw)))
	s.intake.record(ResultAccepted)
	return nil
}

func (s *intakeSession) Logout() error {
	return nil
}
