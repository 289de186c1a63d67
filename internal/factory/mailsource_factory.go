package factory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/adapters/mailsource"
	"github.com/NickCassab/email-buddy/internal/config"
	"github.com/NickCassab/email-buddy/internal/core"
	"github.com/NickCassab/email-buddy/internal/metrics"
	"github.com/NickCassab/email-buddy/internal/utils"
)

// MailSourceFactory creates mail sources based on configuration
type MailSourceFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	metrics       *metrics.Metrics

	spoolOnce sync.Once
	spool     *mailsource.Spool
}

// NewMailSourceFactory creates a new mail source factory
func NewMailSourceFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor, m *metrics.Metrics) *MailSourceFactory {
	return &MailSourceFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
		metrics:       m,
	}
}

// Spool returns the process-wide spool shared by the spool source and the SMTP intake
func (f *MailSourceFactory) Spool() *mailsource.Spool {
	f.spoolOnce.Do(func() {
		f.spool = mailsource.NewSpool(f.cfg.GetIntake().Capacity, f.textProcessor, f.logger)
	})
	return f.spool
}

// CreateMailSource creates the configured mail source, wrapped in a circuit breaker when enabled
func (f *MailSourceFactory) CreateMailSource() (core.MailSource, error) {
	mailCfg := f.cfg.GetMail()
	if err := config.Check(mailCfg); err != nil {
		return nil, core.NewError(core.KindConfig, "create_mail_source", "", err)
	}

	source, err := f.createInner(mailCfg.Source)
	if err != nil {
		return nil, err
	}

	breakerCfg, err := f.cfg.GetBreaker()
	if err != nil {
		return nil, core.NewError(core.KindConfig, "create_mail_source", "", err)
	}
	if !breakerCfg.Enabled {
		return source, nil
	}
	if err := config.Check(breakerCfg); err != nil {
		return nil, core.NewError(core.KindConfig, "create_mail_source", "", err)
	}

	name := mailCfg.Source
	return mailsource.NewBreakerSource(name, source, mailsource.BreakerSettings{
		MaxRequests:  breakerCfg.MaxRequests,
		Interval:     breakerCfg.Interval,
		Timeout:      breakerCfg.Timeout,
		FailureRatio: breakerCfg.FailureRatio,
		MinRequests:  breakerCfg.MinRequests,
	}, f.logger, func(open bool) {
		if f.metrics != nil {
			f.metrics.SetBreakerOpen(name, open)
		}
	}), nil
}

func (f *MailSourceFactory) createInner(sourceType string) (core.MailSource, error) {
	switch sourceType {
	case "gmail":
		gmailCfg := f.cfg.GetGmail()
		if err := config.Check(gmailCfg); err != nil {
			return nil, core.NewError(core.KindConfig, "create_mail_source", "", err)
		}
		// The token source refreshes with this context for the life of the source
		return mailsource.NewGmailSource(context.Background(), mailsource.GmailSettings{
			CredentialsFile: gmailCfg.CredentialsFile,
			TokenFile:       gmailCfg.TokenFile,
			UserID:          gmailCfg.UserID,
			Label:           gmailCfg.Label,
		}, f.textProcessor, f.logger)
	case "imap":
		imapCfg := f.cfg.GetIMAP()
		if err := config.Check(imapCfg); err != nil {
			return nil, core.NewError(core.KindConfig, "create_mail_source", "", err)
		}
		return mailsource.NewIMAPSource(mailsource.IMAPSettings{
			Address:  imapCfg.Address,
			Username: imapCfg.Username,
			Password: imapCfg.Password,
			Mailbox:  imapCfg.Mailbox,
			Security: imapCfg.Security,
		}, f.textProcessor, f.logger), nil
	case "spool":
		return f.Spool(), nil
	default:
		return nil, fmt.Errorf("unsupported mail source: %s", sourceType)
	}
}
