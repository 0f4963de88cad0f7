// Package mail delivers account notifications.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"net/url"

	"github.com/dajohi/goemail"

	"github.com/anonify/anonify/pkg/config"
)

// Dispatcher sends one message to one recipient.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTP delivers mail through an authenticated SMTPS relay.
type SMTP struct {
	client      *goemail.SMTP
	mailName    string
	mailAddress string
}

// NewSMTP builds a client for the smtps relay at host.
func NewSMTP(host, user, password, from string, skipVerify bool) (*SMTP, error) {
	u, err := url.Parse(fmt.Sprintf("smtps://%s:%s@%s", url.QueryEscape(user), url.QueryEscape(password), host))
	if err != nil {
		return nil, fmt.Errorf("parse smtp host: %w", err)
	}
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse mail from: %w", err)
	}
	client, err := goemail.NewSMTP(u.String(), &tls.Config{InsecureSkipVerify: skipVerify})
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &SMTP{client: client, mailName: addr.Name, mailAddress: addr.Address}, nil
}

// Send delivers body to a single recipient.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := goemail.NewMessage(s.mailAddress, subject, body)
	msg.SetName(s.mailName)
	msg.AddTo(to)
	return s.client.Send(msg)
}

// LogDispatcher records messages in the log instead of sending them. Bodies
// carry verification codes, so they are only logged when logBody is set.
type LogDispatcher struct {
	logger  *slog.Logger
	logBody bool
}

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger, logBody bool) *LogDispatcher {
	return &LogDispatcher{logger: logger, logBody: logBody}
}

// Send logs the message.
func (d *LogDispatcher) Send(_ context.Context, to, subject, body string) error {
	attrs := []any{"to", to, "subject", subject}
	if d.logBody {
		attrs = append(attrs, "body", body)
	}
	d.logger.Info("mail not sent: smtp disabled", attrs...)
	return nil
}

// FromConfig returns an SMTP dispatcher when host and credentials are set and
// a log dispatcher otherwise.
func FromConfig(cfg config.APIConfig, logger *slog.Logger) (Dispatcher, error) {
	if cfg.SMTPHost == "" || cfg.SMTPUser == "" || cfg.SMTPPassword == "" {
		logger.Warn("smtp not configured; verification mail will be logged")
		return NewLogDispatcher(logger, cfg.MailLogBody), nil
	}
	return NewSMTP(cfg.SMTPHost, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.SMTPSkipVerify)
}
