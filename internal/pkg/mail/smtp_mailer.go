package mail

import (
	"context"
	"crypto/tls"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
	"github.com/ManuelReschke/ClientHub/internal/pkg/logger"
	"github.com/ManuelReschke/ClientHub/internal/pkg/notify"
)

// SMTPTransport sends notification emails through an SMTP server.
type SMTPTransport struct {
	dialer *gomail.Dialer
	log    *zap.Logger
}

func NewSMTPTransport(cfg config.SMTPConfig, log *zap.Logger) *SMTPTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTPTransport{dialer: d, log: logger.OrNop(log).Named("mail")}
}

func (t *SMTPTransport) Send(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.dialer.DialAndSend(buildMessage(msg)); err != nil {
		return err
	}
	t.log.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func buildMessage(msg notify.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return m
}

// LogTransport only logs messages. It is used when no SMTP host is configured.
type LogTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) *LogTransport {
	return &LogTransport{log: logger.OrNop(log).Named("mail")}
}

func (t *LogTransport) Send(_ context.Context, msg notify.Message) error {
	t.log.Info("email not sent, smtp disabled",
		zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Int("html_bytes", len(msg.HTML)))
	return nil
}

// NewTransport picks the SMTP transport when a host is configured.
func NewTransport(cfg config.SMTPConfig, log *zap.Logger) notify.Transport {
	if cfg.Enabled() {
		return NewSMTPTransport(cfg, log)
	}
	return NewLogTransport(log)
}
