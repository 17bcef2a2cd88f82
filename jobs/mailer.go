package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer. An empty host yields a mailer that only logs.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return logMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// Send delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, []string{msg.To}, buildMessage(m.cfg.From, msg)); err != nil {
		return fmt.Errorf("jobs: smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, msg SendEmailPayload) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

type logMailer struct {
	logger *slog.Logger
}

func (m logMailer) Send(_ context.Context, msg SendEmailPayload) error {
	if m.logger != nil {
		m.logger.Info("mail not sent, smtp disabled", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	}
	return nil
}
