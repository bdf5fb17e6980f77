package agent

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-agent/backend/internal/logger"
)

// Email is a fully rendered message ready for delivery.
type Email struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPConfig describes the relay used by SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer delivers mail through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewSMTPMailer returns a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// Send builds a MIME message and hands it to the relay.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.sendMail(addr, auth, email.From, []string{email.To}, buildMIMEMessage(email, m.now())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", email.To, err)
	}
	return nil
}

func buildMIMEMessage(email Email, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + sanitizeHeader(email.From) + "\r\n")
	b.WriteString("To: " + sanitizeHeader(email.To) + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(email.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(email.HTMLBody)
	return []byte(b.String())
}

// sanitizeHeader strips line breaks so user input cannot inject headers.
func sanitizeHeader(value string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(value)
}

// LogMailer only records the email. It stands in when no SMTP relay is configured.
type LogMailer struct {
	log zerolog.Logger
}

// NewLogMailer returns a LogMailer writing to the mailer component logger.
func NewLogMailer() *LogMailer {
	return &LogMailer{log: logger.Component("mailer")}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.log.Info().
		Str("from", email.From).
		Str("to", email.To).
		Str("subject", email.Subject).
		Int("bodyBytes", len(email.HTMLBody)).
		Msg("smtp relay not configured, email logged instead of sent")
	return nil
}
