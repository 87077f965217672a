// Package notify delivers best-effort email notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/pqrs-service/internal/config"
)

// Mailer sends one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ErrNoRecipient is returned when the destination address is empty.
var ErrNoRecipient = errors.New("mail recipient is empty")

// NewMailer returns an SMTP mailer when a relay is configured and a log mailer otherwise,
// throttled to the configured rate.
func NewMailer(cfg config.NotificationConfig, logger *zap.Logger) Mailer {
	var base Mailer
	if addr := cfg.SMTPAddr(); addr != "" {
		base = NewSMTPMailer(cfg)
		logger.Info("smtp mailer configured", zap.String("addr", addr))
	} else {
		base = NewLogMailer(logger)
		logger.Warn("NOTIFY_SMTP_HOST not set; emails are logged only")
	}
	return NewRateLimitedMailer(base, cfg.RatePerSecond, cfg.Burst)
}

// SMTPMailer relays through a plain SMTP server with optional PLAIN auth.
type SMTPMailer struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer from configuration.
func NewSMTPMailer(cfg config.NotificationConfig) *SMTPMailer {
	m := &SMTPMailer{
		addr: cfg.SMTPAddr(),
		host: cfg.SMTPHost,
		from: cfg.EmailFrom,
		send: smtp.SendMail,
	}
	if cfg.SMTPUsername != "" {
		m.auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(m.from, to, subject, htmlBody, time.Now())
	if err := m.send(m.addr, m.auth, m.from, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer returns a mailer for environments without SMTP.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	m.logger.Info("email (log only)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)),
	)
	return nil
}

// RateLimitedMailer throttles an underlying mailer with a token bucket.
type RateLimitedMailer struct {
	next    Mailer
	limiter *rate.Limiter
}

// NewRateLimitedMailer wraps next. A non-positive rate disables throttling.
func NewRateLimitedMailer(next Mailer, perSecond float64, burst int) *RateLimitedMailer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedMailer{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (m *RateLimitedMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail rate limit: %w", err)
	}
	return m.next.Send(ctx, to, subject, htmlBody)
}
