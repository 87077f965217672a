package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/pqrs-service/internal/config"
)

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func fakeSMTP(cfg config.NotificationConfig, err error) (*SMTPMailer, *[]sentMail) {
	var sent []sentMail
	m := NewSMTPMailer(cfg)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)})
		return err
	}
	return m, &sent
}

func TestSMTPMailerSend(t *testing.T) {
	m, sent := fakeSMTP(config.NotificationConfig{
		EmailFrom:    "pqrs@example.com",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     2525,
		SMTPUsername: "user",
		SMTPPassword: "secret",
	}, nil)

	err := m.Send(context.Background(), "ana@example.com", "Respuesta a tu solicitud", "<p>hola</p>")
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	assert.Equal(t, "smtp.example.com:2525", mail.addr)
	assert.NotNil(t, mail.auth)
	assert.Equal(t, "pqrs@example.com", mail.from)
	assert.Equal(t, []string{"ana@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "To: ana@example.com\r\n")
	assert.Contains(t, mail.msg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(mail.msg, "\r\n\r\n<p>hola</p>"))
}

func TestSMTPMailerErrors(t *testing.T) {
	m, sent := fakeSMTP(config.NotificationConfig{SMTPHost: "smtp.example.com", SMTPPort: 25}, errors.New("550 rejected"))

	assert.ErrorIs(t, m.Send(context.Background(), "  ", "s", "b"), ErrNoRecipient)
	assert.Empty(t, *sent)

	err := m.Send(context.Background(), "ana@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550 rejected")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "ana@example.com", "s", "b"), context.Canceled)
}

func TestBuildMessageEncodesSubject(t *testing.T) {
	msg := string(buildMessage("a@example.com", "b@example.com", "Solicitud próxima a vencer", "x", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "Date: Tue, 02 Jan 2024 03:04:05 +0000\r\n")
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	require.NoError(t, m.Send(context.Background(), "ana@example.com", "Nueva solicitud", "<p>x</p>"))
	assert.ErrorIs(t, m.Send(context.Background(), "", "s", "b"), ErrNoRecipient)

	entries := logs.FilterMessage("email (log only)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ana@example.com", entries[0].ContextMap()["to"])
}

type countingMailer struct{ calls int }

func (m *countingMailer) Send(context.Context, string, string, string) error {
	m.calls++
	return nil
}

func TestRateLimitedMailer(t *testing.T) {
	next := &countingMailer{}
	m := NewRateLimitedMailer(next, 0.001, 1)

	require.NoError(t, m.Send(context.Background(), "a@example.com", "s", "b"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Send(ctx, "a@example.com", "s", "b")
	require.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestRateLimitedMailerUnlimited(t *testing.T) {
	next := &countingMailer{}
	m := NewRateLimitedMailer(next, 0, 0)
	for i := 0; i < 20; i++ {
		require.NoError(t, m.Send(context.Background(), "a@example.com", "s", "b"))
	}
	assert.Equal(t, 20, next.calls)
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	m := NewMailer(config.NotificationConfig{}, zap.NewNop())
	limited, ok := m.(*RateLimitedMailer)
	require.True(t, ok)
	_, isLog := limited.next.(*LogMailer)
	assert.True(t, isLog)
}
