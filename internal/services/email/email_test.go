// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
	"codeberg.org/oliverandrich/newsletter/internal/config"
	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/secret"
)

func validSMTPConfig() *config.SMTPConfig {
	return &config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "testuser",
		Password: secret.New("testpass"),
		From:     "noreply@example.com",
		FromName: "Newsletter",
		TLS:      true,
		Timeout:  time.Second,
	}
}

func TestNewSMTPSender(t *testing.T) {
	s, err := NewSMTPSender(validSMTPConfig())

	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestNewSMTPSender_MissingHost(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.Host = ""

	_, err := NewSMTPSender(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host is required")
}

func TestNewSMTPSender_MissingFrom(t *testing.T) {
	cfg := validSMTPConfig()
	cfg.From = ""

	_, err := NewSMTPSender(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP from address is required")
}

func TestBuildMessage(t *testing.T) {
	s, err := NewSMTPSender(validSMTPConfig())
	require.NoError(t, err)
	recipient, err := models.ParseSubscriberEmail("ursula_le_guin@gmail.com")
	require.NoError(t, err)

	msg, err := s.buildMessage(recipient, "Confirm your subscription", "<p>link</p>", "link")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "ursula_le_guin@gmail.com")
	assert.Contains(t, raw, "noreply@example.com")
	assert.Contains(t, raw, "Confirm your subscription")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestSMTPSend_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := validSMTPConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.TLS = false
	s, err := NewSMTPSender(cfg)
	require.NoError(t, err)
	recipient, err := models.ParseSubscriberEmail("a@example.com")
	require.NoError(t, err)

	err = s.Send(context.Background(), recipient, "s", "h", "t")

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDelivery))
	assert.NotContains(t, apperr.Chain(err), "testpass")
}
