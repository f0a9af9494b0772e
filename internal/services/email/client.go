// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/secret"
)

const sendPath = "/v3.1/send"

// ClientConfig configures the email service provider API client.
type ClientConfig struct { //nolint:govet // fieldalignment not critical for config structs
	BaseURL       string
	Sender        models.SubscriberEmail
	APIKeyPublic  secret.Secret
	APIKeyPrivate secret.Secret
	Timeout       time.Duration
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientTracer records a span per send.
func WithClientTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// Client sends transactional email through the provider's HTTP API.
type Client struct {
	httpClient    *http.Client
	tracer        trace.Tracer
	authorization secret.Secret
	sendURL       string
	sender        models.SubscriberEmail
}

// NewClient creates a Client. The timeout covers the whole request and
// response exchange.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid email API base URL %q", cfg.BaseURL)
	}
	if cfg.Sender.IsZero() {
		return nil, errors.New("email sender is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("email timeout must be positive")
	}

	credentials := cfg.APIKeyPublic.Expose() + ":" + cfg.APIKeyPrivate.Expose()
	c := &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		tracer:        noop.NewTracerProvider().Tracer(""),
		authorization: secret.New("Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))),
		sendURL:       base.String() + sendPath,
		sender:        cfg.Sender,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type address struct {
	Email string `json:"Email"`
	Name  string `json:"Name"`
}

type sendRequest struct {
	From     address   `json:"From"`
	Subject  string    `json:"Subject"`
	TextPart string    `json:"TextPart"`
	HTMLPart string    `json:"HtmlPart"`
	To       []address `json:"To"`
}

// Send posts one message to the provider. Connection failures, timeouts and
// non-2xx responses are returned as delivery errors. Send never retries.
func (c *Client) Send(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error {
	ctx, span := c.tracer.Start(ctx, "email.Client.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	err := c.send(ctx, recipient, subject, htmlBody, textBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "email delivery failed")
	}
	return err
}

func (c *Client) send(ctx context.Context, recipient models.SubscriberEmail, subject, htmlBody, textBody string) error {
	payload, err := json.Marshal(sendRequest{
		From:     address{Email: c.sender.String(), Name: c.sender.String()},
		To:       []address{{Email: recipient.String(), Name: recipient.String()}},
		Subject:  subject,
		TextPart: textBody,
		HTMLPart: htmlBody,
	})
	if err != nil {
		return apperr.Delivery("encoding email request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(payload))
	if err != nil {
		return apperr.Delivery("creating email request", err)
	}
	req.Header.Set("Authorization", c.authorization.Expose())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Delivery("posting to email API", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Delivery("posting to email API", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
