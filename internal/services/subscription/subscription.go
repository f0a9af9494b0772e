// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package subscription implements sign-up with email confirmation.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
	"codeberg.org/oliverandrich/newsletter/internal/i18n"
	"codeberg.org/oliverandrich/newsletter/internal/metrics"
	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/repository"
	"codeberg.org/oliverandrich/newsletter/internal/services/email"
	"codeberg.org/oliverandrich/newsletter/internal/services/token"
)

// ConfirmPath is the route that resolves confirmation links.
const ConfirmPath = "/subscriptions/confirm"

// TokenQueryParam carries the token in confirmation links.
const TokenQueryParam = "subscription_token"

// DefaultMaxDispatchAttempts caps how often a confirmation email is tried
// before redelivery gives up on it.
const DefaultMaxDispatchAttempts = 5

var errUnknownToken = apperr.NotFound("token_unknown", "unknown subscription token")

// TokenIssuer produces confirmation tokens.
type TokenIssuer interface {
	Issue() (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the collectors updated by the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer records spans for sign-up and confirmation.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithMaxDispatchAttempts caps delivery attempts per confirmation email.
// Values below 1 keep the default.
func WithMaxDispatchAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// Service coordinates storage and email delivery for subscriptions.
type Service struct {
	repo        *repository.Repository
	sender      email.Sender
	issuer      TokenIssuer
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	baseURL     string
	maxAttempts int
}

// NewService creates a subscription service. baseURL is the public URL
// confirmation links point to.
func NewService(repo *repository.Repository, sender email.Sender, issuer TokenIssuer, baseURL string, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		sender:      sender,
		issuer:      issuer,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer(""),
		maxAttempts: DefaultMaxDispatchAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	return s
}

// Subscribe validates the input, stores a pending subscriber together with
// a fresh token and emails the confirmation link.
//
// The subscriber and token are committed before the email is sent. When
// sending fails the subscriber stays pending, the token stays undispatched
// and a delivery error is returned.
func (s *Service) Subscribe(ctx context.Context, rawName, rawEmail string) (err error) {
	ctx, span := s.tracer.Start(ctx, "subscription.Subscribe")
	defer func() {
		endSpan(span, err)
	}()

	name, err := models.ParseSubscriberName(rawName)
	if err != nil {
		return err
	}
	recipient, err := models.ParseSubscriberEmail(rawEmail)
	if err != nil {
		return err
	}

	var subscriptionToken string
	err = s.repo.WithTx(ctx, func(tx *repository.Tx) error {
		id, err := tx.InsertPendingSubscriber(ctx, recipient, name)
		if err != nil {
			return storageError("insert pending subscriber", err)
		}
		span.SetAttributes(attribute.String("subscriber.id", id.String()))

		subscriptionToken, err = s.issuer.Issue()
		if err != nil {
			return fmt.Errorf("issue subscription token: %w", err)
		}

		if err := tx.StoreToken(ctx, id, subscriptionToken); err != nil {
			return storageError("store subscription token", err)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Storage("save new subscriber", err)
		}
		return err
	}
	s.metrics.IncrementSubscriptionsCreated()

	if err := s.dispatch(ctx, recipient, subscriptionToken); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription created", "locale", i18n.GetLocale(ctx))
	return nil
}

// Confirm resolves subscriptionToken and marks its subscriber confirmed.
// Malformed and unknown tokens produce the same not-found error. Confirming
// twice succeeds.
func (s *Service) Confirm(ctx context.Context, subscriptionToken string) (err error) {
	ctx, span := s.tracer.Start(ctx, "subscription.Confirm")
	defer func() {
		endSpan(span, err)
	}()

	if !token.IsWellFormed(subscriptionToken) {
		return errUnknownToken
	}

	id, ok, err := s.repo.FindSubscriberIDByToken(ctx, subscriptionToken)
	if err != nil {
		return apperr.Storage("look up subscription token", err)
	}
	if !ok {
		return errUnknownToken
	}

	if err := s.repo.MarkConfirmed(ctx, id); err != nil {
		return apperr.Storage("confirm subscriber", err)
	}
	s.metrics.IncrementConfirmations()
	return nil
}

// RedeliverPending resends confirmation emails that were never dispatched
// for tokens created and last attempted before cutoff. It returns the number
// of emails sent. Individual send failures are counted against the token and
// left for a later run until the attempt cap is reached.
func (s *Service) RedeliverPending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	pending, err := s.repo.ListUndispatchedTokens(ctx, cutoff, s.maxAttempts, limit)
	if err != nil {
		return 0, apperr.Storage("list undispatched tokens", err)
	}

	sent := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		recipient, err := models.ParseSubscriberEmail(p.Email)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping redelivery to invalid stored address",
				"subscriber_id", p.SubscriberID)
			continue
		}

		if err := s.dispatch(ctx, recipient, p.Token); err != nil {
			s.logger.WarnContext(ctx, "confirmation email redelivery failed",
				"subscriber_id", p.SubscriberID,
				"attempt", p.Attempts+1,
				"error", apperr.Chain(err))
			continue
		}
		s.metrics.IncrementRedelivered()
		sent++
	}
	return sent, nil
}

// ConfirmationLink builds the link emailed to the subscriber.
func (s *Service) ConfirmationLink(subscriptionToken string) (string, error) {
	u, err := url.Parse(s.baseURL + ConfirmPath)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	u.RawQuery = url.Values{TokenQueryParam: {subscriptionToken}}.Encode()
	return u.String(), nil
}

func (s *Service) dispatch(ctx context.Context, recipient models.SubscriberEmail, subscriptionToken string) error {
	link, err := s.ConfirmationLink(subscriptionToken)
	if err != nil {
		return apperr.Delivery("build confirmation link", err)
	}

	subject := i18n.T(ctx, "confirmation_email_subject")
	body := i18n.TData(ctx, "confirmation_email_body", map[string]any{
		"ConfirmationLink": link,
	})

	start := time.Now()
	err = s.sender.Send(ctx, recipient, subject, body, body)
	s.metrics.ObserveDelivery(start, err)
	if err != nil {
		if recErr := s.repo.RecordDispatchAttempt(ctx, subscriptionToken); recErr != nil {
			s.logger.WarnContext(ctx, "failed to record confirmation email attempt",
				"error", apperr.Chain(recErr))
		}
		return apperr.Delivery("send confirmation email", err)
	}

	if err := s.repo.MarkTokenDispatched(ctx, subscriptionToken); err != nil {
		// The email went out; a stale flag only means a duplicate resend.
		s.logger.WarnContext(ctx, "failed to mark confirmation email dispatched",
			"error", apperr.Chain(err))
	}
	return nil
}

func storageError(op string, err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return apperr.Conflict(op, err)
	}
	return apperr.Storage(op, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}
