// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"codeberg.org/oliverandrich/newsletter/internal/models"
)

// StoreToken associates a confirmation token with a subscriber.
// A token collision yields an error wrapping ErrConflict.
func (t *Tx) StoreToken(ctx context.Context, subscriberID uuid.UUID, token string) error {
	_, err := t.tx.ExecContext(ctx,
		t.tx.Rebind(`INSERT INTO subscription_tokens (subscription_token, subscriber_id, created_at) VALUES (?, ?, ?)`),
		token, subscriberID, time.Now().UTC())
	return wrapError(err)
}

// FindSubscriberIDByToken resolves a token to its subscriber.
// The boolean is false when no such token exists.
func (r *Repository) FindSubscriberIDByToken(ctx context.Context, token string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.db.GetContext(ctx, &id,
		r.db.Rebind(`SELECT subscriber_id FROM subscription_tokens WHERE subscription_token = ?`), token)
	if err != nil {
		err = wrapError(err)
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// GetToken retrieves a token row.
func (r *Repository) GetToken(ctx context.Context, token string) (*models.SubscriptionToken, error) {
	var t models.SubscriptionToken
	err := r.db.GetContext(ctx, &t,
		r.db.Rebind(`SELECT subscription_token, subscriber_id, created_at, dispatched_at, attempts, last_attempt_at
			FROM subscription_tokens WHERE subscription_token = ?`), token)
	if err != nil {
		return nil, wrapError(err)
	}
	return &t, nil
}

// MarkTokenDispatched records that the confirmation email for token was
// accepted by the mail transport.
func (r *Repository) MarkTokenDispatched(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE subscription_tokens SET dispatched_at = ? WHERE subscription_token = ? AND dispatched_at IS NULL`),
		time.Now().UTC(), token)
	return wrapError(err)
}

// RecordDispatchAttempt counts a failed attempt to deliver the
// confirmation email for token.
func (r *Repository) RecordDispatchAttempt(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE subscription_tokens SET attempts = attempts + 1, last_attempt_at = ?
			WHERE subscription_token = ? AND dispatched_at IS NULL`),
		time.Now().UTC(), token)
	return wrapError(err)
}

// ListUndispatchedTokens returns tokens of pending subscribers whose
// confirmation email was never dispatched. Only tokens created and last
// attempted before cutoff with fewer than maxAttempts attempts qualify.
// Tokens with the fewest attempts come first, then the oldest, so
// addresses that keep failing cannot starve the rest.
func (r *Repository) ListUndispatchedTokens(ctx context.Context, cutoff time.Time, maxAttempts, limit int) ([]models.PendingDispatch, error) {
	var pending []models.PendingDispatch
	err := r.db.SelectContext(ctx, &pending, r.db.Rebind(`
		SELECT t.subscription_token, t.subscriber_id, s.email, t.created_at, t.attempts
		FROM subscription_tokens t
		JOIN subscriptions s ON s.id = t.subscriber_id
		WHERE t.dispatched_at IS NULL
		  AND s.status = ?
		  AND t.created_at < ?
		  AND (t.last_attempt_at IS NULL OR t.last_attempt_at < ?)
		  AND t.attempts < ?
		ORDER BY t.attempts, t.created_at
		LIMIT ?`),
		models.StatusPendingConfirmation, cutoff.UTC(), cutoff.UTC(), maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	return pending, nil
}
