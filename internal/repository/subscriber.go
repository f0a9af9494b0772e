// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"codeberg.org/oliverandrich/newsletter/internal/models"
)

// InsertPendingSubscriber creates a subscriber awaiting confirmation.
// A duplicate email yields an error wrapping ErrConflict.
func (t *Tx) InsertPendingSubscriber(ctx context.Context, email models.SubscriberEmail, name models.SubscriberName) (uuid.UUID, error) {
	id := uuid.New()
	_, err := t.tx.ExecContext(ctx,
		t.tx.Rebind(`INSERT INTO subscriptions (id, email, name, status, subscribed_at) VALUES (?, ?, ?, ?, ?)`),
		id, email.String(), name.String(), models.StatusPendingConfirmation, time.Now().UTC())
	if err != nil {
		return uuid.Nil, wrapError(err)
	}
	return id, nil
}

// GetSubscriberByID retrieves a subscriber by ID.
func (r *Repository) GetSubscriberByID(ctx context.Context, id uuid.UUID) (*models.Subscriber, error) {
	var s models.Subscriber
	err := r.db.GetContext(ctx, &s,
		r.db.Rebind(`SELECT id, email, name, status, subscribed_at FROM subscriptions WHERE id = ?`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// GetSubscriberByEmail retrieves a subscriber by email address.
func (r *Repository) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	var s models.Subscriber
	err := r.db.GetContext(ctx, &s,
		r.db.Rebind(`SELECT id, email, name, status, subscribed_at FROM subscriptions WHERE email = ?`), email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// MarkConfirmed moves a subscriber to confirmed. Confirming an already
// confirmed subscriber is a no-op.
func (r *Repository) MarkConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE subscriptions SET status = ? WHERE id = ? AND status = ?`),
		models.StatusConfirmed, id, models.StatusPendingConfirmation)
	return wrapError(err)
}

// CountSubscribers returns the number of subscribers, optionally filtered by status.
func (r *Repository) CountSubscribers(ctx context.Context, status models.SubscriptionStatus) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = r.db.GetContext(ctx, &count, `SELECT count(*) FROM subscriptions`)
	} else {
		err = r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT count(*) FROM subscriptions WHERE status = ?`), status)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
