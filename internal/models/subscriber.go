// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of a subscriber.
type SubscriptionStatus string

const (
	StatusPendingConfirmation SubscriptionStatus = "pending_confirmation"
	StatusConfirmed           SubscriptionStatus = "confirmed"
)

// Subscriber is a row of the subscriptions table.
type Subscriber struct { //nolint:govet // fieldalignment: readability over optimization
	ID           uuid.UUID          `db:"id" json:"id"`
	Email        string             `db:"email" json:"email"`
	Name         string             `db:"name" json:"name"`
	Status       SubscriptionStatus `db:"status" json:"status"`
	SubscribedAt time.Time          `db:"subscribed_at" json:"subscribed_at"`
}

// IsConfirmed reports whether the subscriber completed confirmation.
func (s *Subscriber) IsConfirmed() bool {
	return s.Status == StatusConfirmed
}

// SubscriptionToken links a confirmation token to its subscriber.
type SubscriptionToken struct { //nolint:govet // fieldalignment: readability over optimization
	Token         string     `db:"subscription_token" json:"-"`
	SubscriberID  uuid.UUID  `db:"subscriber_id" json:"subscriber_id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	DispatchedAt  *time.Time `db:"dispatched_at" json:"dispatched_at,omitempty"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	Attempts      int        `db:"attempts" json:"attempts"`
}

// PendingDispatch is a token whose confirmation email was never accepted by
// the mail transport, joined with the recipient address.
type PendingDispatch struct {
	Token        string    `db:"subscription_token"`
	SubscriberID uuid.UUID `db:"subscriber_id"`
	Email        string    `db:"email"`
	CreatedAt    time.Time `db:"created_at"`
	Attempts     int       `db:"attempts"`
}
