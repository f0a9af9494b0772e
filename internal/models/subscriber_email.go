// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
)

// SubscriberEmail is an address that passed ParseSubscriberEmail.
// Code holding one never validates it again.
type SubscriberEmail struct {
	value string
}

// ParseSubscriberEmail validates raw as an email address.
func ParseSubscriberEmail(raw string) (SubscriberEmail, error) {
	if raw == "" {
		return SubscriberEmail{}, apperr.Validation("email_required", "email is required")
	}
	if strings.Count(raw, "@") != 1 || !govalidator.IsEmail(raw) {
		return SubscriberEmail{}, apperr.Validation("email_invalid", "email is not a valid address")
	}
	return SubscriberEmail{value: raw}, nil
}

func (e SubscriberEmail) String() string {
	return e.value
}

// IsZero reports whether e was never parsed.
func (e SubscriberEmail) IsZero() bool {
	return e.value == ""
}
