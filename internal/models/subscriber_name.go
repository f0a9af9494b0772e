// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"strings"
	"unicode/utf8"

	"codeberg.org/oliverandrich/newsletter/internal/apperr"
)

// MaxNameLength is the maximum subscriber name length in runes.
const MaxNameLength = 256

// forbiddenNameChars may not appear in a subscriber name.
const forbiddenNameChars = `/()"<>\{}`

// SubscriberName is a display name that passed ParseSubscriberName.
type SubscriberName struct {
	value string
}

// ParseSubscriberName rejects blank, overlong and markup-like names.
func ParseSubscriberName(raw string) (SubscriberName, error) {
	if strings.TrimSpace(raw) == "" {
		return SubscriberName{}, apperr.Validation("name_required", "name is required")
	}
	if utf8.RuneCountInString(raw) > MaxNameLength {
		return SubscriberName{}, apperr.Validation("name_too_long", "name is too long")
	}
	if strings.ContainsAny(raw, forbiddenNameChars) {
		return SubscriberName{}, apperr.Validation("name_forbidden_characters", "name contains forbidden characters")
	}
	return SubscriberName{value: raw}, nil
}

func (n SubscriberName) String() string {
	return n.value
}
