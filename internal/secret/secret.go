// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package secret provides a string wrapper that never renders its value.
package secret

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

const redacted = "[REDACTED]"

// Secret holds a credential. Printing, logging or JSON-encoding it yields a
// placeholder; only Expose returns the real value. The value sits behind a
// pointer so a Secret embedded in an unexported field prints as an address.
type Secret struct {
	value *string
}

// New wraps value.
func New(value string) Secret {
	return Secret{value: &value}
}

// Expose returns the wrapped value.
func (s Secret) Expose() string {
	if s.value == nil {
		return ""
	}
	return *s.value
}

// IsEmpty reports whether no value is held.
func (s Secret) IsEmpty() bool {
	return s.Expose() == ""
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "secret.Secret(" + redacted + ")"
}

// Format covers every fmt verb, including %#v and %q.
func (s Secret) Format(f fmt.State, verb rune) {
	switch verb {
	case 'q':
		_, _ = fmt.Fprintf(f, "%q", redacted)
	case 'v':
		if f.Flag('#') {
			_, _ = f.Write([]byte(s.GoString()))
			return
		}
		_, _ = f.Write([]byte(redacted))
	default:
		_, _ = f.Write([]byte(redacted))
	}
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}
