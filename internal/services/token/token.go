// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Length is the number of characters in a subscription token.
	Length = 25
	// alphabet for subscription tokens (ASCII letters and digits).
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// maxByte is the largest multiple of len(alphabet) that fits in a byte.
	// Bytes at or above it are discarded so every character is equally likely.
	maxByte = 256 - (256 % len(alphabet))
)

// Issuer generates subscription confirmation tokens.
type Issuer struct {
	random io.Reader
}

// NewIssuer creates an issuer backed by crypto/rand.
func NewIssuer() *Issuer {
	return &Issuer{random: rand.Reader}
}

// NewIssuerWithReader creates an issuer that draws bytes from r.
func NewIssuerWithReader(r io.Reader) *Issuer {
	return &Issuer{random: r}
}

// Issue returns a new random token of Length characters.
func (i *Issuer) Issue() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)

	for len(out) < Length {
		if _, err := io.ReadFull(i.random, buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}

	return string(out), nil
}

// IsWellFormed reports whether s has the shape of an issued token.
func IsWellFormed(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isDigit := c >= '0' && c <= '9'
		isLower := c >= 'a' && c <= 'z'
		isUpper := c >= 'A' && c <= 'Z'
		if !isDigit && !isLower && !isUpper {
			return false
		}
	}
	return true
}
