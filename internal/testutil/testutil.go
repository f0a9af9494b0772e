// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/newsletter/internal/database"
	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/repository"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// NewMockDB creates a repository backed by go-sqlmock for failure scenarios.
func NewMockDB(t *testing.T) (*repository.Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = mockDB.Close()
	})
	return repository.New(sqlx.NewDb(mockDB, "sqlmock")), mock
}

// NewTestSubscriber creates a pending subscriber with a stored token.
func NewTestSubscriber(t *testing.T, repo *repository.Repository, email, token string) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	addr, err := models.ParseSubscriberEmail(email)
	require.NoError(t, err)
	name, err := models.ParseSubscriberName("Test Subscriber")
	require.NoError(t, err)

	var id uuid.UUID
	err = repo.WithTx(ctx, func(tx *repository.Tx) error {
		var txErr error
		if id, txErr = tx.InsertPendingSubscriber(ctx, addr, name); txErr != nil {
			return txErr
		}
		return tx.StoreToken(ctx, id, token)
	})
	require.NoError(t, err)
	return id
}

// NewDiscardLogger returns a logger that drops every record.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ESPRequest is a request captured by ESPServer.
type ESPRequest struct {
	Body          map[string]any
	Method        string
	Path          string
	Authorization string
	ContentType   string
}

// ESPServer is a fake email service provider API.
type ESPServer struct {
	*httptest.Server
	handler  http.HandlerFunc
	requests []ESPRequest
	mu       sync.Mutex
}

// NewESPServer starts a fake ESP that answers every request with status.
func NewESPServer(t *testing.T, status int) *ESPServer {
	t.Helper()
	s := &ESPServer{}
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := ESPRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
		}
		_ = json.NewDecoder(r.Body).Decode(&req.Body)

		s.mu.Lock()
		s.requests = append(s.requests, req)
		handler := s.handler
		s.mu.Unlock()

		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Respond replaces the handler used for subsequent requests.
func (s *ESPServer) Respond(h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Requests returns a copy of the captured requests.
func (s *ESPServer) Requests() []ESPRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ESPRequest(nil), s.requests...)
}
