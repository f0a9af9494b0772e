// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"codeberg.org/oliverandrich/newsletter/internal/database"
	"codeberg.org/oliverandrich/newsletter/internal/repository"
	"codeberg.org/oliverandrich/newsletter/internal/testutil"
)

func openFileDB(dir string) (*sqlx.DB, error) {
	return database.Open(filepath.Join(dir, "test.db"))
}

func TestStoreToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	id := testutil.NewTestSubscriber(t, repo, "token@example.com", "abcdefghijklmnopqrstuvwxy")

	tok, err := repo.GetToken(ctx, "abcdefghijklmnopqrstuvwxy")
	require.NoError(t, err)
	assert.Equal(t, id, tok.SubscriberID)
	assert.Nil(t, tok.DispatchedAt)
	assert.False(t, tok.CreatedAt.IsZero())
}

func TestStoreToken_Collision(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestSubscriber(t, repo, "first@example.com", "collidingtoken00000000000")

	err := repo.WithTx(ctx, func(tx *repository.Tx) error {
		id, err := tx.InsertPendingSubscriber(ctx, mustEmail(t, "second@example.com"), mustName(t, "Second"))
		if err != nil {
			return err
		}
		return tx.StoreToken(ctx, id, "collidingtoken00000000000")
	})

	require.ErrorIs(t, err, repository.ErrConflict)
	_, err = repo.GetSubscriberByEmail(ctx, "second@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound, "subscriber insert must roll back with the token")
}

func TestStoreToken_UnknownSubscriber(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx *repository.Tx) error {
		return tx.StoreToken(ctx, uuid.New(), "orphanedtoken000000000000")
	})

	assert.Error(t, err)
}

func TestFindSubscriberIDByToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	id := testutil.NewTestSubscriber(t, repo, "find@example.com", "findme0000000000000000000")

	got, ok, err := repo.FindSubscriberIDByToken(context.Background(), "findme0000000000000000000")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestFindSubscriberIDByToken_Unknown(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	got, ok, err := repo.FindSubscriberIDByToken(context.Background(), "doesnotexist0000000000000")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, got)
}

func TestFindSubscriberIDByToken_StorageFailure(t *testing.T) {
	repo, mock := testutil.NewMockDB(t)
	mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
		WillReturnError(errors.New("no such table: subscription_tokens"))

	_, ok, err := repo.FindSubscriberIDByToken(context.Background(), "sometoken")

	require.Error(t, err)
	assert.False(t, ok)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSubscriberIDByToken_Found_Mock(t *testing.T) {
	repo, mock := testutil.NewMockDB(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT subscriber_id FROM subscription_tokens").
		WithArgs("sometoken").
		WillReturnRows(sqlmock.NewRows([]string{"subscriber_id"}).AddRow(id.String()))

	got, ok, err := repo.FindSubscriberIDByToken(context.Background(), "sometoken")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestMarkTokenDispatched(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestSubscriber(t, repo, "dispatch@example.com", "dispatch00000000000000000")

	require.NoError(t, repo.MarkTokenDispatched(ctx, "dispatch00000000000000000"))

	tok, err := repo.GetToken(ctx, "dispatch00000000000000000")
	require.NoError(t, err)
	require.NotNil(t, tok.DispatchedAt)
	first := *tok.DispatchedAt

	require.NoError(t, repo.MarkTokenDispatched(ctx, "dispatch00000000000000000"))
	tok, err = repo.GetToken(ctx, "dispatch00000000000000000")
	require.NoError(t, err)
	assert.True(t, first.Equal(*tok.DispatchedAt), "dispatch time must not move once set")
}

func TestListUndispatchedTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestSubscriber(t, repo, "a@example.com", "aaaaaaaaaaaaaaaaaaaaaaaaa")
	testutil.NewTestSubscriber(t, repo, "b@example.com", "bbbbbbbbbbbbbbbbbbbbbbbbb")
	confirmedID := testutil.NewTestSubscriber(t, repo, "c@example.com", "ccccccccccccccccccccccccc")
	require.NoError(t, repo.MarkTokenDispatched(ctx, "bbbbbbbbbbbbbbbbbbbbbbbbb"))
	require.NoError(t, repo.MarkConfirmed(ctx, confirmedID))

	pending, err := repo.ListUndispatchedTokens(ctx, time.Now().Add(time.Minute), 5, 10)

	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaa", pending[0].Token)
	assert.Equal(t, "a@example.com", pending[0].Email)
}

func TestListUndispatchedTokens_RespectsCutoffAndLimit(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestSubscriber(t, repo, "a@example.com", "aaaaaaaaaaaaaaaaaaaaaaaaa")
	testutil.NewTestSubscriber(t, repo, "b@example.com", "bbbbbbbbbbbbbbbbbbbbbbbbb")

	none, err := repo.ListUndispatchedTokens(ctx, time.Now().Add(-time.Hour), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	one, err := repo.ListUndispatchedTokens(ctx, time.Now().Add(time.Minute), 5, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestRecordDispatchAttempt(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestSubscriber(t, repo, "retry@example.com", "retry0000000000000000000a")

	require.NoError(t, repo.RecordDispatchAttempt(ctx, "retry0000000000000000000a"))
	require.NoError(t, repo.RecordDispatchAttempt(ctx, "retry0000000000000000000a"))

	tok, err := repo.GetToken(ctx, "retry0000000000000000000a")
	require.NoError(t, err)
	assert.Equal(t, 2, tok.Attempts)
	require.NotNil(t, tok.LastAttemptAt)
	assert.Nil(t, tok.DispatchedAt)
}

func TestListUndispatchedTokens_FewestAttemptsFirst(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestSubscriber(t, repo, "bad@example.com", "aaaaaaaaaaaaaaaaaaaaaaaaa")
	testutil.NewTestSubscriber(t, repo, "good@example.com", "bbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, repo.RecordDispatchAttempt(ctx, "aaaaaaaaaaaaaaaaaaaaaaaaa"))

	pending, err := repo.ListUndispatchedTokens(ctx, time.Now().Add(time.Minute), 5, 1)

	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "good@example.com", pending[0].Email)
	assert.Zero(t, pending[0].Attempts)
}

func TestListUndispatchedTokens_SkipsRecentlyAttempted(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestSubscriber(t, repo, "a@example.com", "aaaaaaaaaaaaaaaaaaaaaaaaa")
	_, err := db.Exec(`UPDATE subscription_tokens SET created_at = ?`, time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	cutoff := time.Now().Add(-time.Minute)

	pending, err := repo.ListUndispatchedTokens(ctx, cutoff, 5, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, repo.RecordDispatchAttempt(ctx, "aaaaaaaaaaaaaaaaaaaaaaaaa"))

	pending, err = repo.ListUndispatchedTokens(ctx, cutoff, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListUndispatchedTokens_StopsAtMaxAttempts(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestSubscriber(t, repo, "a@example.com", "aaaaaaaaaaaaaaaaaaaaaaaaa")
	for range 3 {
		require.NoError(t, repo.RecordDispatchAttempt(ctx, "aaaaaaaaaaaaaaaaaaaaaaaaa"))
	}

	pending, err := repo.ListUndispatchedTokens(ctx, time.Now().Add(time.Minute), 3, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = repo.ListUndispatchedTokens(ctx, time.Now().Add(time.Minute), 4, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
