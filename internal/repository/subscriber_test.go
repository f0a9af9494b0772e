// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/oliverandrich/newsletter/internal/models"
	"codeberg.org/oliverandrich/newsletter/internal/repository"
	"codeberg.org/oliverandrich/newsletter/internal/testutil"
)

func mustEmail(t *testing.T, raw string) models.SubscriberEmail {
	t.Helper()
	email, err := models.ParseSubscriberEmail(raw)
	require.NoError(t, err)
	return email
}

func mustName(t *testing.T, raw string) models.SubscriberName {
	t.Helper()
	name, err := models.ParseSubscriberName(raw)
	require.NoError(t, err)
	return name
}

func insertPending(t *testing.T, repo *repository.Repository, email, name string) (uuid.UUID, error) {
	t.Helper()
	ctx := context.Background()
	var id uuid.UUID
	err := repo.WithTx(ctx, func(tx *repository.Tx) error {
		var err error
		id, err = tx.InsertPendingSubscriber(ctx, mustEmail(t, email), mustName(t, name))
		return err
	})
	return id, err
}

func TestInsertPendingSubscriber(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	id, err := insertPending(t, repo, "ursula_le_guin@gmail.com", "le guin")

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	s, err := repo.GetSubscriberByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ursula_le_guin@gmail.com", s.Email)
	assert.Equal(t, "le guin", s.Name)
	assert.Equal(t, models.StatusPendingConfirmation, s.Status)
	assert.False(t, s.SubscribedAt.IsZero())
}

func TestInsertPendingSubscriber_DuplicateEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := insertPending(t, repo, "dup@example.com", "First")
	require.NoError(t, err)

	_, err = insertPending(t, repo, "dup@example.com", "Second")

	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestInsertPendingSubscriber_ConcurrentSameEmail(t *testing.T) {
	tmp := t.TempDir()
	db, err := openFileDB(tmp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repository.New(db)

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = insertPending(t, repo, "race@example.com", "Racer")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	count, err := repo.CountSubscribers(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetSubscriberByID_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetSubscriberByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestGetSubscriberByEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	id, err := insertPending(t, repo, "lookup@example.com", "Lookup")
	require.NoError(t, err)

	s, err := repo.GetSubscriberByEmail(context.Background(), "lookup@example.com")

	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
}

func TestGetSubscriberByEmail_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetSubscriberByEmail(context.Background(), "nobody@example.com")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMarkConfirmed(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	id, err := insertPending(t, repo, "confirm@example.com", "Confirm")
	require.NoError(t, err)

	require.NoError(t, repo.MarkConfirmed(ctx, id))

	s, err := repo.GetSubscriberByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, s.IsConfirmed())
}

func TestMarkConfirmed_Idempotent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	id, err := insertPending(t, repo, "twice@example.com", "Twice")
	require.NoError(t, err)

	require.NoError(t, repo.MarkConfirmed(ctx, id))
	require.NoError(t, repo.MarkConfirmed(ctx, id))

	s, err := repo.GetSubscriberByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, s.Status)
}

func TestCountSubscribers_ByStatus(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	id, err := insertPending(t, repo, "one@example.com", "One")
	require.NoError(t, err)
	_, err = insertPending(t, repo, "two@example.com", "Two")
	require.NoError(t, err)
	require.NoError(t, repo.MarkConfirmed(ctx, id))

	total, err := repo.CountSubscribers(ctx, "")
	require.NoError(t, err)
	pending, err := repo.CountSubscribers(ctx, models.StatusPendingConfirmation)
	require.NoError(t, err)
	confirmed, err := repo.CountSubscribers(ctx, models.StatusConfirmed)
	require.NoError(t, err)

	assert.Equal(t, int64(2), total)
	assert.Equal(t, int64(1), pending)
	assert.Equal(t, int64(1), confirmed)
}
