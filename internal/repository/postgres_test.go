package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/impact-portal/internal/model"
)

func shortDelays(t *testing.T) {
	t.Helper()
	prev := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = prev })
}

func TestWithRetry_RetriesSerializationFailure(t *testing.T) {
	shortDelays(t)

	r := &PostgresRepository{}
	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterAllDelays(t *testing.T) {
	shortDelays(t)

	r := &PostgresRepository{}
	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})

	require.Error(t, err)
	assert.Equal(t, len(retryDelays)+1, calls)
}

func TestWithRetry_DoesNotRetryDomainErrors(t *testing.T) {
	shortDelays(t)

	r := &PostgresRepository{}
	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return ErrOrderOwnedByAnother
	})

	assert.True(t, errors.Is(err, ErrOrderOwnedByAnother))
	assert.Equal(t, 1, calls)
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	shortDelays(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &PostgresRepository{}
	calls := 0
	err := r.withRetry(ctx, func() error {
		calls++
		return errors.New("connection refused")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestStageNames(t *testing.T) {
	var tl model.DeliveryTimeline
	tl.Flags[0] = true
	tl.Flags[4] = true

	assert.Equal(t, []string{"orderPlaced", "qualityChecks"}, stageNames(tl))
	assert.Empty(t, stageNames(model.DeliveryTimeline{}))
}
