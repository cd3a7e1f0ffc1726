package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/retry"
)

// Update relies on the version CAS alone: a lost race or a serialization
// failure is retried, anything else is not.
func TestAvatarStore_ConflictRetryPolicy(t *testing.T) {
	s := NewAvatarStore(nil, 3)
	ctx := context.Background()

	calls := 0
	err := s.retrier.Do(ctx, func(context.Context) error {
		calls++
		return shared.ErrVersionConflict
	})
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, retry.ErrExhausted))

	calls = 0
	err = s.retrier.Do(ctx, func(context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("write: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = s.retrier.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("syntax error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
