package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hannah-ric/esg-scraper/internal/apperr"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", sql.ErrConnDone, true},
		{"wrapped bad conn", errors.Join(errors.New("exec"), driver.ErrBadConn), true},
		{"no rows", sql.ErrNoRows, false},
		{"context canceled", context.Canceled, false},
		{"insufficient credits", apperr.InsufficientCredits("broke"), false},
		{"not found", apperr.NotFound("gone"), false},
		{"plain error", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestRetryTransientRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), func() error {
		calls++
		if calls < 3 {
			return driver.ErrBadConn
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTransientGivesUpAfterSchedule(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), func() error {
		calls++
		return driver.ErrBadConn
	})
	require.Error(t, err)
	assert.Equal(t, 1+len(persistenceBackoff), calls)
}

func TestRetryTransientDoesNotRetryBusinessOutcomes(t *testing.T) {
	calls := 0
	err := retryTransient(context.Background(), func() error {
		calls++
		return apperr.InsufficientCredits("broke")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
