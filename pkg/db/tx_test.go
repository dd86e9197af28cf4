package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/eventrentals-backend/pkg/errors"
)

func TestRunBoundedPassesTypedErrors(t *testing.T) {
	client := FromConn(newTestDB(t))
	typed := pkgerrors.New(pkgerrors.CodeInsufficientStock, "none left")

	err := RunBounded(context.Background(), client, TxPolicy{Timeout: time.Second}, "confirm", func(tx *gorm.DB) error {
		return typed
	})
	require.Same(t, typed, err)
}

func TestRunBoundedMapsDeadlineToConcurrencyConflict(t *testing.T) {
	client := FromConn(newTestDB(t))

	err := RunBounded(context.Background(), client, TxPolicy{Timeout: time.Millisecond}, "confirm", func(tx *gorm.DB) error {
		<-tx.Statement.Context.Done()
		return tx.Statement.Context.Err()
	})
	require.Equal(t, pkgerrors.CodeConcurrencyConflict, pkgerrors.CodeOf(err))
}

func TestRunBoundedWrapsUnexpectedErrors(t *testing.T) {
	client := FromConn(newTestDB(t))

	err := RunBounded(context.Background(), client, TxPolicy{}, "confirm", func(tx *gorm.DB) error {
		return errors.New("boom")
	})
	require.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
	require.NoError(t, RunBounded(context.Background(), client, TxPolicy{}, "noop", func(tx *gorm.DB) error { return nil }))
}
