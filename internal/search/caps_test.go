package search

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/observability"
)

func capsLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
}

func existsRow(v bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(v)
}

func TestCaps_HasBM25_ProbesOncePerTTL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("pg_extension").WillReturnRows(existsRow(true))
	mock.ExpectQuery("pg_indexes").WillReturnRows(existsRow(true))

	caps := NewCaps(db, capsLogger(), time.Hour)
	ctx := context.Background()

	assert.True(t, caps.HasBM25(ctx))
	// Cached: no further queries expected.
	assert.True(t, caps.HasBM25(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaps_HasBM25_NeedsExtensionAndIndex(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("pg_extension").WillReturnRows(existsRow(true))
	mock.ExpectQuery("pg_indexes").WillReturnRows(existsRow(false))

	caps := NewCaps(db, capsLogger(), time.Hour)
	assert.False(t, caps.HasBM25(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaps_HasBM25_MissingExtensionSkipsIndexProbe(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("pg_extension").WillReturnRows(existsRow(false))

	caps := NewCaps(db, capsLogger(), time.Hour)
	assert.False(t, caps.HasBM25(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCaps_Invalidate_ForcesReprobe(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("pg_extension").WillReturnRows(existsRow(true))
	mock.ExpectQuery("pg_indexes").WillReturnRows(existsRow(true))
	// After invalidation the next call probes again.
	mock.ExpectQuery("pg_extension").WillReturnRows(existsRow(false))

	caps := NewCaps(db, capsLogger(), time.Hour)
	ctx := context.Background()

	assert.True(t, caps.HasBM25(ctx))
	caps.Invalidate()
	assert.False(t, caps.HasBM25(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
