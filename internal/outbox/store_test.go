package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-ai/memento/internal/storage"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 600 * time.Second}

	assert.Equal(t, 5*time.Second, policy.Backoff(1))
	assert.Equal(t, 10*time.Second, policy.Backoff(2))
	assert.Equal(t, 20*time.Second, policy.Backoff(3))
	assert.Equal(t, 40*time.Second, policy.Backoff(4))
	// 5s doubled seven times is 640s, past the cap.
	assert.Equal(t, 600*time.Second, policy.Backoff(8))
}

func TestRetryPolicy_Backoff_FloorsRetryCount(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 5 * time.Second, MaxDelay: 600 * time.Second}
	assert.Equal(t, 5*time.Second, policy.Backoff(0))
	assert.Equal(t, 5*time.Second, policy.Backoff(-3))
}

func TestRetryPolicy_Backoff_ClampsBaseDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Second}
	assert.Equal(t, 10*time.Second, policy.Backoff(1))
}

func TestEnqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	projectID := uuid.New()
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(projectID, storage.EventIngestVersion, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = Enqueue(context.Background(), db, projectID, storage.EventIngestVersion,
		storage.IngestVersionPayload{VersionID: uuid.New()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkSucceeded_OwnedLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(int64(7), "worker-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := NewStore(db).MarkSucceeded(context.Background(), 7, "worker-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkSucceeded_LeaseStolen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(int64(7), "worker-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewStore(db).MarkSucceeded(context.Background(), 7, "worker-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_MarkFailed_SchedulesRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 600 * time.Second}
	event := &storage.OutboxEvent{ID: 3, RetryCount: 1}

	// Second retry backs off 10 seconds.
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(int64(3), "worker-1", 2, "boom", float64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewStore(db).MarkFailed(context.Background(), event, "worker-1", "boom", policy)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkFailed_DeadLettersAtMaxAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 600 * time.Second}
	event := &storage.OutboxEvent{ID: 3, RetryCount: 4}

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(int64(3), "worker-1", 5, "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewStore(db).MarkFailed(context.Background(), event, "worker-1", "boom", policy)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkFailed_TruncatesLongErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'e'
	}
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute}
	event := &storage.OutboxEvent{ID: 1, RetryCount: 4}

	mock.ExpectExec("UPDATE outbox_events").
		WithArgs(int64(1), "w", 5, string(long[:maxErrorChars])).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewStore(db).MarkFailed(context.Background(), event, "w", string(long), policy)
	require.NoError(t, err)
}

func TestStore_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	store := NewStore(db)
	pending, err := store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, pending)

	dead, err := store.DeadLetterCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dead)
}
