// Package outbox implements the transactional outbox: durable events written
// in the same transaction as the change that requires them, claimed by
// workers under a time-bounded lease.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/memento-ai/memento/internal/storage"
)

// maxErrorChars caps the stored error message.
const maxErrorChars = 1000

// RetryPolicy controls failure backoff and dead-lettering.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff returns the delay before the given retry. retryCount is the
// attempt number after incrementing (1 for the first retry).
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := p.BaseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Enqueue writes an event using the given connection or transaction. Callers
// inside a commit pass their transaction so the event never escapes a
// rollback.
func Enqueue(ctx context.Context, db storage.DB, projectID uuid.UUID, eventType storage.EventType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	query := `
		INSERT INTO outbox_events (project_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, now())
	`
	if _, err := db.ExecContext(ctx, query, projectID, eventType, raw); err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// Store claims and finalizes outbox events.
type Store struct {
	db *sql.DB
}

// NewStore creates a new outbox store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const claimSelectSQL = `
	SELECT id, project_id, event_type, payload, created_at, processed_at,
		retry_count, next_attempt_at, locked_by, lease_expires_at, error
	FROM outbox_events
	WHERE processed_at IS NULL
		AND (lease_expires_at IS NULL OR lease_expires_at < now())
		AND retry_count < $1
		AND (next_attempt_at IS NULL OR next_attempt_at <= now())
		AND ($2::uuid IS NULL OR project_id = $2)
	ORDER BY created_at ASC
	FOR UPDATE SKIP LOCKED
	LIMIT $3
`

const claimUpdateSQL = `
	UPDATE outbox_events
	SET locked_by = $1, lease_expires_at = now() + make_interval(secs => $2)
	WHERE id = ANY($3)
`

// ClaimParams controls one claim round.
type ClaimParams struct {
	WorkerID     string
	BatchSize    int
	LeaseSeconds int
	MaxAttempts  int
	ProjectID    uuid.UUID // optional filter; uuid.Nil claims across projects
}

// Claim atomically selects up to BatchSize claimable events, takes the lease
// for WorkerID, and returns them. Two concurrent claims never overlap.
func (s *Store) Claim(ctx context.Context, params ClaimParams) ([]*storage.OutboxEvent, error) {
	var events []*storage.OutboxEvent

	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var projectFilter interface{}
		if params.ProjectID != uuid.Nil {
			projectFilter = params.ProjectID
		}

		rows, err := tx.QueryContext(ctx, claimSelectSQL,
			params.MaxAttempts, projectFilter, params.BatchSize)
		if err != nil {
			return fmt.Errorf("select claimable events: %w", err)
		}
		defer rows.Close()

		var ids []int64
		for rows.Next() {
			e := &storage.OutboxEvent{}
			if err := rows.Scan(
				&e.ID, &e.ProjectID, &e.EventType, &e.Payload, &e.CreatedAt,
				&e.ProcessedAt, &e.RetryCount, &e.NextAttemptAt, &e.LockedBy,
				&e.LeaseExpiresAt, &e.Error,
			); err != nil {
				return err
			}
			events = append(events, e)
			ids = append(ids, e.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, claimUpdateSQL,
			params.WorkerID, params.LeaseSeconds, pq.Array(ids)); err != nil {
			return fmt.Errorf("take lease: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range events {
		e.LockedBy = sql.NullString{String: params.WorkerID, Valid: true}
	}
	return events, nil
}

// MarkSucceeded finalizes a successfully handled event. A false return means
// the lease was stolen and the result must be discarded.
func (s *Store) MarkSucceeded(ctx context.Context, eventID int64, workerID string) (bool, error) {
	query := `
		UPDATE outbox_events
		SET processed_at = now(), error = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE id = $1 AND locked_by = $2 AND processed_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, eventID, workerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed records a handler failure: it increments retry_count and either
// schedules the next attempt with exponential backoff or dead-letters the
// event once MaxAttempts is reached. Both updates are gated on lease
// ownership.
func (s *Store) MarkFailed(ctx context.Context, event *storage.OutboxEvent, workerID, errMsg string, policy RetryPolicy) error {
	if len(errMsg) > maxErrorChars {
		errMsg = errMsg[:maxErrorChars]
	}
	newRetryCount := event.RetryCount + 1

	if newRetryCount >= policy.MaxAttempts {
		query := `
			UPDATE outbox_events
			SET retry_count = $3, error = $4, processed_at = now(),
				locked_by = NULL, lease_expires_at = NULL
			WHERE id = $1 AND locked_by = $2 AND processed_at IS NULL
		`
		_, err := s.db.ExecContext(ctx, query, event.ID, workerID, newRetryCount, errMsg)
		return err
	}

	delay := policy.Backoff(newRetryCount)
	query := `
		UPDATE outbox_events
		SET retry_count = $3, error = $4,
			next_attempt_at = now() + make_interval(secs => $5),
			locked_by = NULL, lease_expires_at = NULL
		WHERE id = $1 AND locked_by = $2 AND processed_at IS NULL
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, workerID, newRetryCount, errMsg, delay.Seconds())
	return err
}

// PendingCount counts events not yet terminal.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox_events WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}

// DeadLetterCount counts terminal events that exhausted their attempts.
func (s *Store) DeadLetterCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM outbox_events WHERE processed_at IS NOT NULL AND error IS NOT NULL`).Scan(&n)
	return n, err
}
