package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hoangnt/dialout/internal/api/domain"
	"github.com/hoangnt/dialout/internal/api/model"
	"github.com/hoangnt/dialout/shared/postgresql"
)

// pqUniqueViolation is the Postgres error code for a unique constraint hit.
const pqUniqueViolation = "23505"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

const callColumns = `
	call_id, idempotency_key, payload, status, worker_id,
	attempt_count, max_attempts, scheduled_at, spool_filename,
	error_message, created_at, updated_at
`

func (s *Storage) CreateCall(ctx context.Context, call *model.Call) error {
	query := `
		INSERT INTO calls (
			call_id, idempotency_key, payload, status,
			attempt_count, max_attempts, scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		call.CallID,
		call.IdempotencyKey,
		call.Payload,
		call.Status,
		call.AttemptCount,
		call.MaxAttempts,
		call.ScheduledAt,
		call.CreatedAt,
		call.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to create call: %w", err)
	}

	return nil
}

func (s *Storage) GetCallByID(ctx context.Context, callID string) (*model.Call, error) {
	var call model.Call
	query := `SELECT ` + callColumns + ` FROM calls WHERE call_id = $1`

	err := s.db.GetContext(ctx, &call, query, callID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}

	return &call, nil
}

// GetCallByIdempotencyKey fetches the existing call after a duplicate
// insert so the API can answer idempotently.
func (s *Storage) GetCallByIdempotencyKey(ctx context.Context, key string) (*model.Call, error) {
	var call model.Call
	query := `SELECT ` + callColumns + ` FROM calls WHERE idempotency_key = $1`

	err := s.db.GetContext(ctx, &call, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call by idempotency key: %w", err)
	}

	return &call, nil
}

type CallFilter struct {
	Status   string
	Channel  string
	PageSize int
	Cursor   *CallCursor
}

type CallCursor struct {
	CreatedAt time.Time
	CallID    string
}

// listCallsQuery builds the filtered, keyset-paginated listing query.
func listCallsQuery(filter CallFilter) (string, []interface{}) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	// The dial target lives inside the stored call spec.
	if filter.Channel != "" {
		query += fmt.Sprintf(" AND payload->>'channel' = $%d", argIdx)
		args = append(args, filter.Channel)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, call_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CallID)
		argIdx += 2
	}

	// Order by created_at DESC, call_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, call_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}

func (s *Storage) ListCalls(ctx context.Context, filter CallFilter) ([]model.Call, error) {
	query, args := listCallsQuery(filter)

	var calls []model.Call
	err := s.db.SelectContext(ctx, &calls, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	return calls, nil
}

// CancelCall flips a PENDING call to CANCELED. The spooler only claims
// PENDING rows, so a successful cancel means the call will never be spooled.
func (s *Storage) CancelCall(ctx context.Context, callID string) error {
	query := `
		UPDATE calls
		SET status = $1, updated_at = NOW()
		WHERE call_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.CallStatusCanceled, callID, domain.CallStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel call: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the call does not exist or it already left PENDING.
		if _, err := s.GetCallByID(ctx, callID); err != nil {
			return err
		}
		return domain.ErrCallNotCancelable
	}

	return nil
}

// DeleteCall removes a call row that reached a terminal state.
func (s *Storage) DeleteCall(ctx context.Context, callID string) error {
	call, err := s.GetCallByID(ctx, callID)
	if err != nil {
		return err
	}
	if !domain.IsTerminal(call.Status) {
		return domain.ErrCallNotDeletable
	}

	query := `DELETE FROM calls WHERE call_id = $1`
	if _, err := s.db.ExecContext(ctx, query, callID); err != nil {
		return fmt.Errorf("failed to delete call: %w", err)
	}

	return nil
}
