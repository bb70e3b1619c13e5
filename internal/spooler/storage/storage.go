package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hoangnt/dialout/internal/spooler/domain"
)

// Storage handles all database operations for the spooler
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimCall attempts to claim a call using optimistic locking: only a
// PENDING row can move to SPOOLING, so at most one spooler wins.
func (s *Storage) ClaimCall(ctx context.Context, callID, workerID string) (*domain.Call, error) {
	query := `
		UPDATE calls
		SET status = $1,
		    worker_id = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = NOW()
		WHERE call_id = $3
		  AND status = $4
		RETURNING call_id, payload, attempt_count, max_attempts
	`

	var call domain.Call
	err := s.db.QueryRowContext(ctx, query, domain.CallStatusSpooling, workerID, callID, domain.CallStatusPending).Scan(
		&call.CallID,
		&call.Payload,
		&call.AttemptCount,
		&call.MaxAttempts,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim call - already claimed, canceled or not found",
				slog.String("call_id", callID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrCallAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim call: %w", err)
	}

	call.Status = domain.CallStatusSpooling
	call.WorkerID = workerID

	s.logger.Info("Call claimed",
		slog.String("call_id", callID),
		slog.String("worker_id", workerID),
		slog.Int("attempt", call.AttemptCount),
	)

	return &call, nil
}

// MarkSpooled records a successful delivery and the call file name the
// telephony server will pick up.
func (s *Storage) MarkSpooled(ctx context.Context, callID, spoolFilename string) error {
	query := `
		UPDATE calls
		SET status = $1,
		    spool_filename = $2,
		    error_message = '',
		    updated_at = NOW()
		WHERE call_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.CallStatusSpooled, spoolFilename, callID); err != nil {
		return fmt.Errorf("failed to mark call spooled: %w", err)
	}

	return nil
}

// MarkFailed records a permanently failed delivery.
func (s *Storage) MarkFailed(ctx context.Context, callID, errorMsg string) error {
	query := `
		UPDATE calls
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE call_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.CallStatusFailed, errorMsg, callID); err != nil {
		return fmt.Errorf("failed to mark call failed: %w", err)
	}

	return nil
}

// Release puts a claimed call back to PENDING so a later attempt can pick
// it up after a transient delivery failure.
func (s *Storage) Release(ctx context.Context, callID, errorMsg string) error {
	query := `
		UPDATE calls
		SET status = $1,
		    worker_id = NULL,
		    error_message = $2,
		    updated_at = NOW()
		WHERE call_id = $3 AND status = $4
	`

	if _, err := s.db.ExecContext(ctx, query, domain.CallStatusPending, errorMsg, callID, domain.CallStatusSpooling); err != nil {
		return fmt.Errorf("failed to release call: %w", err)
	}

	return nil
}

// ResetStaleClaims moves SPOOLING rows whose claim is older than cutoff
// back to PENDING. A stale claim means a spooler died mid-delivery; the
// claim bump on re-claim keeps the attempt budget honest.
func (s *Storage) ResetStaleClaims(ctx context.Context, cutoff time.Duration) (int64, error) {
	query := `
		UPDATE calls
		SET status = $1,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE status = $2
		  AND updated_at < NOW() - $3::interval
	`

	interval := fmt.Sprintf("%d seconds", int64(cutoff.Seconds()))
	result, err := s.db.ExecContext(ctx, query, domain.CallStatusPending, domain.CallStatusSpooling, interval)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale claims: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
