package model

import (
	"database/sql"
	"time"
)

// Call is a calls table row.
type Call struct {
	CallID         string         `db:"call_id"`
	IdempotencyKey string         `db:"idempotency_key"`
	Payload        string         `db:"payload"` // callspec JSON
	Status         string         `db:"status"`
	WorkerID       sql.NullString `db:"worker_id"`
	AttemptCount   int            `db:"attempt_count"`
	MaxAttempts    int            `db:"max_attempts"`
	ScheduledAt    sql.NullTime   `db:"scheduled_at"`
	SpoolFilename  sql.NullString `db:"spool_filename"`
	ErrorMessage   sql.NullString `db:"error_message"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
