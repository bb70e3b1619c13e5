package spooler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hoangnt/dialout/internal/callfile"
	"github.com/hoangnt/dialout/internal/callspec"
	"github.com/hoangnt/dialout/internal/spooler/domain"
)

// processCall claims a call, renders its call file and delivers it into
// the spool directory. The returned error decides the broker outcome:
// nil acks, a RetryableError requeues, anything else drops the message.
func (w *Worker) processCall(ctx context.Context, msg *domain.CallMessage) error {
	call, err := w.store.ClaimCall(ctx, msg.CallID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrCallAlreadyClaimed) || errors.Is(err, domain.ErrCallNotFound) {
			// Claimed by another worker, or canceled before we got here.
			w.logger.Info("Skipping call",
				slog.String("call_id", msg.CallID),
				slog.Any("reason", err),
			)
			return nil
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim call %s: %w", msg.CallID, err))
	}

	logger := w.logger.With(
		slog.String("call_id", call.CallID),
		slog.Int("attempt", call.AttemptCount),
	)

	var spec callspec.Spec
	if err := json.Unmarshal([]byte(call.Payload), &spec); err != nil {
		failure := fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		w.fail(ctx, logger, call.CallID, failure)
		return failure
	}

	jf, err := w.buildJobFile(call.CallID, &spec)
	if err != nil {
		w.fail(ctx, logger, call.CallID, err)
		return err
	}

	if err := w.limiter.Wait(ctx); err != nil {
		// Shutting down mid-flight; put the call back.
		w.release(ctx, logger, call.CallID, err)
		return domain.NewRetryableError(err)
	}

	if spec.ScheduledAt != nil {
		err = jf.SpoolAt(*spec.ScheduledAt)
	} else {
		err = jf.Spool()
	}
	if err != nil {
		return w.handleSpoolError(ctx, logger, call, err)
	}

	if err := w.store.MarkSpooled(ctx, call.CallID, jf.Filename); err != nil {
		// The call file is already in the spool; don't redeliver it.
		logger.Error("Failed to mark call spooled", slog.Any("error", err))
		return nil
	}

	logger.Info("Call spooled", slog.String("spool_filename", jf.Filename))
	return nil
}

// buildJobFile assembles a call file from the stored spec and the
// configured delivery environment.
func (w *Worker) buildJobFile(callID string, spec *callspec.Spec) (*callfile.JobFile, error) {
	action, err := spec.Action.CallfileAction()
	if err != nil {
		return nil, err
	}

	jf := callfile.New(spec.Endpoint(), action)
	// Name the file after the call so spool entries trace back to rows.
	jf.Filename = callID + ".call"
	jf.Archive = spec.Archive || w.spool.Archive
	if w.spool.TempDir != "" {
		jf.TempDir = w.spool.TempDir
	}
	if w.spool.SpoolDir != "" {
		jf.SpoolDir = w.spool.SpoolDir
	}
	jf.User = spec.Owner
	if jf.User == "" {
		jf.User = w.spool.Owner
	}
	if w.users != nil {
		jf.Users = w.users
	}
	return jf, nil
}

// handleSpoolError maps delivery failures onto call outcomes. Permission
// problems can clear up (mounts, ownership fixes) so they retry up to the
// attempt limit. Everything else is wrong input and fails immediately.
func (w *Worker) handleSpoolError(ctx context.Context, logger *slog.Logger, call *domain.Call, err error) error {
	retryable := errors.Is(err, callfile.ErrNoSpoolPermission) ||
		errors.Is(err, callfile.ErrNoUserPermission)

	if retryable {
		limit := call.MaxAttempts
		if w.maxAttempts > 0 && w.maxAttempts < limit {
			limit = w.maxAttempts
		}
		if call.AttemptCount >= limit {
			failure := fmt.Errorf("%w (%d/%d): %v",
				domain.ErrMaxAttemptsExceeded, call.AttemptCount, limit, err)
			w.fail(ctx, logger, call.CallID, failure)
			return failure
		}
		w.release(ctx, logger, call.CallID, err)
		return domain.NewRetryableError(err)
	}

	w.fail(ctx, logger, call.CallID, err)
	return err
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, callID string, cause error) {
	if err := w.store.MarkFailed(ctx, callID, cause.Error()); err != nil {
		logger.Error("Failed to mark call failed", slog.Any("error", err))
	}
}

func (w *Worker) release(ctx context.Context, logger *slog.Logger, callID string, cause error) {
	if err := w.store.Release(ctx, callID, cause.Error()); err != nil {
		logger.Error("Failed to release call", slog.Any("error", err))
	}
}
