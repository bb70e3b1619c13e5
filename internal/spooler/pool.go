package spooler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hoangnt/dialout/internal/spooler/domain"
)

// spawnWorkerPool starts the delivery goroutines.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

func (w *Worker) workerLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.Int("worker", id))
	logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker stopping: context canceled")
			return
		case <-w.stopChan:
			logger.Debug("Worker stopping: worker stopped")
			return
		case msg, ok := <-w.callsChan:
			if !ok {
				return
			}

			err := w.processCall(ctx, msg)
			if err == nil {
				w.ack(logger, msg)
				continue
			}

			logger.Error("Call processing failed",
				slog.String("call_id", msg.CallID),
				slog.Any("error", err),
			)
			w.nack(logger, msg, shouldRequeue(err))
		}
	}
}

// shouldRequeue reports whether the broker should redeliver the message.
// Only failures wrapped as retryable go back on the queue.
func shouldRequeue(err error) bool {
	var retryable *domain.RetryableError
	return errors.As(err, &retryable)
}

func (w *Worker) ack(logger *slog.Logger, msg *domain.CallMessage) {
	if err := w.rabbitClient.GetChannel().Ack(msg.DeliveryTag, false); err != nil {
		logger.Error("Failed to ack message",
			slog.String("call_id", msg.CallID),
			slog.Any("error", err),
		)
	}
}

func (w *Worker) nack(logger *slog.Logger, msg *domain.CallMessage, requeue bool) {
	if err := w.rabbitClient.GetChannel().Nack(msg.DeliveryTag, false, requeue); err != nil {
		logger.Error("Failed to nack message",
			slog.String("call_id", msg.CallID),
			slog.Any("error", err),
		)
	}
}
