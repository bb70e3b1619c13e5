package spooler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hoangnt/dialout/internal/spooler/domain"
)

// setupConsumer applies QoS and opens the delivery stream.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.rabbitClient.GetChannel().Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// dispatch reads deliveries, decodes them and hands them to the pool.
// Malformed messages are rejected without requeue so they cannot loop.
func (w *Worker) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Dispatcher stopping: context canceled")
			return
		case <-w.stopChan:
			w.logger.Info("Dispatcher stopping: worker stopped")
			return
		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return
			}

			var msg domain.CallMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.CallID == "" {
				w.logger.Error("Discarding malformed message",
					slog.String("body", string(delivery.Body)),
				)
				if err := delivery.Nack(false, false); err != nil {
					w.logger.Error("Failed to nack malformed message", slog.Any("error", err))
				}
				continue
			}
			msg.DeliveryTag = delivery.DeliveryTag

			select {
			case w.callsChan <- &msg:
			case <-ctx.Done():
				// Put the message back for another consumer.
				if err := delivery.Nack(false, true); err != nil {
					w.logger.Error("Failed to requeue message on shutdown", slog.Any("error", err))
				}
				return
			case <-w.stopChan:
				if err := delivery.Nack(false, true); err != nil {
					w.logger.Error("Failed to requeue message on shutdown", slog.Any("error", err))
				}
				return
			}
		}
	}
}
