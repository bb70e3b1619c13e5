package handler

import (
	"log/slog"

	"github.com/hoangnt/dialout/internal/api/storage"
	"github.com/hoangnt/dialout/shared/postgresql"
	"github.com/hoangnt/dialout/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
}

// CallHandler handles call-related HTTP requests
type CallHandler struct {
	logger       *slog.Logger
	storage      *storage.Storage
	rabbitClient *rabbitmq.Client
}

// NewCallHandler creates a new CallHandler instance
func NewCallHandler(deps *Dependencies) *CallHandler {
	return &CallHandler{
		logger:       deps.Logger,
		storage:      storage.NewStorage(deps.DBClient),
		rabbitClient: deps.RabbitClient,
	}
}
