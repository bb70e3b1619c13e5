package spooler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hoangnt/dialout/internal/callfile"
	"github.com/hoangnt/dialout/internal/spooler/domain"
	"github.com/hoangnt/dialout/shared/rabbitmq"
)

// CallStore is the storage surface the spooler needs. It is an interface
// so tests can run the processor against a fake without a database.
type CallStore interface {
	ClaimCall(ctx context.Context, callID, workerID string) (*domain.Call, error)
	MarkSpooled(ctx context.Context, callID, spoolFilename string) error
	MarkFailed(ctx context.Context, callID, errorMsg string) error
	Release(ctx context.Context, callID, errorMsg string) error
	ResetStaleClaims(ctx context.Context, cutoff time.Duration) (int64, error)
}

// SpoolSettings is the call file delivery environment.
type SpoolSettings struct {
	SpoolDir string
	TempDir  string
	Owner    string
	Archive  bool

	// RatePerSec/Burst throttle deliveries into the spool directory.
	// Zero means unlimited.
	RatePerSec float64
	Burst      int
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         CallStore
	RabbitClient  *rabbitmq.Client
	Concurrency   int
	PrefetchCount int

	// MaxAttempts caps delivery attempts per call regardless of the
	// budget stored on the row. Zero means the row's budget applies.
	MaxAttempts int

	Spool SpoolSettings

	// JanitorSchedule is a cron expression; empty disables the janitor.
	JanitorSchedule string
	StaleAfter      time.Duration

	// Users overrides the account directory used for call file ownership.
	// Nil means the real passwd database.
	Users callfile.UserDirectory
}

// Worker consumes call notifications and delivers call files into the
// telephony server's spool directory.
type Worker struct {
	logger        *slog.Logger
	store         CallStore
	rabbitClient  *rabbitmq.Client
	concurrency   int
	prefetchCount int
	maxAttempts   int
	workerID      string
	spool         SpoolSettings
	users         callfile.UserDirectory
	limiter       *rate.Limiter

	janitorSchedule string
	staleAfter      time.Duration
	janitor         *janitor

	callsChan chan *domain.CallMessage
	wg        sync.WaitGroup
	stopChan  chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "spooler"
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Spool.RatePerSec > 0 {
		burst := cfg.Spool.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Spool.RatePerSec), burst)
	}

	return &Worker{
		logger:          cfg.Logger,
		store:           cfg.Store,
		rabbitClient:    cfg.RabbitClient,
		concurrency:     cfg.Concurrency,
		prefetchCount:   cfg.PrefetchCount,
		maxAttempts:     cfg.MaxAttempts,
		workerID:        fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		spool:           cfg.Spool,
		users:           cfg.Users,
		limiter:         limiter,
		janitorSchedule: cfg.JanitorSchedule,
		staleAfter:      cfg.StaleAfter,
		callsChan:       make(chan *domain.CallMessage),
		stopChan:        make(chan struct{}),
	}
}

// Start begins consuming and delivering calls. It blocks until ctx is
// canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting spooler",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.String("spool_dir", w.spool.SpoolDir),
		slog.String("temp_dir", w.spool.TempDir),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	if err := w.startJanitor(); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}

	w.dispatch(ctx, deliveries)
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping spooler...")
	if w.janitor != nil {
		w.janitor.stop()
	}
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Spooler stopped")
}
