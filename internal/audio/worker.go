package audio

import (
	"context"
	"sync"

	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

const (
	defaultWorkerCount = 2
	defaultQueueSize   = 64
)

type job struct {
	callID string
	text   string
}

// Worker runs a pool of goroutines that synthesize call audio in the
// background so it is cached before the patient answers.
type Worker struct {
	service *Service
	jobs    chan job
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers   int
	queueSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent synthesis goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithQueueSize sets the synthesis job queue capacity.
func WithQueueSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size > 0 {
			cfg.queueSize = size
		}
	}
}

// NewWorker creates a synthesis worker pool over the audio service.
func NewWorker(service *Service, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if service == nil {
		panic("audio: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:   defaultWorkerCount,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		service: service,
		jobs:    make(chan job, cfg.queueSize),
		logger:  logger,
		cfg:     cfg,
	}
}

// Enqueue schedules background synthesis for a call. Returns false when the
// queue is full; the caller falls back to on-demand synthesis.
func (w *Worker) Enqueue(callID, text string) bool {
	select {
	case w.jobs <- job{callID: callID, text: text}:
		return true
	default:
		return false
	}
}

// Start launches the worker goroutines. They exit when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("synthesis worker started", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("synthesis worker stopping", "worker_id", workerID)
			return
		case j := <-w.jobs:
			// Synthesis failures are best-effort: the audio endpoint
			// regenerates on demand when the provider fetches it.
			if err := w.service.Prime(ctx, j.callID, j.text); err != nil {
				w.logger.Error("background synthesis failed", "error", err, "call_id", j.callID)
			}
		}
	}
}
