package outbox

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memento-ai/memento/internal/config"
	"github.com/memento-ai/memento/internal/observability"
	"github.com/memento-ai/memento/internal/storage"
)

// Handler processes one claimed event. A returned error triggers the retry
// schedule; success finalizes the event.
type Handler func(ctx context.Context, event *storage.OutboxEvent) error

// Worker polls the outbox and dispatches events by type. Multiple worker
// processes may run concurrently; they coordinate only through the lease
// predicate.
type Worker struct {
	store    *Store
	handlers map[storage.EventType]Handler
	log      *observability.Logger
	cfg      config.OutboxConfig
	id       string

	processed int64
	errors    int64
	started   time.Time
}

// NewWorker creates a worker with a generated id. cfg supplies the baseline
// lease, retry, and polling settings.
func NewWorker(store *Store, log *observability.Logger, cfg config.OutboxConfig) *Worker {
	host, _ := os.Hostname()
	id := fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	return &Worker{
		store:    store,
		handlers: make(map[storage.EventType]Handler),
		log:      log.WithWorker(id),
		cfg:      cfg,
		id:       id,
	}
}

// ID returns the worker's lease identity.
func (w *Worker) ID() string { return w.id }

// Register installs the handler for an event type.
func (w *Worker) Register(eventType storage.EventType, h Handler) {
	w.handlers[eventType] = h
}

// knobs holds the per-iteration runtime settings.
type knobs struct {
	LeaseSeconds    int
	RetryPolicy     RetryPolicy
	BatchSize       int
	PollInterval    time.Duration
	MetricsInterval time.Duration
}

// readKnobs layers per-iteration environment overrides over the configured
// baseline so operators can tune a running fleet without restarts.
func readKnobs(cfg config.OutboxConfig) knobs {
	return knobs{
		LeaseSeconds: envIntDefault("OUTBOX_LEASE_SECONDS", cfg.LeaseSeconds),
		RetryPolicy: RetryPolicy{
			MaxAttempts: envIntDefault("OUTBOX_MAX_ATTEMPTS", cfg.MaxAttempts),
			BaseDelay:   time.Duration(envIntDefault("OUTBOX_RETRY_DELAY_SECONDS", cfg.RetryDelaySeconds)) * time.Second,
			MaxDelay:    time.Duration(envIntDefault("OUTBOX_RETRY_MAX_DELAY_SECONDS", cfg.RetryMaxDelaySeconds)) * time.Second,
		},
		BatchSize:       envIntDefault("OUTBOX_BATCH_SIZE", cfg.BatchSize),
		PollInterval:    time.Duration(envIntDefault("OUTBOX_POLL_INTERVAL_MS", int(cfg.PollInterval/time.Millisecond))) * time.Millisecond,
		MetricsInterval: time.Duration(envIntDefault("OUTBOX_METRICS_INTERVAL_SECONDS", int(cfg.MetricsInterval/time.Second))) * time.Second,
	}
}

// Run polls until ctx is cancelled. Shutdown is cooperative: the current
// batch finishes before the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	w.started = time.Now()
	w.log.Info().Msg("worker started")

	lastMetrics := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().
				Int64("processed", w.processed).
				Int64("errors", w.errors).
				Msg("worker stopped")
			return ctx.Err()
		default:
		}

		k := readKnobs(w.cfg)
		n, err := w.processOnce(ctx, k)
		if err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("claim round failed")
		}

		if time.Since(lastMetrics) >= k.MetricsInterval {
			w.logMetrics(ctx)
			lastMetrics = time.Now()
		}

		if n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(k.PollInterval):
			}
		}
	}
}

// processOnce claims one batch and runs every event, finalizing each.
func (w *Worker) processOnce(ctx context.Context, k knobs) (int, error) {
	events, err := w.store.Claim(ctx, ClaimParams{
		WorkerID:     w.id,
		BatchSize:    k.BatchSize,
		LeaseSeconds: k.LeaseSeconds,
		MaxAttempts:  k.RetryPolicy.MaxAttempts,
	})
	if err != nil {
		return 0, err
	}

	for _, event := range events {
		w.handle(ctx, event, k)
	}
	return len(events), nil
}

func (w *Worker) handle(ctx context.Context, event *storage.OutboxEvent, k knobs) {
	log := w.log.With().
		Str("event_type", string(event.EventType)).
		Str("project_id", event.ProjectID.String()).
		Logger()

	handler, ok := w.handlers[event.EventType]
	var handlerErr error
	if !ok {
		handlerErr = fmt.Errorf("unknown event type %q", event.EventType)
	} else {
		handlerErr = handler(ctx, event)
	}

	if handlerErr != nil {
		w.errors++
		log.Warn().Err(handlerErr).Int("retry_count", event.RetryCount).Msg("event failed")
		if err := w.store.MarkFailed(ctx, event, w.id, handlerErr.Error(), k.RetryPolicy); err != nil {
			log.Error().Err(err).Msg("failure finalize failed")
		}
		return
	}

	ok, err := w.store.MarkSucceeded(ctx, event.ID, w.id)
	if err != nil {
		log.Error().Err(err).Msg("success finalize failed")
		return
	}
	if !ok {
		// Lease expired mid-run and another worker took over; the other
		// worker's result wins.
		log.Warn().Int64("event_id", event.ID).Msg("lease lost before finalize")
		return
	}
	w.processed++
}

func (w *Worker) logMetrics(ctx context.Context) {
	pending, err := w.store.PendingCount(ctx)
	if err != nil {
		pending = -1
	}
	w.log.Info().
		Int64("processed", w.processed).
		Int64("errors", w.errors).
		Int("pending", pending).
		Dur("uptime", time.Since(w.started)).
		Msg("worker metrics")
}

func envIntDefault(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
