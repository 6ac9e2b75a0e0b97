package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/gramseva/backend/internal/services"
)

// ProcessWaveArgs triggers one notification wave for a request. Inserted
// with a ScheduledAt offset to implement the inter-wave delay.
type ProcessWaveArgs struct {
	RequestID uuid.UUID `json:"request_id"`
}

func (ProcessWaveArgs) Kind() string { return "process_wave" }

// ExpireRequestsArgs is the periodic sweep that expires overdue requests.
type ExpireRequestsArgs struct{}

func (ExpireRequestsArgs) Kind() string { return "expire_requests" }

// MatchService is the orchestrator contract the workers need.
type MatchService interface {
	ProcessNextWave(ctx context.Context, requestID uuid.UUID) (*services.WaveResult, error)
	ExpireOldRequests(ctx context.Context) (int, error)
}

type ProcessWaveWorker struct {
	river.WorkerDefaults[ProcessWaveArgs]
	matcher MatchService
	log     *slog.Logger
}

func NewProcessWaveWorker(matcher MatchService, log *slog.Logger) *ProcessWaveWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessWaveWorker{matcher: matcher, log: log}
}

func (w *ProcessWaveWorker) Work(ctx context.Context, job *river.Job[ProcessWaveArgs]) error {
	res, err := w.matcher.ProcessNextWave(ctx, job.Args.RequestID)
	if err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			// The request was removed out of band; retrying cannot help.
			w.log.Warn("wave trigger for unknown request", "request_id", job.Args.RequestID)
			return nil
		}
		return err
	}
	w.log.Info("wave job processed",
		"request_id", job.Args.RequestID,
		"wave", res.WaveNumber,
		"providers_notified", res.ProvidersNotified,
		"next_wave_scheduled", res.NextWaveScheduled)
	return nil
}

type ExpireRequestsWorker struct {
	river.WorkerDefaults[ExpireRequestsArgs]
	matcher MatchService
	log     *slog.Logger
}

func NewExpireRequestsWorker(matcher MatchService, log *slog.Logger) *ExpireRequestsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpireRequestsWorker{matcher: matcher, log: log}
}

func (w *ExpireRequestsWorker) Work(ctx context.Context, job *river.Job[ExpireRequestsArgs]) error {
	n, err := w.matcher.ExpireOldRequests(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info("expiry sweep finished", "expired", n)
	}
	return nil
}

// RiverScheduler implements services.WaveScheduler by inserting a delayed
// process_wave job.
type RiverScheduler struct {
	client *river.Client[pgx.Tx]
}

func NewRiverScheduler(client *river.Client[pgx.Tx]) *RiverScheduler {
	return &RiverScheduler{client: client}
}

func (s *RiverScheduler) ScheduleWave(ctx context.Context, requestID uuid.UUID, delay time.Duration) error {
	_, err := s.client.Insert(ctx, ProcessWaveArgs{RequestID: requestID}, &river.InsertOpts{
		ScheduledAt: time.Now().Add(delay),
	})
	return err
}

var _ services.WaveScheduler = (*RiverScheduler)(nil)
