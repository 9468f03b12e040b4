package identity

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WorkerConfig tunes the retry worker.
type WorkerConfig struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
	Timeout     time.Duration
}

// Worker drains the link queue with exponential backoff.
type Worker struct {
	cfg    WorkerConfig
	queue  Queue
	users  BotUsers
	linker PhoneLinker
	log    zerolog.Logger
	now    func() time.Time
}

// NewWorker returns a Worker; zero config fields take the defaults
// (3s tick, 5 jobs per tick, 5 attempts, 3s link timeout).
func NewWorker(cfg WorkerConfig, queue Queue, users BotUsers, linker PhoneLinker, log zerolog.Logger) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Worker{
		cfg:    cfg,
		queue:  queue,
		users:  users,
		linker: linker,
		log:    log.With().Str("component", "bot_sync_worker").Logger(),
		now:    time.Now,
	}
}

// Backoff returns the delay before the next attempt after attempts
// failures: 2^attempts seconds.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		attempts = 20
	}
	return time.Duration(1<<attempts) * time.Second
}

// Run processes the queue every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick handles up to Batch jobs. Jobs whose next attempt is in the
// future go back to the tail of the queue.
func (w *Worker) Tick(ctx context.Context) {
	seen := map[string]bool{}
	for i := 0; i < w.cfg.Batch; i++ {
		d, ok, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("bot_sync_queue_dequeue_failed")
			return
		}
		if !ok {
			return
		}
		if seen[d.Job.ID] {
			// wrapped around to a job already deferred in this tick
			if err := d.Nack(); err != nil {
				w.log.Error().Err(err).Msg("bot_sync_queue_nack_failed")
			}
			return
		}
		seen[d.Job.ID] = true
		w.handle(ctx, d)
	}
}

func (w *Worker) handle(ctx context.Context, d Delivery) {
	job := d.Job
	l := w.log.With().Str("job_id", job.ID).Str("phone", job.Phone).Int("attempts", job.Attempts).Logger()
	now := w.now()

	if job.NextAttemptAt.After(now) {
		w.requeue(ctx, d, job, l)
		return
	}

	linkCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	res, err := syncJob(linkCtx, w.users, w.linker, job)
	cancel()
	if err == nil {
		l.Info().Uint64("crm_user_id", res.UserID).Int64("linked", res.Linked).Msg("bot_sync_queue_success")
		w.ack(d, l)
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= w.cfg.MaxAttempts {
		l.Error().Err(err).Int("attempts", job.Attempts).Msg("bot_sync_queue_giveup")
		w.ack(d, l)
		return
	}
	job.NextAttemptAt = now.Add(Backoff(job.Attempts))
	l.Warn().Err(err).Int("attempts", job.Attempts).Time("next_attempt_at", job.NextAttemptAt).Msg("bot_sync_queue_retry_scheduled")
	w.requeue(ctx, d, job, l)
}

func (w *Worker) requeue(ctx context.Context, d Delivery, job Job, l zerolog.Logger) {
	if err := w.queue.Enqueue(ctx, job); err != nil {
		l.Error().Err(err).Msg("bot_sync_queue_requeue_failed")
		if nerr := d.Nack(); nerr != nil {
			l.Error().Err(nerr).Msg("bot_sync_queue_nack_failed")
		}
		return
	}
	w.ack(d, l)
}

func (w *Worker) ack(d Delivery, l zerolog.Logger) {
	if err := d.Ack(); err != nil {
		l.Error().Err(err).Msg("bot_sync_queue_ack_failed")
	}
}
