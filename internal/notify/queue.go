package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis list names.
const (
	QueueKey      = "zaloga:notify"
	DeadLetterKey = "zaloga:notify:dead"
)

// Job is the envelope pushed onto the queue.
type Job struct {
	ID       string    `json:"id"`
	Message  Message   `json:"message"`
	Attempts int       `json:"attempts"`
	QueuedAt time.Time `json:"queued_at"`
}

// NewRedis parses url and checks the server is reachable.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// Queue enqueues messages for a Worker to deliver.
type Queue struct {
	rdb *redis.Client
}

// NewQueue returns a notifier that pushes jobs onto a redis list.
func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Send enqueues msg; delivery happens in a Worker.
func (q *Queue) Send(ctx context.Context, msg Message) error {
	err := push(ctx, q.rdb, QueueKey, Job{ID: uuid.NewString(), Message: msg, QueuedAt: time.Now()})
	observe("queue", err)
	return err
}

func push(ctx context.Context, rdb *redis.Client, key string, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	if err := rdb.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

// Worker pops jobs and hands them to a delivery notifier.
type Worker struct {
	rdb         *redis.Client
	deliver     Notifier
	maxAttempts int
	logger      *slog.Logger

	// Backoff is how long a worker waits after a failed poll.
	Backoff time.Duration
}

// NewWorker returns a worker; failed jobs are retried up to maxAttempts times
// and then moved to the dead-letter list.
func NewWorker(rdb *redis.Client, deliver Notifier, maxAttempts int, logger *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{rdb: rdb, deliver: deliver, maxAttempts: maxAttempts, logger: logger, Backoff: time.Second}
}

// Start launches n goroutines that consume the queue until ctx is done.
func (w *Worker) Start(ctx context.Context, n int) {
	for i := range n {
		go w.run(ctx, i)
	}
	w.logger.Info("notification workers started", "count", n)
}

func (w *Worker) run(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			w.logger.Info("notification worker stopped", "worker", id)
			return
		}
		if _, err := w.ProcessOne(ctx, 5*time.Second); err != nil && ctx.Err() == nil {
			w.logger.Error("notification worker", "worker", id, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.Backoff):
			}
		}
	}
}

// ProcessOne waits up to timeout for a job and delivers it. It reports whether
// a job was taken off the queue.
func (w *Worker) ProcessOne(ctx context.Context, timeout time.Duration) (bool, error) {
	result, err := w.rdb.BRPop(ctx, timeout, QueueKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("popping job: %w", err)
	}
	if len(result) < 2 {
		return false, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.logger.Error("dropping malformed notification job", "error", err)
		return true, nil
	}

	if err := w.deliver.Send(ctx, job.Message); err != nil {
		job.Attempts++
		key := QueueKey
		if job.Attempts >= w.maxAttempts {
			key = DeadLetterKey
		}
		w.logger.Warn("notification delivery failed", "job", job.ID, "to", job.Message.To,
			"attempts", job.Attempts, "error", err)
		if perr := push(ctx, w.rdb, key, job); perr != nil {
			return true, perr
		}
		return true, nil
	}

	w.logger.Info("notification delivered", "job", job.ID, "to", job.Message.To)
	return true, nil
}
