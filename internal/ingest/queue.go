package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"alphafeed/internal/client/telegram"
	"alphafeed/internal/metrics"
)

type UpdateIngestor interface {
	Ingest(ctx context.Context, u telegram.Update) (Result, error)
}

type QueueOptions struct {
	Size    int
	Workers int
	// Timeout bounds the storage work for one update.
	Timeout time.Duration
}

// Queue answers webhook deliveries once the body is decoded and leaves the
// writes to a fixed pool of workers. When the buffer is full, or after
// Close, updates are ingested on the caller's goroutine instead of dropped.
type Queue struct {
	ing     UpdateIngestor
	logger  *zap.Logger
	timeout time.Duration
	updates chan telegram.Update
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewQueue(ing UpdateIngestor, opts QueueOptions, logger *zap.Logger) *Queue {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		ing:     ing,
		logger:  logger,
		timeout: opts.Timeout,
		updates: make(chan telegram.Update, opts.Size),
	}
	for n := 0; n < opts.Workers; n++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// IngestRaw decodes body and queues it. Only an undecodable body is an
// error; a queued update reports OutcomeQueued.
func (q *Queue) IngestRaw(ctx context.Context, body []byte) (Result, error) {
	u, err := Decode(body)
	if err != nil {
		return Result{Outcome: OutcomeDropped}, err
	}
	q.mu.RLock()
	if !q.closed {
		select {
		case q.updates <- u:
			q.mu.RUnlock()
			metrics.WebhookQueueDepth.Inc()
			return Result{Outcome: OutcomeQueued}, nil
		default:
		}
	}
	q.mu.RUnlock()
	q.logger.Warn("webhook queue full or closed, ingesting inline", zap.Int64("update_id", u.UpdateID))
	return q.ing.Ingest(ctx, u)
}

// Close stops accepting updates and waits for the workers to drain the buffer.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.updates)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for u := range q.updates {
		metrics.WebhookQueueDepth.Dec()
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		res, err := q.ing.Ingest(ctx, u)
		cancel()
		if err != nil {
			q.logger.Warn("queued update ingest incomplete",
				zap.Int64("update_id", u.UpdateID),
				zap.String("outcome", string(res.Outcome)),
				zap.Error(err),
			)
		}
	}
}
