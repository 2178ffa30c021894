package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nimble-gus/megatienda-core/observe"
)

// QueueConfig configures the query queue.
type QueueConfig struct {
	// MaxConcurrent is the number of concurrency slots: tasks running against
	// the backend store at the same time, within this process only.
	// Default: 2
	MaxConcurrent int

	// DispatchInterval paces dispatch so a burst of queued tasks does not
	// grab every free slot in the same instant.
	// Default: 25ms
	DispatchInterval time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = 25 * time.Millisecond
	}
	return c
}

type queueTask struct {
	id       string
	op       func(context.Context) error
	ctx      context.Context
	done     chan error
	enqueued time.Time
}

// QueryQueue serializes access to the backend store: at most MaxConcurrent
// tasks run at once, dispatched in FIFO submission order with paced starts.
//
// The queue is process-local. It bounds concurrency within one storefront
// instance; it is not a distributed semaphore.
type QueryQueue struct {
	config  QueueConfig
	log     *zap.Logger
	metrics *observe.Metrics
	pacer   *rate.Limiter

	submit  chan *queueTask
	settled chan struct{}
	stop    chan struct{}
	closed  chan struct{}
	once    sync.Once

	pending    atomic.Int64
	active     atomic.Int64
	maxActive  atomic.Int64
	dispatched atomic.Int64
	completed  atomic.Int64
}

// QueueOption configures a QueryQueue.
type QueueOption func(*QueryQueue)

// WithQueueLogger sets the logger.
func WithQueueLogger(log *zap.Logger) QueueOption {
	return func(q *QueryQueue) { q.log = log }
}

// WithQueueMetrics sets the metric instruments.
func WithQueueMetrics(m *observe.Metrics) QueueOption {
	return func(q *QueryQueue) { q.metrics = m }
}

// NewQueryQueue creates and starts a query queue.
func NewQueryQueue(config QueueConfig, opts ...QueueOption) *QueryQueue {
	cfg := config.withDefaults()
	q := &QueryQueue{
		config:  cfg,
		log:     zap.NewNop(),
		pacer:   rate.NewLimiter(rate.Every(cfg.DispatchInterval), 1),
		submit:  make(chan *queueTask),
		settled: make(chan struct{}, cfg.MaxConcurrent),
		stop:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.metrics.RegisterQueueDepth(func() int64 {
		return q.pending.Load() + q.active.Load()
	}); err != nil {
		q.log.Warn("queue depth gauge registration failed", zap.Error(err))
	}
	go q.loop()
	return q
}

// Do submits op and blocks until it settles. The context gates submission
// only: once a task is accepted it runs to completion even if the caller's
// context is cancelled, and every accepted task settles exactly once.
func (q *QueryQueue) Do(ctx context.Context, op func(context.Context) error) error {
	t := &queueTask{
		id:       uuid.NewString(),
		op:       op,
		ctx:      context.WithoutCancel(ctx),
		done:     make(chan error, 1),
		enqueued: time.Now(),
	}

	select {
	case q.submit <- t:
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-t.done
}

// Close stops the queue. Tasks still waiting for a slot settle with
// ErrQueueClosed; tasks already running finish normally.
func (q *QueryQueue) Close() {
	q.once.Do(func() { close(q.stop) })
}

// QueueStats is a point-in-time view of queue activity.
type QueueStats struct {
	Pending       int64
	Active        int64
	MaxActive     int64
	MaxConcurrent int
	Dispatched    int64
	Completed     int64
}

// Stats returns current queue statistics.
func (q *QueryQueue) Stats() QueueStats {
	return QueueStats{
		Pending:       q.pending.Load(),
		Active:        q.active.Load(),
		MaxActive:     q.maxActive.Load(),
		MaxConcurrent: q.config.MaxConcurrent,
		Dispatched:    q.dispatched.Load(),
		Completed:     q.completed.Load(),
	}
}

// loop owns the FIFO queue. All queue state lives in this goroutine; the rest
// of the world talks to it through channels.
func (q *QueryQueue) loop() {
	var fifo []*queueTask
	var cooldown <-chan time.Time

	for {
		select {
		case t := <-q.submit:
			fifo = append(fifo, t)
			q.pending.Store(int64(len(fifo)))
		case <-q.settled:
			// A slot freed up; fall through to the drain below.
		case <-cooldown:
			cooldown = nil
		case <-q.stop:
			close(q.closed)
			for _, t := range fifo {
				t.done <- ErrQueueClosed
			}
			q.pending.Store(0)
			return
		}

		for len(fifo) > 0 && q.active.Load() < int64(q.config.MaxConcurrent) && cooldown == nil {
			if !q.pacer.Allow() {
				// Burst smoothing: wait out the dispatch interval instead of
				// firing every free slot in the same tick.
				cooldown = time.After(q.config.DispatchInterval)
				break
			}

			t := fifo[0]
			fifo = fifo[1:]
			q.pending.Store(int64(len(fifo)))

			active := q.active.Add(1)
			if active > q.maxActive.Load() {
				q.maxActive.Store(active)
			}
			q.dispatched.Add(1)
			q.metrics.RecordQueueWait(t.ctx, time.Since(t.enqueued))

			go q.run(t)
		}
	}
}

func (q *QueryQueue) run(t *queueTask) {
	defer func() {
		q.active.Add(-1)
		q.completed.Add(1)
		q.settled <- struct{}{}
	}()

	start := time.Now()
	err := t.op(t.ctx)
	if err != nil {
		q.log.Debug("queued task failed",
			zap.String("task", t.id),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
	t.done <- err
}

// Enqueue submits a value-returning operation and blocks until it settles.
func Enqueue[T any](ctx context.Context, q *QueryQueue, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := q.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
