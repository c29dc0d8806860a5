package rateshop

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
)

// Observability constants for the WorkerPool.
const (
	// Metrics.
	PoolTasksTotal    = metricz.Key("pool.tasks.total")
	PoolSuccessTotal  = metricz.Key("pool.successes.total")
	PoolFailuresTotal = metricz.Key("pool.failures.total")
	PoolWorkersMax    = metricz.Key("pool.workers.max")
	PoolWorkersActive = metricz.Key("pool.workers.active")
	PoolQueueDepth    = metricz.Key("pool.queue.depth")
	PoolQueueWaitMs   = metricz.Key("pool.queue.wait.ms")

	// Hook event keys.
	PoolEventTaskQueued   = hookz.Key("pool.task_queued")
	PoolEventTaskStarted  = hookz.Key("pool.task_started")
	PoolEventTaskComplete = hookz.Key("pool.task_complete")
)

// PoolEvent is emitted via hookz when tasks are queued, started, and
// completed, providing visibility into task lifecycle and queue pressure.
type PoolEvent struct {
	Name          Name          // Pool name
	TaskName      Name          // Name of the task
	WorkerCount   int           // Maximum number of workers
	ActiveWorkers int           // Workers busy at event time
	QueueDepth    int           // Tasks waiting at event time
	QueueWait     time.Duration // Time spent waiting for a worker (task_started)
	Duration      time.Duration // How long the task ran (task_complete)
	Success       bool          // Whether the task succeeded (task_complete)
	Err           error         // Task error, if any
	Timestamp     time.Time     // When the event occurred
}

// TaskFunc is one unit of work submitted to the pool.
type TaskFunc func(context.Context) error

// Task is the handle returned by Submit. Wait blocks until the task has
// run (or been rejected by context cancellation) and returns its error.
type Task struct {
	name Name
	fn   TaskFunc
	ctx  context.Context
	done chan struct{}
	err  error

	queuedAt time.Time
}

// Wait blocks until the task completes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done returns a channel closed when the task completes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task error. Valid only after Done is closed.
func (t *Task) Err() error { return t.err }

// WorkerPool is a bounded-parallelism executor: up to `workers` tasks run
// simultaneously, the remainder queue in strict submission order (FIFO, no
// priority), and each completion immediately promotes the next queued
// task. A task's own failure never cancels or blocks other tasks; it only
// frees the slot earlier.
type WorkerPool struct {
	name    Name
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Task
	active int
	closed bool
	wg     sync.WaitGroup

	clock   clockz.Clock
	metrics *metricz.Registry
	hooks   *hookz.Hooks[PoolEvent]
}

// NewWorkerPool creates a pool running at most `workers` tasks at once.
func NewWorkerPool(name Name, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1 // Sensible default
	}

	metrics := metricz.New()
	metrics.Counter(PoolTasksTotal)
	metrics.Counter(PoolSuccessTotal)
	metrics.Counter(PoolFailuresTotal)
	metrics.Gauge(PoolWorkersMax)
	metrics.Gauge(PoolWorkersActive)
	metrics.Gauge(PoolQueueDepth)
	metrics.Gauge(PoolQueueWaitMs)
	metrics.Gauge(PoolWorkersMax).Set(float64(workers))

	p := &WorkerPool{
		name:    name,
		workers: workers,
		clock:   clockz.RealClock,
		metrics: metrics,
		hooks:   hookz.New[PoolEvent](),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues a task for execution and returns its handle. The task's
// context is checked immediately before the task runs; a canceled context
// fails the task without running it.
func (p *WorkerPool) Submit(ctx context.Context, name Name, fn TaskFunc) *Task {
	task := &Task{
		name:     name,
		fn:       fn,
		ctx:      ctx,
		done:     make(chan struct{}),
		queuedAt: p.clock.Now(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		task.err = ErrPoolClosed
		close(task.done)
		return task
	}
	p.queue = append(p.queue, task)
	depth := len(p.queue)
	active := p.active
	p.metrics.Gauge(PoolQueueDepth).Set(float64(depth))
	p.metrics.Counter(PoolTasksTotal).Inc()
	saturated := active >= p.workers
	p.cond.Signal()
	p.mu.Unlock()

	if saturated {
		capitan.Info(ctx, SignalPoolSaturated,
			FieldName.Field(string(p.name)),
			FieldWorkerCount.Field(p.workers),
			FieldQueueDepth.Field(depth),
		)
	}

	_ = p.hooks.Emit(ctx, PoolEventTaskQueued, PoolEvent{ //nolint:errcheck
		Name:          p.name,
		TaskName:      name,
		WorkerCount:   p.workers,
		ActiveWorkers: active,
		QueueDepth:    depth,
		Timestamp:     p.clock.Now(),
	})
	return task
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.active++
		p.metrics.Gauge(PoolQueueDepth).Set(float64(len(p.queue)))
		p.metrics.Gauge(PoolWorkersActive).Set(float64(p.active))
		p.mu.Unlock()

		p.run(task)

		p.mu.Lock()
		p.active--
		p.metrics.Gauge(PoolWorkersActive).Set(float64(p.active))
		p.mu.Unlock()
	}
}

func (p *WorkerPool) run(task *Task) {
	queueWait := p.clock.Now().Sub(task.queuedAt)
	p.metrics.Gauge(PoolQueueWaitMs).Set(float64(queueWait.Milliseconds()))

	_ = p.hooks.Emit(task.ctx, PoolEventTaskStarted, PoolEvent{ //nolint:errcheck
		Name:        p.name,
		TaskName:    task.name,
		WorkerCount: p.workers,
		QueueWait:   queueWait,
		Timestamp:   p.clock.Now(),
	})

	start := p.clock.Now()
	if err := task.ctx.Err(); err != nil {
		task.err = err
	} else {
		task.err = task.fn(task.ctx)
	}
	duration := p.clock.Now().Sub(start)

	if task.err == nil {
		p.metrics.Counter(PoolSuccessTotal).Inc()
	} else {
		p.metrics.Counter(PoolFailuresTotal).Inc()
	}

	_ = p.hooks.Emit(task.ctx, PoolEventTaskComplete, PoolEvent{ //nolint:errcheck
		Name:        p.name,
		TaskName:    task.name,
		WorkerCount: p.workers,
		Duration:    duration,
		Success:     task.err == nil,
		Err:         task.err,
		Timestamp:   p.clock.Now(),
	})
	close(task.done)
}

// Name returns the name of this pool.
func (p *WorkerPool) Name() Name { return p.name }

// WorkerCount returns the maximum number of concurrent tasks.
func (p *WorkerPool) WorkerCount() int { return p.workers }

// ActiveWorkers returns the number of tasks currently running.
func (p *WorkerPool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *WorkerPool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// WithClock sets a custom clock for testing.
func (p *WorkerPool) WithClock(clock clockz.Clock) *WorkerPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	return p
}

// Metrics returns the metrics registry for this pool.
func (p *WorkerPool) Metrics() *metricz.Registry { return p.metrics }

// OnTaskQueued registers a handler for when a task is queued.
func (p *WorkerPool) OnTaskQueued(handler func(context.Context, PoolEvent) error) error {
	_, err := p.hooks.Hook(PoolEventTaskQueued, handler)
	return err
}

// OnTaskStarted registers a handler for when a task acquires a worker.
func (p *WorkerPool) OnTaskStarted(handler func(context.Context, PoolEvent) error) error {
	_, err := p.hooks.Hook(PoolEventTaskStarted, handler)
	return err
}

// OnTaskComplete registers a handler for when a task finishes.
func (p *WorkerPool) OnTaskComplete(handler func(context.Context, PoolEvent) error) error {
	_, err := p.hooks.Hook(PoolEventTaskComplete, handler)
	return err
}

// Close drains the queue: already-submitted tasks still run, new
// submissions are rejected. It blocks until all workers exit.
func (p *WorkerPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.hooks.Close()
	return nil
}
