package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/shared"
)

// Task is a unit of background work
type Task func(ctx context.Context) error

type queuedTask struct {
	name       string
	run        Task
	enqueuedAt time.Time
}

// Dispatcher runs fire-and-forget side effects on a fixed worker pool.
// Submit never blocks: when the queue is full the task is dropped.
type Dispatcher struct {
	queue       chan queuedTask
	workers     int
	taskTimeout time.Duration

	wg       sync.WaitGroup
	mutex    sync.RWMutex
	closed   bool
	dropped  atomic.Int64
	failures atomic.Int64

	serviceMetrics *shared.ServiceMetrics
}

// NewDispatcher starts cfg.Workers goroutines reading from a queue of cfg.QueueSize
func NewDispatcher(cfg shared.BackgroundConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		queue:          make(chan queuedTask, cfg.QueueSize),
		workers:        cfg.Workers,
		taskTimeout:    cfg.TaskTimeout,
		serviceMetrics: shared.NewServiceMetrics("Background_Dispatcher"),
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}

	logrus.WithFields(logrus.Fields{
		"component":    "Dispatcher",
		"workers":      d.workers,
		"queue_size":   cfg.QueueSize,
		"task_timeout": d.taskTimeout,
	}).Info("Background dispatcher started")

	return d
}

// Submit enqueues task and reports whether it was accepted
func (d *Dispatcher) Submit(name string, task Task) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	logger := logrus.WithFields(logrus.Fields{
		"component": "Dispatcher",
		"task":      name,
	})

	if d.closed {
		logger.Warn("Dispatcher is shut down, dropping task")
		d.dropped.Add(1)
		return false
	}

	select {
	case d.queue <- queuedTask{name: name, run: task, enqueuedAt: time.Now()}:
		return true
	default:
		d.dropped.Add(1)
		d.serviceMetrics.RecordOutcome("dropped")
		logger.WithField("queue_depth", len(d.queue)).Warn("Background queue full, dropping task")
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish or ctx to expire
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mutex.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.WithFields(logrus.Fields{
			"component": "Dispatcher",
			"dropped":   d.dropped.Load(),
			"failures":  d.failures.Load(),
		}).Info("Background dispatcher drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background dispatcher did not drain: %w", ctx.Err())
	}
}

// Dropped returns how many tasks were refused
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Failures returns how many tasks returned an error or panicked
func (d *Dispatcher) Failures() int64 {
	return d.failures.Load()
}

// GetServiceMetrics returns task execution metrics
func (d *Dispatcher) GetServiceMetrics() *shared.ServiceMetrics {
	return d.serviceMetrics
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()
	for task := range d.queue {
		d.execute(id, task)
	}
}

func (d *Dispatcher) execute(workerID int, task queuedTask) {
	startTime := time.Now()
	logger := logrus.WithFields(logrus.Fields{
		"component": "Dispatcher",
		"worker":    workerID,
		"task":      task.name,
	})

	ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return task.run(ctx)
	}()

	d.serviceMetrics.RecordRequest(err == nil, time.Since(startTime))
	if err != nil {
		d.failures.Add(1)
		logger.WithError(err).WithField("queued_for", startTime.Sub(task.enqueuedAt)).Warn("Background task failed")
		return
	}

	logger.WithField("duration", time.Since(startTime)).Debug("Background task completed")
}
