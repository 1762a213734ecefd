package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/feedrelay/app/cfg"
	"github.com/mkoval/feedrelay/app/database"
)

const (
	taskQueueSize  = 300
	taskTimeout    = 5 * time.Minute
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

type TaskScheduler struct {
	dedupStore    database.DedupStore
	configCache   ConfigCacheInterface
	subscriber    SubscriberInterface
	callbackURL   string
	leaseSeconds  int
	renewInterval time.Duration
	sweepInterval time.Duration
	workerCount   int
	taskQueue     chan TaskInterface
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

var _ TaskSchedulerInterface = (*TaskScheduler)(nil)

func NewTaskScheduler(dedupStore database.DedupStore, configCache ConfigCacheInterface, subscriber SubscriberInterface) *TaskScheduler {
	c := cfg.Get()
	ctx, cancel := context.WithCancel(context.Background())

	return &TaskScheduler{
		dedupStore:    dedupStore,
		configCache:   configCache,
		subscriber:    subscriber,
		callbackURL:   c.CallbackURL(),
		leaseSeconds:  c.LeaseSeconds,
		renewInterval: time.Duration(c.RenewInterval) * time.Second,
		sweepInterval: time.Duration(c.SweepInterval) * time.Second,
		workerCount:   c.WorkerCount,
		taskQueue:     make(chan TaskInterface, taskQueueSize),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (s *TaskScheduler) Start() {
	slog.Info("Starting task scheduler", "worker_count", s.workerCount)

	for i := range s.workerCount {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go s.tick()
}

func (s *TaskScheduler) Stop() {
	slog.Info("Stopping task scheduler")

	s.cancel()
	s.wg.Wait()

	slog.Info("Task scheduler stopped")
}

func (s *TaskScheduler) EnqueueTask(task TaskInterface) {
	select {
	case s.taskQueue <- task:
		slog.Debug("Task enqueued", "task_id", task.GetID(), "task_type", task.GetType(), "subject", task.GetSubject())
	case <-s.ctx.Done():
		dropTask(task)
	default:
		slog.Warn("Task queue is full, dropping task", "task_id", task.GetID(), "task_type", task.GetType(), "subject", task.GetSubject())
		dropTask(task)
	}
}

// dropHandler lets a task undo side effects taken before enqueueing when
// the scheduler cannot accept it.
type dropHandler interface {
	OnDrop()
}

func dropTask(task TaskInterface) {
	if handler, ok := task.(dropHandler); ok {
		handler.OnDrop()
	}
}

func (s *TaskScheduler) tick() {
	defer s.wg.Done()

	renewTicker := time.NewTicker(s.renewInterval)
	defer renewTicker.Stop()

	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()

	s.EnqueueTask(NewRenewSubscriptionsTask(s.subscriber, s.configCache, s.callbackURL, s.leaseSeconds))
	s.EnqueueTask(NewSweepDedupTask(s.dedupStore))

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-renewTicker.C:
			s.EnqueueTask(NewRenewSubscriptionsTask(s.subscriber, s.configCache, s.callbackURL, s.leaseSeconds))
		case <-sweepTicker.C:
			s.EnqueueTask(NewSweepDedupTask(s.dedupStore))
		}
	}
}

func (s *TaskScheduler) worker(id int) {
	defer s.wg.Done()

	slog.Debug("Worker started", "worker_id", id)

	for {
		select {
		case <-s.ctx.Done():
			slog.Debug("Worker stopped", "worker_id", id)
			return
		case task := <-s.taskQueue:
			s.executeTask(task, id)
		}
	}
}

func (s *TaskScheduler) executeTask(task TaskInterface, workerID int) {
	task.Start()

	slog.Debug("Executing task", "task_id", task.GetID(), "task_type", task.GetType(), "subject", task.GetSubject(), "worker_id", workerID)

	ctx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(ctx)
	if err == nil {
		slog.Debug("Task completed", "task_id", task.GetID(), "task_type", task.GetType(), "subject", task.GetSubject(), "duration", task.GetDuration())
		return
	}

	slog.Error("Task execution failed", "task_id", task.GetID(), "task_type", task.GetType(), "subject", task.GetSubject(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "task_id", task.GetID(), "task_type", task.GetType(), "subject", task.GetSubject(), "max_retries", task.GetMaxRetries())
		return
	}

	task.IncrementRetryCount()

	delay := min(baseRetryDelay*time.Duration(1<<(task.GetRetryCount()-1)), maxRetryDelay)

	select {
	case <-s.ctx.Done():
		return
	case <-time.After(delay):
		s.EnqueueTask(task)
	}
}
