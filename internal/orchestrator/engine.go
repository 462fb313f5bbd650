package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/metrics"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/parsers"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/urlbuilder"
	"github.com/google/uuid"
)

var (
	ErrQueueFull = errors.New("orchestrator: task queue full")
	ErrTimeout   = errors.New("orchestrator: timed out waiting for task result")
)

// taskResultTimeout bounds how long RunJob waits for any single task,
// generous enough for a full fetch retry loop plus an API follow-up.
const taskResultTimeout = 3 * time.Minute

// Engine fans a scrape job out across per-dealer workers and blocks in
// RunJob until every task reaches success or failed. Adapted from
// internal/bidengine/engine.go's Engine: same functional-option
// construction, same queue+dispatcher decoupling, same lazily-created
// per-key worker map and atomic counters, generalized from per-auction
// keying to per-dealer-task keying.
type Engine struct {
	store     *store.Store
	processor *Processor
	logger    *slog.Logger

	teamVelocityDealerIDs map[int64]bool

	queue     chan taskRequest
	queueSize int

	workers   map[int64]*worker
	workersMu sync.RWMutex

	results   map[int64]chan domain.ScrapeTask
	resultsMu sync.RWMutex

	totalProcessed atomic.Int64
	totalFailed    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	syncMode bool
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSyncMode runs every task inline on RunJob's goroutine instead of
// through the worker pool, for deterministic tests.
func WithSyncMode(v bool) Option { return func(e *Engine) { e.syncMode = v } }

// WithQueueSize overrides the intake queue's buffer (default 1000,
// mirroring config.JobQueueSize).
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithTeamVelocityDealerIDs supplies the dealer-ID set ClassifyBackend uses
// to route ambiguous dealers to the Team Velocity parser.
func WithTeamVelocityDealerIDs(ids map[int64]bool) Option {
	return func(e *Engine) { e.teamVelocityDealerIDs = ids }
}

func NewEngine(st *store.Store, processor *Processor, logger *slog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:                 st,
		processor:             processor,
		logger:                logger,
		teamVelocityDealerIDs: map[int64]bool{},
		queueSize:             1000,
		workers:               make(map[int64]*worker),
		results:               make(map[int64]chan domain.ScrapeTask),
		ctx:                   ctx,
		cancel:                cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = make(chan taskRequest, e.queueSize)
	return e
}

func (e *Engine) Start() {
	if e.syncMode {
		e.logger.Info("orchestrator_started", slog.Bool("sync_mode", true))
		return
	}
	e.wg.Add(1)
	go e.dispatcher()
	e.logger.Info("orchestrator_started", slog.Int("queue_size", e.queueSize))
}

func (e *Engine) Stop() {
	e.logger.Info("orchestrator_stopping")
	e.cancel()
	e.wg.Wait()

	e.workersMu.Lock()
	for _, w := range e.workers {
		w.Stop()
	}
	e.workersMu.Unlock()

	e.logger.Info("orchestrator_stopped",
		slog.Int64("total_processed", e.totalProcessed.Load()),
		slog.Int64("total_failed", e.totalFailed.Load()),
	)
}

func (e *Engine) dispatcher() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case req := <-e.queue:
			e.routeToWorker(req)
		}
	}
}

func (e *Engine) routeToWorker(req taskRequest) {
	e.workersMu.Lock()
	w, exists := e.workers[req.dealer.ID]
	if !exists {
		w = newWorker(req.dealer.ID, e.processor)
		w.OnResult = e.deliverResult
		w.OnComplete = func() { e.totalProcessed.Add(1) }
		e.workers[req.dealer.ID] = w
		w.Start()
	}
	e.workersMu.Unlock()
	w.Submit(req)
}

func (e *Engine) submit(req taskRequest) (chan domain.ScrapeTask, error) {
	ch := make(chan domain.ScrapeTask, 1)
	e.resultsMu.Lock()
	e.results[req.task.ID] = ch
	e.resultsMu.Unlock()

	if e.syncMode {
		result := e.processor.Process(e.ctx, req.task, req.dealer, req.model)
		e.deliverResult(req.task.ID, result)
		return ch, nil
	}

	select {
	case e.queue <- req:
		return ch, nil
	default:
		e.cleanupResult(req.task.ID)
		return nil, ErrQueueFull
	}
}

func (e *Engine) deliverResult(taskID int64, result domain.ScrapeTask) {
	e.resultsMu.RLock()
	ch, exists := e.results[taskID]
	e.resultsMu.RUnlock()
	if !exists {
		return
	}
	select {
	case ch <- result:
	default:
	}
}

func (e *Engine) cleanupResult(taskID int64) {
	e.resultsMu.Lock()
	delete(e.results, taskID)
	e.resultsMu.Unlock()
}

func (e *Engine) awaitResult(taskID int64, ch chan domain.ScrapeTask, timeout time.Duration) (domain.ScrapeTask, error) {
	defer e.cleanupResult(taskID)
	select {
	case result := <-ch:
		return result, nil
	case <-time.After(timeout):
		return domain.ScrapeTask{}, ErrTimeout
	}
}

// pendingTask tracks a submitted task awaiting its worker's result.
type pendingTask struct {
	ch     chan domain.ScrapeTask
	taskID int64
	task   domain.ScrapeTask
}

// RunJob builds a URL per dealer, fans out whatever builds successfully to
// the worker pool, waits for every task to reach a terminal state, and
// closes the job with the fail/success-derived status rollup.
func (e *Engine) RunJob(ctx context.Context, dealers []domain.Dealer, model, region string) (domain.JobSummary, error) {
	job, err := e.store.CreateJob(ctx, model, region, len(dealers))
	if err != nil {
		return domain.JobSummary{}, err
	}
	if err := e.store.StartJob(ctx, job.ID); err != nil {
		e.logger.Warn("start_job_failed", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
	}

	tasks := make([]domain.ScrapeTask, 0, len(dealers))
	var waiting []pendingTask

	for _, dealer := range dealers {
		dealer.BackendType = parsers.ClassifyBackend(dealer, e.teamVelocityDealerIDs)

		var overrides map[string]string
		if tmpl, err := e.store.GetDealerBackendTemplate(ctx, dealer.ID); err == nil && tmpl != nil {
			overrides = tmpl.Tokens
		}

		builtURL, buildErr := urlbuilder.Build(dealer, model, overrides)
		if buildErr != nil {
			tasks = append(tasks, e.failBuildTask(ctx, job.ID, dealer, buildErr))
			continue
		}

		taskID, err := e.store.CreateTask(ctx, job.ID, dealer.ID, builtURL)
		if err != nil {
			e.logger.Error("create_task_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
			continue
		}
		task := domain.ScrapeTask{
			ID: taskID, JobID: job.ID, DealerID: dealer.ID, URL: builtURL,
			Attempt: 1, Status: domain.TaskStatusPending,
		}

		ch, err := e.submit(taskRequest{task: task, dealer: dealer, model: model})
		if err != nil {
			e.logger.Error("submit_task_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
			continue
		}
		waiting = append(waiting, pendingTask{ch: ch, taskID: taskID, task: task})
	}

	for _, w := range waiting {
		result, err := e.awaitResult(w.taskID, w.ch, taskResultTimeout)
		if err != nil {
			result = w.task
			result.Status = domain.TaskStatusFailed
			result.Error = err.Error()
			e.totalFailed.Add(1)
		}
		tasks = append(tasks, result)
	}

	successCount, failCount := 0, 0
	for _, t := range tasks {
		if t.Status == domain.TaskStatusSuccess {
			successCount++
		} else {
			failCount++
		}
	}

	status := domain.JobStatusSuccess
	switch {
	case failCount > 0 && successCount > 0:
		status = domain.JobStatusPartial
	case failCount > 0 && successCount == 0:
		status = domain.JobStatusFailed
	}

	if err := e.store.CloseJob(ctx, job.ID, status, successCount, failCount); err != nil {
		e.logger.Error("close_job_failed", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
	}
	metrics.ScrapeJobsTotal.WithLabelValues(status).Inc()

	return domain.JobSummary{
		JobID: job.ID, Status: status, TargetCount: len(dealers),
		SuccessCount: successCount, FailCount: failCount, Tasks: tasks,
	}, nil
}

// failBuildTask records a task that never runs: it is created and marked
// failed at once, since URL build failures (unsupported model, missing
// placeholder) are not retried.
func (e *Engine) failBuildTask(ctx context.Context, jobID uuid.UUID, dealer domain.Dealer, buildErr error) domain.ScrapeTask {
	taskID, err := e.store.CreateTask(ctx, jobID, dealer.ID, "")
	if err != nil {
		e.logger.Error("create_task_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
		e.totalFailed.Add(1)
		return domain.ScrapeTask{DealerID: dealer.ID, Status: domain.TaskStatusFailed, Error: buildErr.Error()}
	}

	now := time.Now()
	failed := domain.ScrapeTask{
		ID: taskID, JobID: jobID, DealerID: dealer.ID, Status: domain.TaskStatusFailed,
		Error: buildErr.Error(), StartedAt: &now, CompletedAt: &now,
	}
	if err := e.store.UpdateTask(ctx, failed); err != nil {
		e.logger.Error("update_task_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
	}
	metrics.ScrapeTasksTotal.WithLabelValues(domain.TaskStatusFailed, string(dealer.BackendType)).Inc()
	e.totalFailed.Add(1)
	return failed
}
