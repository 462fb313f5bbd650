package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
)

// taskRequest is one dealer's unit of work, queued to its per-dealer worker.
type taskRequest struct {
	task   domain.ScrapeTask
	dealer domain.Dealer
	model  string
}

// worker runs every task for a single dealer sequentially, so two jobs
// scraping the same dealer never fetch it concurrently. Own buffered queue,
// own ctx/cancel/wg lifecycle, a processed counter, and a run loop that
// dispatches to callbacks.
type worker struct {
	dealerID  int64
	processor *Processor

	queue chan taskRequest

	OnResult   func(taskID int64, result domain.ScrapeTask)
	OnComplete func()

	processed atomic.Int64
	lastRunAt atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWorker(dealerID int64, processor *Processor) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		dealerID:  dealerID,
		processor: processor,
		queue:     make(chan taskRequest, 32),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (w *worker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Submit enqueues req, blocking only on the worker's own shutdown.
func (w *worker) Submit(req taskRequest) {
	select {
	case w.queue <- req:
	case <-w.ctx.Done():
	}
}

func (w *worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.queue:
			result := w.processor.Process(w.ctx, req.task, req.dealer, req.model)
			w.processed.Add(1)
			w.lastRunAt.Store(time.Now().Unix())
			if w.OnResult != nil {
				w.OnResult(req.task.ID, result)
			}
			if w.OnComplete != nil {
				w.OnComplete()
			}
		}
	}
}
