// Package orchestrator drives a scrape job's per-dealer fan-out: build URL,
// fetch under the rate limiter and concurrency gate, parse with the
// backend-specific fallback chains, then reconcile. Per-dealer keying keeps
// two jobs from hitting the same dealer concurrently, with each task running
// through a fetch->parse->reconcile attempt loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/blobstore"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/fetchclient"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/metrics"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/tracing"
)

// fetcher is the Fetch Client surface Processor needs.
type fetcher interface {
	Fetch(ctx context.Context, url string, allowExtractFallback bool) (*fetchclient.Result, error)
}

// limiterI is the rate limiter / concurrency gate surface.
type limiterI interface {
	Acquire(ctx context.Context) (func(), error)
}

// blobPutter is the narrow blob store surface (internal/blobstore.Store).
type blobPutter interface {
	Put(ctx context.Context, key, content string) (string, error)
}

type ingestReconciler interface {
	Reconcile(ctx context.Context, rows []domain.IngestRow) (domain.IngestResult, error)
}

type absenceReconciler interface {
	Reconcile(ctx context.Context, dealerID int64, model string, observedVINs map[string]bool, inventoryRank int) (int, error)
}

// taskStore is the task-persistence surface Processor writes through as it
// transitions a task across its lifecycle.
type taskStore interface {
	UpdateTask(ctx context.Context, t domain.ScrapeTask) error
}

// templateStore lets Processor record a backend discovered through the
// SmartPath candidate-URL fallback chain as a dealer_backend_templates row.
// ClassifyBackend does not read these rows; the engine reads back only a
// template's token overrides.
type templateStore interface {
	SaveDealerBackendTemplate(ctx context.Context, t domain.DealerBackendTemplate) error
}

// Processor runs one dealer task end to end: one span per task, an attempt
// loop that retries immediately (backoff happens inside the Fetch Client),
// and a persist-at-every-transition discipline.
type Processor struct {
	store     taskStore
	templates templateStore
	fetch     fetcher
	limiter   limiterI
	blobs     blobPutter
	ingest    ingestReconciler
	absence   absenceReconciler
	api       *apiHTTPClient
	logger    *slog.Logger

	maxAttempts int
}

func NewProcessor(
	st taskStore, templates templateStore, fetch fetcher, limiter limiterI, blobs blobPutter,
	ingest ingestReconciler, absence absenceReconciler, apiTimeout time.Duration, maxAttempts int, logger *slog.Logger,
) *Processor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Processor{
		store: st, templates: templates, fetch: fetch, limiter: limiter, blobs: blobs,
		ingest: ingest, absence: absence, api: newAPIHTTPClient(apiTimeout),
		logger: logger, maxAttempts: maxAttempts,
	}
}

// Process runs task's fetch/parse/reconcile attempt loop to a terminal
// state and returns the final task row. dealer.BackendType must already
// carry the seed-time classification (parsers.ClassifyBackend).
func (p *Processor) Process(ctx context.Context, task domain.ScrapeTask, dealer domain.Dealer, model string) domain.ScrapeTask {
	ctx, span := tracing.StartSpan(ctx, "orchestrator.process_task")
	defer span.End()

	taskStart := time.Now()
	startedAt := time.Now()
	task.Status = domain.TaskStatusRunning
	task.StartedAt = &startedAt
	p.persist(ctx, task)

	backend := dealer.BackendType
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		task.Attempt = attempt

		release, err := p.limiter.Acquire(ctx)
		if err != nil {
			return p.fail(ctx, task, taskStart, backend, fmt.Errorf("rate limiter acquire: %w", err))
		}

		allowExtract := attempt == p.maxAttempts
		result, fetchErr := p.fetch.Fetch(ctx, task.URL, allowExtract)
		release()

		if fetchErr != nil {
			var retryable *fetchclient.RetryableError
			if errors.As(fetchErr, &retryable) && attempt < p.maxAttempts {
				lastErr = fetchErr
				metrics.ScrapeFetchRetries.Observe(float64(attempt))
				p.logger.Debug("task_fetch_retry",
					slog.Int64("dealer_id", dealer.ID), slog.Int("attempt", attempt), slog.String("error", fetchErr.Error()))
				continue
			}
			return p.fail(ctx, task, taskStart, backend, fetchErr)
		}

		rows, discovered, parseErr := p.parseWithFallback(ctx, dealer, backend, model, task.URL, result)
		if parseErr != nil {
			lastErr = parseErr
			if attempt < p.maxAttempts {
				p.logger.Debug("task_parse_retry",
					slog.Int64("dealer_id", dealer.ID), slog.Int("attempt", attempt), slog.String("error", parseErr.Error()))
				continue
			}
			return p.fail(ctx, task, taskStart, backend, parseErr)
		}
		if discovered != "" && discovered != backend {
			backend = discovered
			metrics.ScrapeFallbacksUsedTotal.WithLabelValues(string(discovered)).Inc()
		}

		blobSuffix := "md"
		if result.Markdown == "" && (result.HTML != "" || result.RawHTML != "") {
			blobSuffix = "html"
		}
		blobKey := blobstore.BuildKey(task.JobID.String(), dealer.ID, time.Now().UnixMilli(), blobSuffix)
		if _, err := p.blobs.Put(ctx, blobKey, result.BestContent()); err != nil {
			p.logger.Warn("blob_store_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
		}

		observed := vinSet(rows)
		if len(rows) > 0 {
			ingestRows := toIngestRows(rows, task.JobID.String(), dealer.ID, blobKey)
			if _, err := p.ingest.Reconcile(ctx, ingestRows); err != nil {
				return p.fail(ctx, task, taskStart, backend, fmt.Errorf("reconcile ingest: %w", err))
			}
		}

		if _, err := p.absence.Reconcile(ctx, dealer.ID, model, observed, domain.SourceRankInventory); err != nil {
			p.logger.Warn("absence_reconcile_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
		}

		return p.succeed(ctx, task, taskStart, backend)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("orchestrator: task exhausted %d attempts with no recorded error", p.maxAttempts)
	}
	return p.fail(ctx, task, taskStart, backend, lastErr)
}

func (p *Processor) succeed(ctx context.Context, task domain.ScrapeTask, start time.Time, backend domain.Backend) domain.ScrapeTask {
	completed := time.Now()
	task.Status = domain.TaskStatusSuccess
	task.Error = ""
	task.CompletedAt = &completed
	p.persist(ctx, task)
	metrics.ScrapeTasksTotal.WithLabelValues(task.Status, string(backend)).Inc()
	metrics.ScrapeTaskDuration.WithLabelValues(string(backend)).Observe(time.Since(start).Seconds())
	return task
}

func (p *Processor) fail(ctx context.Context, task domain.ScrapeTask, start time.Time, backend domain.Backend, err error) domain.ScrapeTask {
	tracing.RecordError(ctx, err)
	completed := time.Now()
	task.Status = domain.TaskStatusFailed
	task.Error = err.Error()
	task.CompletedAt = &completed
	p.persist(ctx, task)
	metrics.ScrapeTasksTotal.WithLabelValues(task.Status, string(backend)).Inc()
	metrics.ScrapeTaskDuration.WithLabelValues(string(backend)).Observe(time.Since(start).Seconds())
	return task
}

func (p *Processor) persist(ctx context.Context, task domain.ScrapeTask) {
	if err := p.store.UpdateTask(ctx, task); err != nil {
		p.logger.Error("task_persist_failed", slog.Int64("task_id", task.ID), slog.String("error", err.Error()))
	}
}

func (p *Processor) saveDiscoveredTemplate(ctx context.Context, dealer domain.Dealer, discovered domain.Backend) {
	if p.templates == nil || discovered == "" {
		return
	}
	err := p.templates.SaveDealerBackendTemplate(ctx, domain.DealerBackendTemplate{
		DealerID:    dealer.ID,
		BackendType: discovered,
		Template:    dealer.InventoryURLTmpl,
		Notes:       "discovered via smartpath candidate-url fallback chain",
	})
	if err != nil {
		p.logger.Warn("save_discovered_template_failed", slog.Int64("dealer_id", dealer.ID), slog.String("error", err.Error()))
	}
}

func vinSet(rows []domain.ParsedRow) map[string]bool {
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.VIN != "" {
			out[strings.ToUpper(r.VIN)] = true
		}
	}
	return out
}

func toIngestRows(rows []domain.ParsedRow, jobID string, dealerID int64, blobKey string) []domain.IngestRow {
	out := make([]domain.IngestRow, 0, len(rows))
	now := time.Now().UTC()
	rank := domain.SourceRankInventory
	for _, r := range rows {
		out = append(out, domain.IngestRow{
			DealerID:   dealerID,
			JobID:      jobID,
			ObservedAt: now,
			Source:     domain.SourceInventoryList,
			SourceRank: &rank,
			VDPURL:     r.VDPURL,
			RawBlobKey: blobKey,
			Row:        r,
		})
	}
	return out
}
