package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/fetchclient"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeFetcher struct {
	result *fetchclient.Result
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, allowExtractFallback bool) (*fetchclient.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLimiter struct{ acquired int }

func (f *fakeLimiter) Acquire(ctx context.Context) (func(), error) {
	f.acquired++
	return func() {}, nil
}

type fakeBlobs struct{ puts []string }

func (f *fakeBlobs) Put(ctx context.Context, key, content string) (string, error) {
	f.puts = append(f.puts, key)
	return key, nil
}

type fakeIngest struct {
	rows []domain.IngestRow
	err  error
}

func (f *fakeIngest) Reconcile(ctx context.Context, rows []domain.IngestRow) (domain.IngestResult, error) {
	f.rows = rows
	if f.err != nil {
		return domain.IngestResult{}, f.err
	}
	return domain.IngestResult{Observations: len(rows), ListingsUpserted: len(rows)}, nil
}

type fakeAbsence struct {
	dealerID int64
	observed map[string]bool
}

func (f *fakeAbsence) Reconcile(ctx context.Context, dealerID int64, model string, observedVINs map[string]bool, inventoryRank int) (int, error) {
	f.dealerID = dealerID
	f.observed = observedVINs
	return 0, nil
}

type fakeTaskStore struct{ tasks []domain.ScrapeTask }

func (f *fakeTaskStore) UpdateTask(ctx context.Context, t domain.ScrapeTask) error {
	f.tasks = append(f.tasks, t)
	return nil
}

func newTestProcessor(fetch *fakeFetcher, taskStore *fakeTaskStore, ingest *fakeIngest, absence *fakeAbsence) *Processor {
	return NewProcessor(taskStore, nil, fetch, &fakeLimiter{}, &fakeBlobs{}, ingest, absence, 5*time.Second, 2, testLogger())
}

func TestProcess_CDKMarkupSuccessSkipsFollowUp(t *testing.T) {
	fetch := &fakeFetcher{result: &fetchclient.Result{Markdown: "Status: Available Price $41,900 VIN 1GCUYEED5NZ123456"}}
	taskStore := &fakeTaskStore{}
	ingest := &fakeIngest{}
	absence := &fakeAbsence{}
	p := newTestProcessor(fetch, taskStore, ingest, absence)

	dealer := domain.Dealer{ID: 1, BackendType: domain.BackendCDK}
	task := domain.ScrapeTask{ID: 1, JobID: uuid.New(), URL: "https://dealer.example.com/inventory"}

	result := p.Process(context.Background(), task, dealer, "Tacoma")

	assert.Equal(t, domain.TaskStatusSuccess, result.Status)
	require.Len(t, taskStore.tasks, 2) // running, then success
	assert.Equal(t, domain.TaskStatusRunning, taskStore.tasks[0].Status)

	require.Len(t, ingest.rows, 1)
	require.NotNil(t, ingest.rows[0].SourceRank)
	assert.Equal(t, domain.SourceRankInventory, *ingest.rows[0].SourceRank)
}

func TestProcess_FetchTerminalErrorFailsImmediately(t *testing.T) {
	fetch := &fakeFetcher{err: errors.New("upstream 401")}
	taskStore := &fakeTaskStore{}
	ingest := &fakeIngest{}
	absence := &fakeAbsence{}
	p := newTestProcessor(fetch, taskStore, ingest, absence)

	dealer := domain.Dealer{ID: 2, BackendType: domain.BackendDealerCom}
	task := domain.ScrapeTask{ID: 2, JobID: uuid.New(), URL: "https://dealer.example.com/inventory"}

	result := p.Process(context.Background(), task, dealer, "Tacoma")

	assert.Equal(t, domain.TaskStatusFailed, result.Status)
	assert.Equal(t, 1, fetch.calls) // no retry on a non-retryable error
}

func TestProcess_RetryableFetchErrorRetriesUpToMaxAttempts(t *testing.T) {
	fetch := &fakeFetcher{err: &fetchclient.RetryableError{}}
	taskStore := &fakeTaskStore{}
	ingest := &fakeIngest{}
	absence := &fakeAbsence{}
	p := newTestProcessor(fetch, taskStore, ingest, absence)

	dealer := domain.Dealer{ID: 3, BackendType: domain.BackendDealerCom}
	task := domain.ScrapeTask{ID: 3, JobID: uuid.New(), URL: "https://dealer.example.com/inventory"}

	result := p.Process(context.Background(), task, dealer, "Tacoma")

	assert.Equal(t, domain.TaskStatusFailed, result.Status)
	assert.Equal(t, 2, fetch.calls) // maxAttempts == 2
}

func TestProcess_EmptyInventoryStillSucceedsAndRunsAbsence(t *testing.T) {
	fetch := &fakeFetcher{result: &fetchclient.Result{Markdown: "no vehicles currently in stock"}}
	taskStore := &fakeTaskStore{}
	ingest := &fakeIngest{}
	absence := &fakeAbsence{}
	p := newTestProcessor(fetch, taskStore, ingest, absence)

	dealer := domain.Dealer{ID: 4, BackendType: domain.BackendDealerCom}
	task := domain.ScrapeTask{ID: 4, JobID: uuid.New(), URL: "https://dealer.example.com/inventory"}

	result := p.Process(context.Background(), task, dealer, "Tacoma")

	assert.Equal(t, domain.TaskStatusSuccess, result.Status)
	assert.Equal(t, int64(4), absence.dealerID)
	assert.Empty(t, absence.observed)
}

func TestSelectContent_DealerOnPrefersRawHTML(t *testing.T) {
	result := &fetchclient.Result{Markdown: "md", HTML: "html", RawHTML: "raw"}
	assert.Equal(t, "raw", selectContent(domain.BackendDealerOn, result))
	assert.Equal(t, "md", selectContent(domain.BackendDealerCom, result))
}

func TestEnsureCanonical_AddsTagWhenAbsent(t *testing.T) {
	dealer := domain.Dealer{HomepageURL: "https://example-toyota.com"}
	out := ensureCanonical("<html></html>", dealer)
	assert.Contains(t, out, `rel="canonical"`)
	assert.Contains(t, out, dealer.HomepageURL)
}

func TestEnsureCanonical_LeavesExistingTagAlone(t *testing.T) {
	dealer := domain.Dealer{HomepageURL: "https://example-toyota.com"}
	content := `<link rel="canonical" href="https://other.example.com">`
	assert.Equal(t, content, ensureCanonical(content, dealer))
}

func TestModelSlug(t *testing.T) {
	assert.Equal(t, "tacoma", modelSlug("Tacoma"))
	assert.Equal(t, "land-cruiser", modelSlug("Land Cruiser"))
	assert.Equal(t, "4runner", modelSlug("4Runner"))
}

func TestResolveAgainst_RelativeEndpoint(t *testing.T) {
	got := resolveAgainst("https://dealer.example.com/inventory/new", "/api/widget/ws-inv-data/getInventory")
	assert.Equal(t, "https://dealer.example.com/api/widget/ws-inv-data/getInventory", got)
}

func TestVinSet_UppercasesAndDedupes(t *testing.T) {
	rows := []domain.ParsedRow{{VIN: "abc123"}, {VIN: "ABC123"}, {VIN: ""}}
	set := vinSet(rows)
	assert.Len(t, set, 1)
	assert.True(t, set["ABC123"])
}
