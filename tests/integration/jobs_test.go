package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/blobstore"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/fetchclient"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/handler"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/orchestrator"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/ratelimit"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/reconcile"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/Condor83/vehicle-inventory-system-v2/tests/fixtures"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withURLParam injects a chi URL param the way the router would, so handler
// methods can be exercised directly without going through chi's mux.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// newSyncEngine wires a real Engine whose fetch client points at an
// unreachable address, so submitted tasks fail fast (connection refused)
// instead of hanging for the production fetch timeout.
func newSyncEngine(t *testing.T, st *store.Store, logger *slog.Logger) *orchestrator.Engine {
	t.Helper()

	fetch := fetchclient.New("http://127.0.0.1:1", "", 2*time.Second, 1, 10*time.Millisecond, logger)
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	blobs, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ingestReconciler := reconcile.NewIngestReconciler(st, logger)
	absenceReconciler := reconcile.NewAbsenceReconciler(st, logger)

	processor := orchestrator.NewProcessor(
		st, st, fetch, limiter, blobs, ingestReconciler, absenceReconciler,
		2*time.Second, 1, logger,
	)
	engine := orchestrator.NewEngine(st, processor, logger, orchestrator.WithSyncMode(true))
	engine.Start()
	t.Cleanup(engine.Stop)
	return engine
}

func TestCreateJobAndGetJob(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.New(db, logger)

	fixtures.TestDealer(t, db, "dealer_com")

	engine := newSyncEngine(t, st, logger)
	h := handler.NewJobHandler(st, engine, logger)

	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(`{"model":"tacoma","region":"west"}`))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var summary domain.JobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TargetCount)
	assert.Equal(t, domain.JobStatusFailed, summary.Status)
	assert.Equal(t, 1, summary.FailCount)

	getReq := httptest.NewRequest("GET", "/api/jobs/"+summary.JobID.String(), nil)
	getReq = withURLParam(getReq, "id", summary.JobID.String())
	getRec := httptest.NewRecorder()
	h.GetJob(getRec, getReq)

	assert.Equal(t, http.StatusOK, getRec.Code)

	var job struct {
		*domain.ScrapeJob
		Tasks []domain.ScrapeTask `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &job))
	require.NotNil(t, job.ScrapeJob)
	assert.Equal(t, summary.JobID, job.ID)
	assert.Len(t, job.Tasks, 1)
}

func TestGetJobNotFound(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.New(db, logger)

	h := handler.NewJobHandler(st, nil, logger)

	unknown := uuid.New().String()
	req := httptest.NewRequest("GET", "/api/jobs/"+unknown, nil)
	req = withURLParam(req, "id", unknown)
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateJobRejectsMissingModel(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.New(db, logger)

	h := handler.NewJobHandler(st, nil, logger)

	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(`{"region":"west"}`))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobRejectsUnknownRegion(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.New(db, logger)

	h := handler.NewJobHandler(st, nil, logger)

	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(`{"model":"tacoma","region":"nonexistent-region"}`))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
