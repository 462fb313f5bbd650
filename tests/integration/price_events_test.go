package integration

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/handler"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/Condor83/vehicle-inventory-system-v2/tests/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPriceEventsRequiresVIN(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	h := handler.NewPriceEventHandler(store.New(db, logger), logger)

	req := httptest.NewRequest("GET", "/api/price-events", nil)
	rec := httptest.NewRecorder()
	h.ListPriceEvents(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPriceEventsReturnsSeededEvents(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	dealerID := fixtures.TestDealer(t, db, "dealer_com")
	vin := "1FTFW1ET1EFA00099"
	fixtures.TestVehicle(t, db, vin, "Ford", "F-150")
	fixtures.TestPriceEvent(t, db, dealerID, vin, 45000, 43500)
	fixtures.TestPriceEvent(t, db, dealerID, vin, 43500, 42000)

	h := handler.NewPriceEventHandler(store.New(db, logger), logger)

	req := httptest.NewRequest("GET", "/api/price-events?vin="+vin, nil)
	rec := httptest.NewRecorder()
	h.ListPriceEvents(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []domain.PriceEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 2)
	for _, e := range resp.Events {
		assert.Equal(t, vin, e.VIN)
	}
}

func TestListPriceEventsRespectsLimit(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	dealerID := fixtures.TestDealer(t, db, "dealer_com")
	vin := "1FTFW1ET1EFA00100"
	fixtures.TestVehicle(t, db, vin, "Ford", "F-150")
	fixtures.TestPriceEvent(t, db, dealerID, vin, 30000, 29000)
	fixtures.TestPriceEvent(t, db, dealerID, vin, 29000, 28000)
	fixtures.TestPriceEvent(t, db, dealerID, vin, 28000, 27000)

	h := handler.NewPriceEventHandler(store.New(db, logger), logger)

	req := httptest.NewRequest("GET", "/api/price-events?vin="+vin+"&limit=1", nil)
	rec := httptest.NewRecorder()
	h.ListPriceEvents(rec, req)

	var resp struct {
		Events []domain.PriceEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 1)
}
