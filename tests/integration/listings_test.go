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

func TestListListingsEmpty(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	h := handler.NewListingHandler(store.New(db, logger), logger)

	req := httptest.NewRequest("GET", "/api/listings", nil)
	rec := httptest.NewRecorder()
	h.ListListings(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp domain.PaginatedResponse[domain.Listing]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
	assert.Equal(t, int64(0), resp.Total)
}

func TestListListingsFiltersByDealerAndStatus(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	dealerID := fixtures.TestDealer(t, db, "dealer_com")
	otherDealerID := fixtures.TestDealer(t, db, "dealer_com")
	fixtures.TestVehicle(t, db, "1FTFW1ET1EFA00001", "Toyota", "Tacoma")
	fixtures.TestVehicle(t, db, "1FTFW1ET1EFA00002", "Toyota", "Tacoma")
	fixtures.TestListing(t, db, dealerID, "1FTFW1ET1EFA00001", "available", 50)
	fixtures.TestListing(t, db, dealerID, "1FTFW1ET1EFA00002", "sold", 50)
	fixtures.TestListing(t, db, otherDealerID, "1FTFW1ET1EFA00001", "available", 50)

	h := handler.NewListingHandler(store.New(db, logger), logger)

	req := httptest.NewRequest("GET", "/api/listings?status=available", nil)
	rec := httptest.NewRecorder()
	h.ListListings(rec, req)

	var resp domain.PaginatedResponse[domain.Listing]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)

	for _, l := range resp.Items {
		assert.Equal(t, "available", l.Status)
	}
}

func TestListListingsRejectsInvalidDealerID(t *testing.T) {
	db := fixtures.SetupTestDBWithMigrations(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	h := handler.NewListingHandler(store.New(db, logger), logger)

	req := httptest.NewRequest("GET", "/api/listings?dealer_id=not-a-number", nil)
	rec := httptest.NewRecorder()
	h.ListListings(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
