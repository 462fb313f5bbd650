package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	vehicles  map[string]domain.Vehicle
	listings  map[string]domain.Listing
	obsCount  int
	priceLog  []domain.PriceEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{vehicles: map[string]domain.Vehicle{}, listings: map[string]domain.Listing{}}
}

func listingKey(dealerID int64, vin string) string {
	return fmt.Sprintf("%d|%s", dealerID, vin)
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) GetVehicle(ctx context.Context, q store.Querier, vin string) (*domain.Vehicle, error) {
	v, ok := f.vehicles[vin]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeStore) InsertVehicleStub(ctx context.Context, q store.Querier, vin, make_, model string) error {
	if _, ok := f.vehicles[vin]; !ok {
		f.vehicles[vin] = domain.Vehicle{VIN: vin, Make: make_, Model: model}
	}
	return nil
}

func (f *fakeStore) UpdateVehicleFields(ctx context.Context, q store.Querier, vin string, fields map[string]any) error {
	v := f.vehicles[vin]
	if msrp, ok := fields["msrp"].(decimal.Decimal); ok {
		v.MSRP = &msrp
	}
	if invoice, ok := fields["invoice_price"].(decimal.Decimal); ok {
		v.InvoicePrice = &invoice
	}
	if make_, ok := fields["make"].(string); ok {
		v.Make = make_
	}
	if model, ok := fields["model"].(string); ok {
		v.Model = model
	}
	if year, ok := fields["year"].(int); ok {
		v.Year = &year
	}
	if trim, ok := fields["trim"].(string); ok {
		v.Trim = trim
	}
	if drivetrain, ok := fields["drivetrain"].(string); ok {
		v.Drivetrain = drivetrain
	}
	if transmission, ok := fields["transmission"].(string); ok {
		v.Transmission = transmission
	}
	if exterior, ok := fields["exterior_color"].(string); ok {
		v.ExteriorColor = exterior
	}
	if interior, ok := fields["interior_color"].(string); ok {
		v.InteriorColor = interior
	}
	f.vehicles[vin] = v
	return nil
}

func (f *fakeStore) GetListing(ctx context.Context, q store.Querier, dealerID int64, vin string) (*domain.Listing, error) {
	l, ok := f.listings[listingKey(dealerID, vin)]
	if !ok {
		return nil, nil
	}
	cp := l
	return &cp, nil
}

func (f *fakeStore) InsertListing(ctx context.Context, q store.Querier, l domain.Listing) error {
	f.listings[listingKey(l.DealerID, l.VIN)] = l
	return nil
}

func (f *fakeStore) UpdateListing(ctx context.Context, q store.Querier, l domain.Listing) error {
	f.listings[listingKey(l.DealerID, l.VIN)] = l
	return nil
}

func (f *fakeStore) InsertObservation(ctx context.Context, q store.Querier, o domain.Observation) (int64, error) {
	f.obsCount++
	return int64(f.obsCount), nil
}

func (f *fakeStore) InsertPriceEvent(ctx context.Context, q store.Querier, e domain.PriceEvent) (int64, error) {
	f.priceLog = append(f.priceLog, e)
	return int64(len(f.priceLog)), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestReconcile_EmptyBatchIsNoop(t *testing.T) {
	r := NewIngestReconciler(newFakeStore(), testLogger())
	result, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.IngestResult{}, result)
}

func TestReconcile_NewListingInsertsObservationAndListing(t *testing.T) {
	fs := newFakeStore()
	r := NewIngestReconciler(fs, testLogger())

	price := decimal.NewFromInt(41900)
	msrp := decimal.NewFromInt(45000)
	rows := []domain.IngestRow{{
		DealerID:   1,
		ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Source:     domain.SourceInventoryList,
		Row: domain.ParsedRow{
			VIN: "1GCUYEED5NZ123456", Make: "Toyota", Model: "Tacoma",
			AdvertisedPrice: &price, MSRP: &msrp, Status: domain.StatusAvailable,
		},
	}}

	result, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Observations)
	assert.Equal(t, 1, result.ListingsUpserted)
	assert.Equal(t, 0, result.PriceEvents)

	listing := fs.listings[listingKey(1, "1GCUYEED5NZ123456")]
	assert.True(t, listing.AdvertisedPrice.Equal(price))
	assert.True(t, listing.PriceDeltaMSRP.Equal(price.Sub(msrp)))
}

func TestReconcile_NewListingUsesRowSourceRank(t *testing.T) {
	fs := newFakeStore()
	r := NewIngestReconciler(fs, testLogger())

	rank := domain.SourceRankInventory
	rows := []domain.IngestRow{{
		DealerID:   1,
		ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Source:     domain.SourceInventoryList,
		SourceRank: &rank,
		Row:        domain.ParsedRow{VIN: "1GCUYEED5NZ123456", Status: domain.StatusAvailable},
	}}

	_, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)

	listing := fs.listings[listingKey(1, "1GCUYEED5NZ123456")]
	assert.Equal(t, domain.SourceRankInventory, listing.SourceRank)
}

func TestReconcile_NewListingWithNilSourceRankDefaults(t *testing.T) {
	fs := newFakeStore()
	r := NewIngestReconciler(fs, testLogger())

	rows := []domain.IngestRow{{
		DealerID:   1,
		ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Source:     domain.SourceUpload,
		Row:        domain.ParsedRow{VIN: "1GCUYEED5NZ123456", Status: domain.StatusAvailable},
	}}

	_, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)

	listing := fs.listings[listingKey(1, "1GCUYEED5NZ123456")]
	assert.Equal(t, domain.SourceRankDefault, listing.SourceRank)
}

func TestReconcile_MergeVehicleAppliesAllMutableFields(t *testing.T) {
	fs := newFakeStore()
	r := NewIngestReconciler(fs, testLogger())

	msrp := decimal.NewFromInt(45000)
	invoice := decimal.NewFromInt(42000)
	rows := []domain.IngestRow{{
		DealerID:   1,
		ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Source:     domain.SourceInventoryList,
		Row: domain.ParsedRow{
			VIN: "1GCUYEED5NZ123456", Make: "Toyota", Model: "Tacoma",
			Trim: "TRD Off-Road", Drivetrain: "4WD", Transmission: "Automatic",
			ExteriorColor: "Magnetic Gray", InteriorColor: "Black",
			MSRP: &msrp, InvoicePrice: &invoice, Status: domain.StatusAvailable,
		},
	}}

	_, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)

	v := fs.vehicles["1GCUYEED5NZ123456"]
	assert.Equal(t, "4WD", v.Drivetrain)
	assert.Equal(t, "Automatic", v.Transmission)
	assert.Equal(t, "Magnetic Gray", v.ExteriorColor)
	assert.Equal(t, "Black", v.InteriorColor)
	require.NotNil(t, v.InvoicePrice)
	assert.True(t, v.InvoicePrice.Equal(invoice))
}

func TestReconcile_PriceChangeEmitsPriceEvent(t *testing.T) {
	fs := newFakeStore()
	fs.listings[listingKey(1, "1GCUYEED5NZ123456")] = domain.Listing{
		DealerID: 1, VIN: "1GCUYEED5NZ123456", Status: domain.StatusAvailable,
		AdvertisedPrice: decimalPtr(41900), SourceRank: 100,
		FirstSeenAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		LastSeenAt:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	r := NewIngestReconciler(fs, testLogger())

	newPrice := decimal.NewFromInt(39900)
	rows := []domain.IngestRow{{
		DealerID:   1,
		ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Source:     domain.SourceInventoryList,
		Row:        domain.ParsedRow{VIN: "1GCUYEED5NZ123456", AdvertisedPrice: &newPrice, Status: domain.StatusAvailable},
	}}

	result, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PriceEvents)
	require.Len(t, fs.priceLog, 1)
	assert.True(t, fs.priceLog[0].Delta.Equal(newPrice.Sub(decimal.NewFromInt(41900))))
}

func TestReconcile_NoAdvertisedPriceFallsBackToMSRP(t *testing.T) {
	fs := newFakeStore()
	r := NewIngestReconciler(fs, testLogger())

	msrp := decimal.NewFromInt(45000)
	rows := []domain.IngestRow{{
		DealerID:   1,
		ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Source:     domain.SourceInventoryList,
		Row:        domain.ParsedRow{VIN: "1GCUYEED5NZ123456", MSRP: &msrp, Status: domain.StatusAvailable},
	}}

	_, err := r.Reconcile(context.Background(), rows)
	require.NoError(t, err)

	listing := fs.listings[listingKey(1, "1GCUYEED5NZ123456")]
	require.NotNil(t, listing.AdvertisedPrice)
	assert.True(t, listing.AdvertisedPrice.Equal(msrp))
}

func decimalPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
