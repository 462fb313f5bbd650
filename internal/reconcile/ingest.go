// Package reconcile turns fetched ParsedRows into durable Observation,
// Vehicle, Listing, and PriceEvent state. The Ingest Reconciler applies a
// per-field overwrite with first/last-seen widening, expressed against
// internal/store's transactional Querier.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/store"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/tracing"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ingestStore is implemented by *store.Store; declared narrow so the reconciler
// can be tested against a fake.
type ingestStore interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	GetVehicle(ctx context.Context, q store.Querier, vin string) (*domain.Vehicle, error)
	InsertVehicleStub(ctx context.Context, q store.Querier, vin, make_, model string) error
	UpdateVehicleFields(ctx context.Context, q store.Querier, vin string, fields map[string]any) error
	GetListing(ctx context.Context, q store.Querier, dealerID int64, vin string) (*domain.Listing, error)
	InsertListing(ctx context.Context, q store.Querier, l domain.Listing) error
	UpdateListing(ctx context.Context, q store.Querier, l domain.Listing) error
	InsertObservation(ctx context.Context, q store.Querier, o domain.Observation) (int64, error)
	InsertPriceEvent(ctx context.Context, q store.Querier, e domain.PriceEvent) (int64, error)
}

// IngestReconciler persists a batch of IngestRows inside one transaction.
type IngestReconciler struct {
	store  ingestStore
	logger *slog.Logger
}

func NewIngestReconciler(s ingestStore, logger *slog.Logger) *IngestReconciler {
	return &IngestReconciler{store: s, logger: logger}
}

// Reconcile upserts every row in rows, returning aggregate counts for
// observability. An empty batch is a no-op, mirroring the original's early
// return.
func (r *IngestReconciler) Reconcile(ctx context.Context, rows []domain.IngestRow) (domain.IngestResult, error) {
	if len(rows) == 0 {
		return domain.IngestResult{}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "reconcile.ingest")
	defer span.End()

	var result domain.IngestResult
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		for _, row := range rows {
			if err := r.upsertOne(ctx, tx, row, &result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("ingest_reconcile_failed", slog.String("error", err.Error()), slog.Int("rows", len(rows)))
		return domain.IngestResult{}, err
	}

	r.logger.Info("ingest_reconcile_completed",
		slog.Int("observations", result.Observations),
		slog.Int("listings_upserted", result.ListingsUpserted),
		slog.Int("price_events", result.PriceEvents),
	)
	return result, nil
}

func (r *IngestReconciler) upsertOne(ctx context.Context, tx pgx.Tx, row domain.IngestRow, result *domain.IngestResult) error {
	vin := row.Row.VIN
	observedAt := ensureUTC(row.ObservedAt)

	if err := r.store.InsertVehicleStub(ctx, tx, vin, row.Row.Make, row.Row.Model); err != nil {
		return err
	}
	if err := r.mergeVehicle(ctx, tx, vin, row.Row); err != nil {
		return err
	}
	vehicle, err := r.store.GetVehicle(ctx, tx, vin)
	if err != nil {
		return err
	}

	advertisedPrice := row.Row.AdvertisedPrice
	msrp := row.Row.MSRP
	payload := map[string]any{}
	if advertisedPrice == nil && msrp != nil {
		advertisedPrice = msrp
		payload["assumptions"] = map[string]any{"ad_price_equals_msrp": true}
	}

	jobID := parseJobID(row.JobID)

	obs := domain.Observation{
		JobID:           jobID,
		ObservedAt:      observedAt,
		DealerID:        row.DealerID,
		VIN:             vin,
		VDPURL:          row.VDPURL,
		AdvertisedPrice: advertisedPrice,
		MSRP:            msrp,
		Payload:         payload,
		RawBlobKey:      row.RawBlobKey,
		Source:          row.Source,
	}
	if _, err := r.store.InsertObservation(ctx, tx, obs); err != nil {
		return err
	}
	result.Observations++

	return r.upsertListing(ctx, tx, row, vehicle, advertisedPrice, msrp, observedAt, result)
}

func (r *IngestReconciler) mergeVehicle(ctx context.Context, tx pgx.Tx, vin string, parsed domain.ParsedRow) error {
	fields := map[string]any{}
	if parsed.Make != "" {
		fields["make"] = parsed.Make
	}
	if parsed.Model != "" {
		fields["model"] = parsed.Model
	}
	if parsed.Year != nil {
		fields["year"] = *parsed.Year
	}
	if parsed.Trim != "" {
		fields["trim"] = parsed.Trim
	}
	if parsed.Drivetrain != "" {
		fields["drivetrain"] = parsed.Drivetrain
	}
	if parsed.Transmission != "" {
		fields["transmission"] = parsed.Transmission
	}
	if parsed.ExteriorColor != "" {
		fields["exterior_color"] = parsed.ExteriorColor
	}
	if parsed.InteriorColor != "" {
		fields["interior_color"] = parsed.InteriorColor
	}
	if parsed.MSRP != nil {
		fields["msrp"] = *parsed.MSRP
	}
	if parsed.InvoicePrice != nil {
		fields["invoice_price"] = *parsed.InvoicePrice
	}
	if len(parsed.Features) > 0 {
		fields["features"] = parsed.Features
	}
	return r.store.UpdateVehicleFields(ctx, tx, vin, fields)
}

func (r *IngestReconciler) upsertListing(
	ctx context.Context, tx pgx.Tx, row domain.IngestRow, vehicle *domain.Vehicle,
	advertisedPrice, msrp *decimal.Decimal, observedAt time.Time, result *domain.IngestResult,
) error {
	vin := row.Row.VIN
	existing, err := r.store.GetListing(ctx, tx, row.DealerID, vin)
	if err != nil {
		return err
	}

	status := row.Row.Status
	if status == "" {
		status = domain.StatusAvailable
	}

	firstSeen := observedAt
	if row.FirstSeenAt != nil {
		firstSeen = ensureUTC(*row.FirstSeenAt)
	}
	lastSeen := observedAt
	if row.LastSeenAt != nil {
		lastSeen = ensureUTC(*row.LastSeenAt)
	}

	if existing == nil {
		msrpValue := msrp
		if msrpValue == nil && vehicle != nil {
			msrpValue = vehicle.MSRP
		}
		priceDelta := priceDelta(advertisedPrice, msrpValue)

		sourceRank := domain.SourceRankDefault
		if row.SourceRank != nil {
			sourceRank = *row.SourceRank
		}

		listing := domain.Listing{
			DealerID:        row.DealerID,
			VIN:             vin,
			VDPURL:          row.Row.VDPURL,
			StockNumber:     row.Row.StockNumber,
			Status:          status,
			AdvertisedPrice: advertisedPrice,
			PriceDeltaMSRP:  priceDelta,
			FirstSeenAt:     firstSeen,
			LastSeenAt:      lastSeen,
			SourceRank:      sourceRank,
		}
		if err := r.store.InsertListing(ctx, tx, listing); err != nil {
			return err
		}
		result.ListingsUpserted++
		return nil
	}

	oldPrice := existing.AdvertisedPrice
	oldRank := existing.SourceRank

	if row.Row.VDPURL != "" {
		existing.VDPURL = row.Row.VDPURL
	}
	if row.Row.StockNumber != "" {
		existing.StockNumber = row.Row.StockNumber
	}
	if status != "" {
		existing.Status = status
	}
	if advertisedPrice != nil {
		existing.AdvertisedPrice = advertisedPrice
	}

	msrpValue := msrp
	if msrpValue == nil && vehicle != nil {
		msrpValue = vehicle.MSRP
	}
	existing.PriceDeltaMSRP = priceDelta(existing.AdvertisedPrice, msrpValue)

	if firstSeen.Before(existing.FirstSeenAt) {
		existing.FirstSeenAt = firstSeen
	}
	if lastSeen.After(existing.LastSeenAt) {
		existing.LastSeenAt = lastSeen
	}
	if row.SourceRank != nil && *row.SourceRank < oldRank {
		existing.SourceRank = *row.SourceRank
	}

	if err := r.store.UpdateListing(ctx, tx, *existing); err != nil {
		return err
	}
	result.ListingsUpserted++

	if advertisedPrice != nil && oldPrice != nil && !advertisedPrice.Equal(*oldPrice) {
		delta := advertisedPrice.Sub(*oldPrice)
		var pct *decimal.Decimal
		if !oldPrice.IsZero() {
			p := delta.Div(*oldPrice).Mul(decimal.NewFromInt(100))
			pct = &p
		}
		event := domain.PriceEvent{
			DealerID:   row.DealerID,
			VIN:        vin,
			ObservedAt: observedAt,
			OldPrice:   *oldPrice,
			NewPrice:   *advertisedPrice,
			Delta:      delta,
			Pct:        pct,
		}
		if _, err := r.store.InsertPriceEvent(ctx, tx, event); err != nil {
			return err
		}
		result.PriceEvents++
	}

	return nil
}

func priceDelta(advertisedPrice, msrp *decimal.Decimal) *decimal.Decimal {
	if advertisedPrice == nil || msrp == nil {
		return nil
	}
	d := advertisedPrice.Sub(*msrp)
	return &d
}

func ensureUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func parseJobID(raw string) uuid.UUID {
	if raw == "" {
		return domain.ZeroJobID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return domain.ZeroJobID
	}
	return id
}
