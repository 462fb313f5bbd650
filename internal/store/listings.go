package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by both pgxpool.Pool and pgx.Tx, so reconciler code
// can run these queries either standalone or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetVehicle loads a vehicle by VIN. Returns nil, nil when not found.
func (s *Store) GetVehicle(ctx context.Context, q Querier, vin string) (*domain.Vehicle, error) {
	var v domain.Vehicle
	var features []byte
	err := q.QueryRow(ctx, `
		SELECT vin, make, model, year, trim, drivetrain, transmission,
		       exterior_color, interior_color, msrp, invoice_price, features, created_at, updated_at
		FROM vehicles WHERE vin = $1
	`, vin).Scan(
		&v.VIN, &v.Make, &v.Model, &v.Year, &v.Trim, &v.Drivetrain, &v.Transmission,
		&v.ExteriorColor, &v.InteriorColor, &v.MSRP, &v.InvoicePrice, &features, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &v.Features); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// InsertVehicleStub creates a bare vehicle row, mirroring the original's
// `models.Vehicle(vin=vin, make=..., model=...)` seed-on-first-observation.
func (s *Store) InsertVehicleStub(ctx context.Context, q Querier, vin, make_, model string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO vehicles (vin, make, model, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (vin) DO NOTHING
	`, vin, make_, model)
	return err
}

// UpdateVehicleFields overwrites the given mutable attributes in one UPDATE;
// the reconciler passes only non-null values, implementing "overwrite only
// when the new value is non-null" per field.
func (s *Store) UpdateVehicleFields(ctx context.Context, q Querier, vin string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	sql := `UPDATE vehicles SET updated_at = now()`
	args := []any{vin}
	i := 2
	for col, val := range fields {
		sql += `, ` + col + ` = $` + strconv.Itoa(i)
		args = append(args, val)
		i++
	}
	sql += ` WHERE vin = $1`
	_, err := q.Exec(ctx, sql, args...)
	return err
}

// GetListing loads a listing by (dealer_id, vin). Returns nil, nil if absent.
func (s *Store) GetListing(ctx context.Context, q Querier, dealerID int64, vin string) (*domain.Listing, error) {
	var l domain.Listing
	err := q.QueryRow(ctx, `
		SELECT dealer_id, vin, vdp_url, stock_number, status, advertised_price,
		       price_delta_msrp, first_seen_at, last_seen_at, source_rank
		FROM listings WHERE dealer_id = $1 AND vin = $2
	`, dealerID, vin).Scan(
		&l.DealerID, &l.VIN, &l.VDPURL, &l.StockNumber, &l.Status, &l.AdvertisedPrice,
		&l.PriceDeltaMSRP, &l.FirstSeenAt, &l.LastSeenAt, &l.SourceRank,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertListing creates a new listing row.
func (s *Store) InsertListing(ctx context.Context, q Querier, l domain.Listing) error {
	_, err := q.Exec(ctx, `
		INSERT INTO listings (dealer_id, vin, vdp_url, stock_number, status,
		                       advertised_price, price_delta_msrp, first_seen_at, last_seen_at, source_rank)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, l.DealerID, l.VIN, l.VDPURL, l.StockNumber, l.Status, l.AdvertisedPrice,
		l.PriceDeltaMSRP, l.FirstSeenAt, l.LastSeenAt, l.SourceRank)
	return err
}

// UpdateListing replaces a listing row's mutable fields (last-writer-wins,
// except first_seen/last_seen/source_rank which the caller must already
// have computed with min/max/only-lower semantics).
func (s *Store) UpdateListing(ctx context.Context, q Querier, l domain.Listing) error {
	_, err := q.Exec(ctx, `
		UPDATE listings SET
			vdp_url = $3, stock_number = $4, status = $5, advertised_price = $6,
			price_delta_msrp = $7, first_seen_at = $8, last_seen_at = $9, source_rank = $10
		WHERE dealer_id = $1 AND vin = $2
	`, l.DealerID, l.VIN, l.VDPURL, l.StockNumber, l.Status, l.AdvertisedPrice,
		l.PriceDeltaMSRP, l.FirstSeenAt, l.LastSeenAt, l.SourceRank)
	return err
}

// InsertObservation appends an immutable Observation row.
func (s *Store) InsertObservation(ctx context.Context, q Querier, o domain.Observation) (int64, error) {
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO observations (job_id, observed_at, dealer_id, vin, vdp_url,
		                           advertised_price, msrp, payload, raw_blob_key, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, o.JobID, o.ObservedAt, o.DealerID, o.VIN, o.VDPURL, o.AdvertisedPrice, o.MSRP,
		payload, o.RawBlobKey, o.Source).Scan(&id)
	return id, err
}

// InsertPriceEvent appends a PriceEvent row.
func (s *Store) InsertPriceEvent(ctx context.Context, q Querier, e domain.PriceEvent) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO price_events (dealer_id, vin, observed_at, old_price, new_price, delta, pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, e.DealerID, e.VIN, e.ObservedAt, e.OldPrice, e.NewPrice, e.Delta, e.Pct).Scan(&id)
	return id, err
}

// ListingsForAbsenceScope returns listings eligible for the Absence
// Reconciler's two-miss rule: dealer×model scope, restricted to
// source_rank <= inventoryRank OR NULL.
func (s *Store) ListingsForAbsenceScope(ctx context.Context, dealerID int64, model string, inventoryRank int) ([]domain.Listing, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.dealer_id, l.vin, l.vdp_url, l.stock_number, l.status, l.advertised_price,
		       l.price_delta_msrp, l.first_seen_at, l.last_seen_at, l.source_rank
		FROM listings l
		JOIN vehicles v ON v.vin = l.vin
		WHERE l.dealer_id = $1 AND v.model = $2
		  AND (l.source_rank <= $3 OR l.source_rank IS NULL)
	`, dealerID, model, inventoryRank)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(&l.DealerID, &l.VIN, &l.VDPURL, &l.StockNumber, &l.Status,
			&l.AdvertisedPrice, &l.PriceDeltaMSRP, &l.FirstSeenAt, &l.LastSeenAt, &l.SourceRank); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateListingStatus applies the Absence Reconciler's status transition.
func (s *Store) UpdateListingStatus(ctx context.Context, dealerID int64, vin, status string) error {
	_, err := s.db.Exec(ctx, `UPDATE listings SET status = $3 WHERE dealer_id = $1 AND vin = $2`, dealerID, vin, status)
	return err
}

// ListingFilter narrows the read-only control-surface listing query.
type ListingFilter struct {
	DealerID *int64
	Status   string
	Model    string
	Limit    int
	Offset   int
}

// ListListings serves the paginated `GET /api/listings` control-surface endpoint.
func (s *Store) ListListings(ctx context.Context, f ListingFilter) ([]domain.Listing, int64, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var dealerID int64
	if f.DealerID != nil {
		dealerID = *f.DealerID
	}

	rows, err := s.db.Query(ctx, `
		SELECT l.dealer_id, l.vin, l.vdp_url, l.stock_number, l.status, l.advertised_price,
		       l.price_delta_msrp, l.first_seen_at, l.last_seen_at, l.source_rank
		FROM listings l
		JOIN vehicles v ON v.vin = l.vin
		WHERE ($1 = 0 OR l.dealer_id = $1)
		  AND ($2 = '' OR l.status = $2)
		  AND ($3 = '' OR v.model ILIKE $3)
		ORDER BY l.last_seen_at DESC
		LIMIT $4 OFFSET $5
	`, dealerID, f.Status, f.Model, limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(&l.DealerID, &l.VIN, &l.VDPURL, &l.StockNumber, &l.Status,
			&l.AdvertisedPrice, &l.PriceDeltaMSRP, &l.FirstSeenAt, &l.LastSeenAt, &l.SourceRank); err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	err = s.db.QueryRow(ctx, `
		SELECT count(*) FROM listings l JOIN vehicles v ON v.vin = l.vin
		WHERE ($1 = 0 OR l.dealer_id = $1) AND ($2 = '' OR l.status = $2) AND ($3 = '' OR v.model ILIKE $3)
	`, dealerID, f.Status, f.Model).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListPriceEvents serves `GET /api/price-events?vin=`.
func (s *Store) ListPriceEvents(ctx context.Context, vin string, limit int) ([]domain.PriceEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, dealer_id, vin, observed_at, old_price, new_price, delta, pct
		FROM price_events WHERE vin = $1 ORDER BY observed_at DESC LIMIT $2
	`, vin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PriceEvent
	for rows.Next() {
		var e domain.PriceEvent
		if err := rows.Scan(&e.ID, &e.DealerID, &e.VIN, &e.ObservedAt, &e.OldPrice, &e.NewPrice, &e.Delta, &e.Pct); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
