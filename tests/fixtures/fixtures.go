package fixtures

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestDealer inserts an active dealer in region "west" on the given
// backend, with an empty scraping_config.
func TestDealer(t *testing.T, db *pgxpool.Pool, backend string) int64 {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("Test Toyota %s", uuid.New().String()[:8])
	homepage := fmt.Sprintf("https://%s.example.com", uuid.New().String()[:8])

	var dealerID int64
	err := db.QueryRow(ctx, `
		INSERT INTO dealers (name, code, region, homepage_url, backend_type,
		                      inventory_url_template, scraping_config, is_active)
		VALUES ($1, $2, 'west', $3, $4, '{homepage}/inventory/new/toyota/{model_slug}', '{}', true)
		RETURNING id
	`, name, uuid.New().String()[:8], homepage, backend).Scan(&dealerID)
	require.NoError(t, err)

	return dealerID
}

// TestVehicle creates a stub vehicle row for the given VIN.
func TestVehicle(t *testing.T, db *pgxpool.Pool, vin, make_, model string) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO vehicles (vin, make, model, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (vin) DO NOTHING
	`, vin, make_, model)
	require.NoError(t, err)
}

// TestListing creates a listing for dealerID×vin in the given status.
func TestListing(t *testing.T, db *pgxpool.Pool, dealerID int64, vin, status string, sourceRank int) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Exec(ctx, `
		INSERT INTO listings (dealer_id, vin, vdp_url, stock_number, status,
		                       first_seen_at, last_seen_at, source_rank)
		VALUES ($1, $2, '', '', $3, now(), now(), $4)
	`, dealerID, vin, status, sourceRank)
	require.NoError(t, err)
}

// TestJob inserts a completed scrape job row.
func TestJob(t *testing.T, db *pgxpool.Pool, model string, targetCount, successCount, failCount int) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	jobID := uuid.New()
	status := "success"
	if failCount > 0 && successCount > 0 {
		status = "partial"
	} else if failCount > 0 {
		status = "failed"
	}

	_, err := db.Exec(ctx, `
		INSERT INTO scrape_jobs (id, model, region, status, target_count, success_count, fail_count, completed_at)
		VALUES ($1, $2, '', $3, $4, $5, $6, now())
	`, jobID, model, status, targetCount, successCount, failCount)
	require.NoError(t, err)

	return jobID
}

// TestPriceEvent records a price drop for vin at dealerID.
func TestPriceEvent(t *testing.T, db *pgxpool.Pool, dealerID int64, vin string, oldPrice, newPrice float64) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO price_events (dealer_id, vin, observed_at, old_price, new_price, delta, pct)
		VALUES ($1, $2, now(), $3, $4, $4 - $3, NULL)
		RETURNING id
	`, dealerID, vin, oldPrice, newPrice).Scan(&id)
	require.NoError(t, err)

	return id
}

// CleanupTestData truncates every domain table, called from SetupTestDB's
// t.Cleanup.
func CleanupTestData(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	tables := []string{
		"price_events",
		"observations",
		"listings",
		"scrape_tasks",
		"scrape_jobs",
		"dealer_backend_templates",
		"vehicles",
		"dealers",
	}

	for _, table := range tables {
		_, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			t.Logf("Warning: failed to truncate %s: %v", table, err)
		}
	}
}
