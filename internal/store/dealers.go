package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/jackc/pgx/v5"
)

// GetDealer loads a single dealer by surrogate id.
func (s *Store) GetDealer(ctx context.Context, dealerID int64) (*domain.Dealer, error) {
	query := `
		SELECT id, name, code, region, homepage_url, backend_type,
		       inventory_url_template, scraping_config, is_active,
		       last_scraped_at, district_code, phone, city, state, postal_code
		FROM dealers WHERE id = $1
	`
	var d domain.Dealer
	var backend string
	var scrapingConfig []byte
	err := s.db.QueryRow(ctx, query, dealerID).Scan(
		&d.ID, &d.Name, &d.Code, &d.Region, &d.HomepageURL, &backend,
		&d.InventoryURLTmpl, &scrapingConfig, &d.IsActive,
		&d.LastScrapedAt, &d.DistrictCode, &d.Phone, &d.City, &d.State, &d.PostalCode,
	)
	if err != nil {
		return nil, err
	}
	d.BackendType = domain.Backend(backend)
	if len(scrapingConfig) > 0 {
		if err := json.Unmarshal(scrapingConfig, &d.ScrapingConfig); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// ListActiveDealers returns every active dealer, optionally narrowed to one
// region, for the job-submission control surface to resolve scrape targets.
func (s *Store) ListActiveDealers(ctx context.Context, region string) ([]domain.Dealer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, code, region, homepage_url, backend_type,
		       inventory_url_template, scraping_config, is_active,
		       last_scraped_at, district_code, phone, city, state, postal_code
		FROM dealers
		WHERE is_active AND ($1 = '' OR region = $1)
		ORDER BY id
	`, region)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Dealer
	for rows.Next() {
		var d domain.Dealer
		var backend string
		var scrapingConfig []byte
		if err := rows.Scan(
			&d.ID, &d.Name, &d.Code, &d.Region, &d.HomepageURL, &backend,
			&d.InventoryURLTmpl, &scrapingConfig, &d.IsActive,
			&d.LastScrapedAt, &d.DistrictCode, &d.Phone, &d.City, &d.State, &d.PostalCode,
		); err != nil {
			return nil, err
		}
		d.BackendType = domain.Backend(backend)
		if len(scrapingConfig) > 0 {
			if err := json.Unmarshal(scrapingConfig, &d.ScrapingConfig); err != nil {
				return nil, err
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateLastScrapedAt stamps a dealer as having just been scraped.
func (s *Store) UpdateLastScrapedAt(ctx context.Context, dealerID int64) error {
	_, err := s.db.Exec(ctx, `UPDATE dealers SET last_scraped_at = now() WHERE id = $1`, dealerID)
	return err
}

// GetDealerBackendTemplate loads the most recently discovered override.
// Returns nil, nil when no override exists.
func (s *Store) GetDealerBackendTemplate(ctx context.Context, dealerID int64) (*domain.DealerBackendTemplate, error) {
	query := `
		SELECT id, dealer_id, backend_type, template, tokens, template_scope, discovered_at, notes
		FROM dealer_backend_templates
		WHERE dealer_id = $1
		ORDER BY discovered_at DESC
		LIMIT 1
	`
	var t domain.DealerBackendTemplate
	var backend, scope string
	var tokens []byte
	err := s.db.QueryRow(ctx, query, dealerID).Scan(
		&t.ID, &t.DealerID, &backend, &t.Template, &tokens, &scope, &t.DiscoveredAt, &t.Notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.BackendType = domain.Backend(backend)
	t.TemplateScope = domain.TemplateScope(scope)
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &t.Tokens); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// SaveDealerBackendTemplate persists a newly discovered fallback pattern
// (Open Question decision #2 in DESIGN.md).
func (s *Store) SaveDealerBackendTemplate(ctx context.Context, t domain.DealerBackendTemplate) error {
	tokens, err := json.Marshal(t.Tokens)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO dealer_backend_templates (dealer_id, backend_type, template, tokens, template_scope, discovered_at, notes)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
	`, t.DealerID, string(t.BackendType), t.Template, tokens, string(t.TemplateScope), t.Notes)
	return err
}
