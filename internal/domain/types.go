package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ZeroJobID is the reserved sentinel used when an Observation has no
// associated ScrapeJob (upload/import ingest paths).
var ZeroJobID = uuid.Nil

// Listing status values.
const (
	StatusAvailable  = "available"
	StatusSold       = "sold"
	StatusMissing    = "missing"
	StatusPending    = "pending"
	StatusInTransit  = "in_transit"
	StatusHold       = "hold"
	StatusBuildPhase = "build_phase"
)

// Observation source values.
const (
	SourceInventoryList = "inventory_list"
	SourceVDP           = "vdp"
	SourceUpload        = "upload"
	SourceImport        = "import"
)

// Default source ranks, lower is higher-fidelity.
const (
	SourceRankInventory = 50
	SourceRankUpload    = 80
	SourceRankDefault   = 100
)

// Backend tags drive parser dispatch.
type Backend string

const (
	BackendCDK             Backend = "cdk"
	BackendDealerCom       Backend = "dealer_com"
	BackendDealerInspire   Backend = "dealer_inspire"
	BackendDealerAlchemy   Backend = "dealer_alchemy"
	BackendDealerVenom     Backend = "dealer_venom"
	BackendFoxDealer       Backend = "fox_dealer"
	BackendDealerOn        Backend = "dealer_on"
	BackendSmartPath       Backend = "smartpath"
	BackendDealerSocket    Backend = "dealer_socket"
	BackendTeamVelocity    Backend = "team_velocity"
	BackendUnknown         Backend = "unknown"
)

// TemplateScope controls whether an inventory URL template is resolved
// against the dealer homepage or used as-is.
type TemplateScope string

const (
	TemplateScopeAbsolute TemplateScope = "absolute"
	TemplateScopeRelative TemplateScope = "relative"
)

// ScrapingConfig holds per-dealer token overrides and fetch hints.
type ScrapingConfig struct {
	Tokens        map[string]string `json:"tokens,omitempty"`
	TemplateScope TemplateScope     `json:"template_scope,omitempty"`
	ProxyHint     string            `json:"proxy_hint,omitempty"`
}

// Dealer is the scrape target catalog entry.
type Dealer struct {
	ID                  int64          `json:"id"`
	Name                string         `json:"name"`
	Code                string         `json:"code,omitempty"`
	Region              string         `json:"region,omitempty"`
	HomepageURL         string         `json:"homepage_url"`
	BackendType         Backend        `json:"backend_type"`
	InventoryURLTmpl    string         `json:"inventory_url_template"`
	ScrapingConfig      ScrapingConfig `json:"scraping_config"`
	IsActive            bool           `json:"is_active"`
	LastScrapedAt       *time.Time     `json:"last_scraped_at,omitempty"`
	DistrictCode        string         `json:"district_code,omitempty"`
	Phone               string         `json:"phone,omitempty"`
	City                string         `json:"city,omitempty"`
	State               string         `json:"state,omitempty"`
	PostalCode          string         `json:"postal_code,omitempty"`
}

// DealerBackendTemplate is the supplemented override table.
type DealerBackendTemplate struct {
	ID            int64             `json:"id"`
	DealerID      int64             `json:"dealer_id"`
	BackendType   Backend           `json:"backend_type"`
	Template      string            `json:"template"`
	Tokens        map[string]string `json:"tokens,omitempty"`
	TemplateScope TemplateScope     `json:"template_scope,omitempty"`
	DiscoveredAt  time.Time         `json:"discovered_at"`
	Notes         string            `json:"notes,omitempty"`
}

// Vehicle is identified by VIN; attributes only overwrite with non-null values.
type Vehicle struct {
	VIN            string           `json:"vin"`
	Make           string           `json:"make"`
	Model          string           `json:"model"`
	Year           *int             `json:"year,omitempty"`
	Trim           string           `json:"trim,omitempty"`
	Drivetrain     string           `json:"drivetrain,omitempty"`
	Transmission   string           `json:"transmission,omitempty"`
	ExteriorColor  string           `json:"exterior_color,omitempty"`
	InteriorColor  string           `json:"interior_color,omitempty"`
	MSRP           *decimal.Decimal `json:"msrp,omitempty"`
	InvoicePrice   *decimal.Decimal `json:"invoice_price,omitempty"`
	Features       map[string]any   `json:"features,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Listing is identified by (DealerID, VIN).
type Listing struct {
	DealerID        int64            `json:"dealer_id"`
	VIN             string           `json:"vin"`
	VDPURL          string           `json:"vdp_url,omitempty"`
	StockNumber     string           `json:"stock_number,omitempty"`
	Status          string           `json:"status"`
	AdvertisedPrice *decimal.Decimal `json:"advertised_price,omitempty"`
	PriceDeltaMSRP  *decimal.Decimal `json:"price_delta_msrp,omitempty"`
	FirstSeenAt     time.Time        `json:"first_seen_at"`
	LastSeenAt      time.Time        `json:"last_seen_at"`
	SourceRank      int              `json:"source_rank"`
}

// Observation is an append-only scrape event.
type Observation struct {
	ID              int64            `json:"id"`
	JobID           uuid.UUID        `json:"job_id"`
	ObservedAt      time.Time        `json:"observed_at"`
	DealerID        int64            `json:"dealer_id"`
	VIN             string           `json:"vin"`
	VDPURL          string           `json:"vdp_url,omitempty"`
	AdvertisedPrice *decimal.Decimal `json:"advertised_price,omitempty"`
	MSRP            *decimal.Decimal `json:"msrp,omitempty"`
	Payload         map[string]any   `json:"payload,omitempty"`
	RawBlobKey      string           `json:"raw_blob_key,omitempty"`
	Source          string           `json:"source"`
}

// PriceEvent records a change in advertised price.
type PriceEvent struct {
	ID         int64           `json:"id"`
	DealerID   int64           `json:"dealer_id"`
	VIN        string          `json:"vin"`
	ObservedAt time.Time       `json:"observed_at"`
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	Delta      decimal.Decimal `json:"delta"`
	Pct        *decimal.Decimal `json:"pct,omitempty"`
}

// ScrapeJob lifecycle: pending -> running -> {success, partial, failed}.
type ScrapeJob struct {
	ID           uuid.UUID  `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Model        string     `json:"model"`
	Region       string     `json:"region,omitempty"`
	Status       string     `json:"status"`
	TargetCount  int        `json:"target_count"`
	SuccessCount int        `json:"success_count"`
	FailCount    int        `json:"fail_count"`
	Notes        string     `json:"notes,omitempty"`
}

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

// ScrapeTask tracks one dealer's fetch+parse+reconcile attempt within a job.
type ScrapeTask struct {
	ID          int64      `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	DealerID    int64      `json:"dealer_id"`
	URL         string     `json:"url"`
	Attempt     int        `json:"attempt"`
	Status      string     `json:"status"`
	HTTPStatus  *int       `json:"http_status,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const (
	TaskStatusPending = "pending"
	TaskStatusRunning = "running"
	TaskStatusSuccess = "success"
	TaskStatusFailed  = "failed"
)

// ParsedRow is the normalized output of every parser, keyed loosely like the
// wire payload it is derived from.
type ParsedRow struct {
	VIN             string         `json:"vin"`
	AdvertisedPrice *decimal.Decimal `json:"advertised_price,omitempty"`
	MSRP            *decimal.Decimal `json:"msrp,omitempty"`
	InvoicePrice    *decimal.Decimal `json:"invoice_price,omitempty"`
	VDPURL          string         `json:"vdp_url,omitempty"`
	StockNumber     string         `json:"stock_number,omitempty"`
	Status          string         `json:"status,omitempty"`
	ImageURL        string         `json:"image_url,omitempty"`
	Make            string         `json:"make,omitempty"`
	Model           string         `json:"model,omitempty"`
	Year            *int           `json:"year,omitempty"`
	Trim            string         `json:"trim,omitempty"`
	Drivetrain      string         `json:"drivetrain,omitempty"`
	Transmission    string         `json:"transmission,omitempty"`
	ExteriorColor   string         `json:"exterior_color,omitempty"`
	InteriorColor   string         `json:"interior_color,omitempty"`
	Features        map[string]any `json:"features,omitempty"`
}

// IngestRow is what the Ingest Reconciler consumes: a ParsedRow enriched
// with job/dealer/source provenance.
type IngestRow struct {
	DealerID     int64
	JobID        string // raw string; coerced to UUID by the reconciler, zero-UUID on failure
	ObservedAt   time.Time
	Source       string
	SourceRank   *int
	VDPURL       string
	RawBlobKey   string
	Row          ParsedRow
	FirstSeenAt  *time.Time
	LastSeenAt   *time.Time
}

// IngestResult summarizes the effect of an Ingest Reconciler batch.
type IngestResult struct {
	Observations     int `json:"observations"`
	ListingsUpserted int `json:"listings_upserted"`
	PriceEvents      int `json:"price_events"`
}

// JobSummary is returned by the Orchestrator once a job closes.
type JobSummary struct {
	JobID        uuid.UUID    `json:"job_id"`
	Status       string       `json:"status"`
	TargetCount  int          `json:"target_count"`
	SuccessCount int          `json:"success_count"`
	FailCount    int          `json:"fail_count"`
	Tasks        []ScrapeTask `json:"tasks"`
}

// Pagination is the standard limit/offset paging shape.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type PaginatedResponse[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// APIResponse is the uniform envelope for the control surface.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobSubmitResponse is a job-submission acknowledgement shape; the
// POST /api/jobs handler responds with a JobSummary instead.
type JobSubmitResponse struct {
	JobID   uuid.UUID `json:"job_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}
