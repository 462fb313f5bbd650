package parsers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

var dealerInspireConfig = ParserConfig{
	StatusMap: []StatusRule{
		{"IN TRANSIT", domain.StatusInTransit},
		{"IN-TRANSIT", domain.StatusInTransit},
		{"COMING SOON", domain.StatusInTransit},
		{"SOLD", domain.StatusSold},
		{"AVAILABLE", domain.StatusAvailable},
		{"IN STOCK", domain.StatusAvailable},
	},
	PriceKeywordsPriority: []PriceKeyword{
		{"sale price", 1},
		{"our price", 1},
		{"internet price", 2},
		{"special price", 2},
		{"market price", 3},
		{"dealer price", 3},
		{"price", 4},
	},
}

// ParseDealerInspire parses DealerInspire SRP markup with the shared
// heuristic engine.
func ParseDealerInspire(markdownOrHTML string) []domain.ParsedRow {
	return ParseInventoryWithConfig(markdownOrHTML, dealerInspireConfig)
}

// AlgoliaConfig carries the search credentials DealerInspire embeds in its
// SRP markup, either via the inventoryLightningSettings JS object or the
// #sb-algolia-helper data attributes.
type AlgoliaConfig struct {
	AppID       string
	APIKey      string
	Index       string
	Refinements map[string][]string
}

var (
	lightningSettingsMarker = "var inventoryLightningSettings"
	algoliaHelperRE         = regexp.MustCompile(`(?i)<div[^>]+id=["']sb-algolia-helper["'][^>]*>`)
)

// ExtractAlgoliaConfig locates the Algolia credentials embedded in a
// DealerInspire SRP. Returns ErrNoConfig when neither source yields a
// complete configuration.
func ExtractAlgoliaConfig(html string) (*AlgoliaConfig, error) {
	if html == "" {
		return nil, ErrNoConfig
	}

	cfg := &AlgoliaConfig{Refinements: map[string][]string{}}
	if settings := extractLightningSettings(html); settings != nil {
		if v, ok := settings["appId"].(string); ok {
			cfg.AppID = v
		}
		if v, ok := settings["apiKeySearch"].(string); ok {
			cfg.APIKey = v
		}
		if v, ok := settings["inventoryIndex"].(string); ok {
			cfg.Index = v
		}
		if raw, ok := settings["refinements"].(map[string]any); ok {
			for k, v := range raw {
				cfg.Refinements[k] = toStringSlice(v)
			}
		}
	}

	if m := algoliaHelperRE.FindString(html); m != "" {
		if v := attrValue(m, "data-app-id"); v != "" {
			cfg.AppID = v
		}
		if v := attrValue(m, "data-search-key"); v != "" {
			cfg.APIKey = v
		}
		if v := attrValue(m, "data-index"); v != "" {
			cfg.Index = v
		}
	}

	if cfg.AppID == "" || cfg.APIKey == "" || cfg.Index == "" {
		return nil, ErrNoConfig
	}
	return cfg, nil
}

func extractLightningSettings(html string) map[string]any {
	start := strings.Index(html, lightningSettingsMarker)
	if start == -1 {
		return nil
	}
	braceStart := strings.Index(html[start:], "{")
	if braceStart == -1 {
		return nil
	}
	braceStart += start

	depth := 0
	for i := braceStart; i < len(html); i++ {
		switch html[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var out map[string]any
				if err := json.Unmarshal([]byte(html[braceStart:i+1]), &out); err != nil {
					return nil
				}
				return out
			}
		}
	}
	return nil
}

func attrValue(tag, attr string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(attr) + `="([^"]+)"`)
	m := re.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	return m[1]
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

// BuildAlgoliaParams constructs the Algolia search params string for the
// given model.
func BuildAlgoliaParams(cfg AlgoliaConfig, model string, hitsPerPage int, make_, inventoryType string) string {
	if hitsPerPage <= 0 {
		hitsPerPage = 60
	}
	if make_ == "" {
		make_ = "Toyota"
	}
	if inventoryType == "" {
		inventoryType = "New"
	}

	quote := func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return ""
		}
		if strings.ContainsAny(v, " :") {
			return `"` + v + `"`
		}
		return v
	}

	var filters []string
	hasPrefix := func(prefix string) bool {
		for _, f := range filters {
			if strings.HasPrefix(f, prefix) {
				return true
			}
		}
		return false
	}

	for key, values := range cfg.Refinements {
		for _, v := range values {
			if q := quote(v); q != "" {
				filters = append(filters, fmt.Sprintf("%s:%s", key, q))
			}
		}
	}
	if !hasPrefix("model:") {
		if q := quote(model); q != "" {
			filters = append(filters, "model:"+q)
		}
	}
	if !hasPrefix("make:") {
		if q := quote(make_); q != "" {
			filters = append(filters, "make:"+q)
		}
	}
	if !hasPrefix("type:") {
		if q := quote(inventoryType); q != "" {
			filters = append(filters, "type:"+q)
		}
	}

	params := "hitsPerPage=" + strconv.Itoa(hitsPerPage)
	if len(filters) > 0 {
		params = "filters=" + strings.Join(filters, " AND ") + "&" + params
	}
	return params
}

// ParseAlgoliaHits converts an Algolia search response into ParsedRows.
func ParseAlgoliaHits(data map[string]any, baseURL string) []domain.ParsedRow {
	hitsRaw, _ := data["hits"].([]any)
	rows := make([]domain.ParsedRow, 0, len(hitsRaw))
	for _, h := range hitsRaw {
		hit, ok := h.(map[string]any)
		if !ok {
			continue
		}
		vin := strings.ToUpper(str(hit["vin"]))
		if vin == "" {
			continue
		}
		row := domain.ParsedRow{
			VIN:           vin,
			StockNumber:   str(hit["stock"]),
			VDPURL:        resolveRef(str(hit["link"]), baseURL),
			Status:        normalizeDealerInspireStatus(firstNonEmptyString(str(hit["vehicle_status"]), str(hit["status"]))),
			Make:          str(hit["make"]),
			Model:         str(hit["model"]),
			Trim:          str(hit["trim"]),
			Drivetrain:    firstNonEmptyString(str(hit["drivetrain"]), str(hit["drive_type"])),
			Transmission:  str(hit["transmission"]),
			ExteriorColor: firstNonEmptyString(str(hit["ext_color"]), str(hit["exterior_color"])),
			InteriorColor: firstNonEmptyString(str(hit["int_color"]), str(hit["interior_color"])),
		}
		if p := coercePrice(firstNonEmpty(hit["our_price"], hit["algoliaPrice"], hit["price"])); p != nil {
			d := decimal.NewFromFloat(*p)
			row.AdvertisedPrice = &d
		}
		if p := coercePrice(hit["msrp"]); p != nil {
			d := decimal.NewFromFloat(*p)
			row.MSRP = &d
		}
		if p := coercePrice(hit["invoice"]); p != nil {
			d := decimal.NewFromFloat(*p)
			row.InvoicePrice = &d
		}
		if y := yearOf(hit["year"]); y != nil {
			row.Year = y
		}
		if f, ok := hit["features"].(map[string]any); ok {
			row.Features = f
		}
		row.ImageURL = dealerInspireImage(hit, baseURL)
		rows = append(rows, row)
	}
	return rows
}

func dealerInspireImage(hit map[string]any, baseURL string) string {
	if thumb := str(hit["thumbnail"]); thumb != "" {
		return resolveRef(thumb, baseURL)
	}
	if imgs, ok := hit["images"].([]any); ok {
		for _, raw := range imgs {
			img, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if uri := firstNonEmptyString(str(img["url"]), str(img["src"])); uri != "" {
				return resolveRef(uri, baseURL)
			}
		}
	}
	return ""
}

func normalizeDealerInspireStatus(status string) string {
	if status == "" {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "on-lot", "available", "live":
		return domain.StatusAvailable
	case "in transit", "in-transit", "transit":
		return domain.StatusInTransit
	case "sold":
		return domain.StatusSold
	default:
		return strings.ToLower(status)
	}
}

func resolveRef(ref, baseURL string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}
