package parsers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

// dealerAlchemyConfig is shared by the DealerAlchemy, DealerVenom and
// FoxDealer backend tags: same CMS family, same Typesense follow-up shape.
var dealerAlchemyConfig = ParserConfig{
	StatusMap: []StatusRule{
		{"IN TRANSIT", domain.StatusInTransit},
		{"TRANSIT", domain.StatusInTransit},
		{"IN STOCK", domain.StatusAvailable},
		{"AVAILABLE", domain.StatusAvailable},
		{"BUILD PHASE", domain.StatusBuildPhase},
		{"PENDING SALE", domain.StatusPending},
		{"SOLD", domain.StatusSold},
	},
	PriceKeywordsPriority: []PriceKeyword{
		{"advertised price", 1},
		{"sale price", 1},
		{"internet price", 1},
		{"final price", 1},
		{"tsrp", 2},
		{"msrp", 2},
		{"price", 3},
	},
}

// ParseDealerAlchemy parses DealerAlchemy/DealerVenom/FoxDealer inventory
// markup via the shared heuristic engine.
func ParseDealerAlchemy(markdownOrHTML string) []domain.ParsedRow {
	return ParseInventoryWithConfig(markdownOrHTML, dealerAlchemyConfig)
}

// TypesenseConfig carries the multi_search credentials embedded in the SRP.
type TypesenseConfig struct {
	APIKey      string
	Host        string
	Port        int
	Protocol    string
	IndexName   string
	QueryBy     string
	Condition   string
	HitsPerPage int
}

var (
	apiKeyRE      = regexp.MustCompile(`(?i)apiKey\s*:\s*"([^"]+)"`)
	nodeRE        = regexp.MustCompile(`(?i)nodes\s*:\s*\[\s*\{[^}]*host\s*:\s*['"]([^'"]+)['"],\s*port\s*:\s*(\d+),\s*protocol\s*:\s*['"]([^'"]+)['"][^}]*\}`)
	queryByRE     = regexp.MustCompile(`(?i)query_by\s*:\s*"([^"]+)"`)
	indexNameRE   = regexp.MustCompile(`(?i)var\s+indexName\s*=\s*"([^"]+)"`)
	conditionRE   = regexp.MustCompile(`(?i)var\s+srpCondition\s*=\s*'([^']+)'`)
	hitsPerPageRE = regexp.MustCompile(`(?i)hitsPerPage\s*=\s*(\d+)`)
)

// ExtractTypesenseConfig parses the Typesense multi_search credentials
// DealerAlchemy embeds in its SRP HTML.
func ExtractTypesenseConfig(html string) (*TypesenseConfig, error) {
	if html == "" {
		return nil, ErrNoConfig
	}
	apiMatch := apiKeyRE.FindStringSubmatch(html)
	nodeMatch := nodeRE.FindStringSubmatch(html)
	queryMatch := queryByRE.FindStringSubmatch(html)
	indexMatch := indexNameRE.FindStringSubmatch(html)
	if apiMatch == nil || nodeMatch == nil || queryMatch == nil || indexMatch == nil {
		return nil, ErrNoConfig
	}

	port, err := strconv.Atoi(nodeMatch[2])
	if err != nil {
		return nil, ErrNoConfig
	}

	cfg := &TypesenseConfig{
		APIKey:      strings.TrimSpace(apiMatch[1]),
		Host:        strings.TrimSpace(nodeMatch[1]),
		Port:        port,
		Protocol:    strings.TrimSpace(nodeMatch[3]),
		QueryBy:     strings.TrimSpace(queryMatch[1]),
		IndexName:   strings.TrimSpace(indexMatch[1]),
		HitsPerPage: 250,
	}
	if m := conditionRE.FindStringSubmatch(html); m != nil {
		cfg.Condition = strings.TrimSpace(m[1])
	}
	if m := hitsPerPageRE.FindStringSubmatch(html); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			cfg.HitsPerPage = n
		}
	}
	return cfg, nil
}

// BuildFilterString joins non-empty filter clauses with Typesense's `&&`
// conjunction operator.
func BuildFilterString(parts ...string) string {
	var tokens []string
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return strings.Join(tokens, " && ")
}

// QuoteFilterValue escapes a value for inclusion in a Typesense filter
// string.
func QuoteFilterValue(v string) string {
	escaped := strings.ReplaceAll(v, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// ParseTypesenseHits converts a Typesense multi_search response (one
// "results" entry per search, each carrying "hits") into ParsedRows.
func ParseTypesenseHits(data map[string]any, pageURL string) []domain.ParsedRow {
	results, _ := data["results"].([]any)
	var rows []domain.ParsedRow
	for _, r := range results {
		result, ok := r.(map[string]any)
		if !ok {
			continue
		}
		hits, _ := result["hits"].([]any)
		for _, h := range hits {
			hit, ok := h.(map[string]any)
			if !ok {
				continue
			}
			document, ok := hit["document"].(map[string]any)
			if !ok {
				continue
			}
			vin := strings.ToUpper(str(document["vin"]))
			if vin == "" {
				continue
			}
			var dealerURL string
			if d, ok := document["dealer"].(map[string]any); ok {
				dealerURL = str(d["url"])
			}

			row := domain.ParsedRow{
				VIN:           vin,
				StockNumber:   str(document["stockNumber"]),
				VDPURL:        normalizeTypesenseVDPURL(str(document["vdpUrl"]), pageURL, dealerURL),
				Status:        derivedTypesenseStatus(document),
				Make:          str(document["make"]),
				Model:         str(document["model"]),
				Trim:          str(document["trim"]),
				Drivetrain:    str(document["drivetrain"]),
				Transmission:  str(document["transmission"]),
				ExteriorColor: str(document["exteriorColor"]),
				InteriorColor: str(document["interiorColor"]),
			}
			if p := coercePrice(document["invoicePrice"]); p != nil {
				d := decimal.NewFromFloat(*p)
				row.InvoicePrice = &d
			}
			if p := coercePrice(firstNonEmpty(document["finalPrice"], document["advertisedPrice"], document["sellingPrice"])); p != nil {
				d := decimal.NewFromFloat(*p)
				row.AdvertisedPrice = &d
			}
			if p := coercePrice(document["msrp"]); p != nil {
				d := decimal.NewFromFloat(*p)
				row.MSRP = &d
			}
			if y := yearOf(document["year"]); y != nil {
				row.Year = y
			}
			if images, ok := document["imageUrls"].([]any); ok && len(images) > 0 {
				row.ImageURL = str(images[0])
			}
			if f, ok := document["features"].([]any); ok {
				feats := map[string]any{}
				for i, v := range f {
					feats[strconv.Itoa(i)] = v
				}
				row.Features = feats
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func normalizeTypesenseVDPURL(raw, pageURL, dealerURL string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	base := pageURL
	if base == "" && dealerURL != "" {
		dealer := strings.TrimSpace(dealerURL)
		if !strings.HasPrefix(dealer, "http") {
			dealer = "https://" + strings.TrimLeft(dealer, "/")
		}
		base = strings.TrimRight(dealer, "/") + "/"
	}
	if base == "" {
		return raw
	}
	return resolveRef(strings.TrimLeft(raw, "/"), base)
}

func derivedTypesenseStatus(document map[string]any) string {
	if flags, ok := document["flags"].(map[string]any); ok {
		if sold, _ := flags["hasSoldVehicles"].(bool); sold {
			return domain.StatusSold
		}
		if transit, _ := flags["inTransit"].(bool); transit {
			return domain.StatusInTransit
		}
	}
	status := firstNonEmptyString(str(document["status"]), str(document["condition"]))
	if status != "" {
		upper := strings.ToUpper(status)
		if strings.Contains(upper, "TRANSIT") {
			return domain.StatusInTransit
		}
		if strings.Contains(upper, "SOLD") {
			return domain.StatusSold
		}
	}
	return domain.StatusAvailable
}
