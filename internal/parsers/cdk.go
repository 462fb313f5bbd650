package parsers

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

var cdkConfig = ParserConfig{
	StatusMap: []StatusRule{
		{"IN TRANSIT", domain.StatusInTransit},
		{"IN-TRANSIT", domain.StatusInTransit},
		{"IN ROUTE", domain.StatusInTransit},
		{"ARRIVING SOON", domain.StatusInTransit},
		{"SOLD", domain.StatusSold},
		{"AVAILABLE", domain.StatusAvailable},
		{"IN STOCK", domain.StatusAvailable},
		{"ON ORDER", domain.StatusInTransit},
	},
	PriceKeywordsPriority: []PriceKeyword{
		{"web price", 1},
		{"sale price", 1},
		{"dealer price", 2},
		{"your price", 2},
		{"price", 4},
	},
}

// ParseCDK parses CDK Global inventory markup via the shared heuristic
// engine.
func ParseCDK(markdownOrHTML string) []domain.ParsedRow {
	return ParseInventoryWithConfig(markdownOrHTML, cdkConfig)
}

var cdkFetchPatternRE = regexp.MustCompile(`(?is)fetch\("(?P<endpoint>/api/widget/ws-inv-data/getInventory)"\s*,\s*\{.*?body:decodeURI\("(?P<payload>[^"]+)"\).*?\}\)`)

// CDKInventoryRequest is the embedded fetch() call CDK's SRP page issues
// client-side to pull inventory JSON.
type CDKInventoryRequest struct {
	Endpoint string
	Payload  map[string]any
}

// ExtractInventoryRequest detects the embedded CDK inventory fetch metadata
// inside the SRP HTML.
func ExtractInventoryRequest(html string) (*CDKInventoryRequest, error) {
	if html == "" {
		return nil, ErrNoConfig
	}
	m := cdkFetchPatternRE.FindStringSubmatch(html)
	if m == nil {
		return nil, ErrNoConfig
	}
	names := cdkFetchPatternRE.SubexpNames()
	var endpoint, rawPayload string
	for i, n := range names {
		switch n {
		case "endpoint":
			endpoint = m[i]
		case "payload":
			rawPayload = m[i]
		}
	}
	decoded, err := url.QueryUnescape(rawPayload)
	if err != nil {
		return nil, ErrNoConfig
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return nil, ErrNoConfig
	}
	return &CDKInventoryRequest{Endpoint: endpoint, Payload: payload}, nil
}

// ParseInventoryJSON converts the CDK inventory JSON payload into
// ParsedRows.
func ParseInventoryJSON(data map[string]any, baseURL string) []domain.ParsedRow {
	inventory, _ := data["inventory"].([]any)
	rows := make([]domain.ParsedRow, 0, len(inventory))
	for _, e := range inventory {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		vin := strings.ToUpper(str(entry["vin"]))
		if vin == "" {
			continue
		}
		row := domain.ParsedRow{
			VIN:         vin,
			StockNumber: firstNonEmptyString(str(entry["stockNumber"]), str(entry["stock"])),
			VDPURL:      cdkVDPURL(entry, baseURL),
			Status:      cdkNormalizeStatus(str(entry["status"])),
			ImageURL:    cdkImage(entry),
			Make:        str(entry["make"]),
			Model:       str(entry["model"]),
			Trim:        str(entry["trim"]),
		}
		if p := cdkPrice(entry, "final"); p != nil {
			d := decimal.NewFromFloat(*p)
			row.AdvertisedPrice = &d
		}
		if p := cdkPrice(entry, "msrp"); p != nil {
			d := decimal.NewFromFloat(*p)
			row.MSRP = &d
		}
		if y := yearOf(entry["year"]); y != nil {
			row.Year = y
		}
		if f, ok := entry["features"].(map[string]any); ok {
			row.Features = f
		}
		rows = append(rows, row)
	}
	return rows
}

func cdkPrice(entry map[string]any, field string) *float64 {
	pricing, _ := entry["pricing"].(map[string]any)
	dprice, _ := pricing["dprice"].([]any)

	if field == "final" {
		for _, it := range dprice {
			item, ok := it.(map[string]any)
			if !ok {
				continue
			}
			isFinal, _ := item["isFinalPrice"].(bool)
			typeClass := str(item["typeClass"])
			if isFinal || typeClass == "askingPrice" || typeClass == "internetPrice" || typeClass == "finalPrice" {
				if p := coercePrice(item["value"]); p != nil {
					return p
				}
			}
		}
		for _, key := range []string{"salePrice", "sale_price", "askingPrice", "internetPrice", "asking_price"} {
			if p := coercePrice(entry[key]); p != nil {
				return p
			}
		}
	} else if field == "msrp" {
		for _, it := range dprice {
			item, ok := it.(map[string]any)
			if !ok {
				continue
			}
			typeClass := str(item["typeClass"])
			if typeClass == "msrp" || typeClass == "retailPrice" {
				if p := coercePrice(item["value"]); p != nil {
					return p
				}
			}
		}
		if p := coercePrice(pricing["retailPrice"]); p != nil {
			return p
		}
	}

	if p := coercePrice(pricing["retailPrice"]); p != nil {
		return p
	}
	return coercePrice(entry["price"])
}

func cdkImage(entry map[string]any) string {
	if images, ok := entry["images"].([]any); ok {
		for _, i := range images {
			img, ok := i.(map[string]any)
			if !ok {
				continue
			}
			uri := firstNonEmptyString(str(img["uri"]), str(img["url"]))
			if uri == "" {
				continue
			}
			if strings.HasPrefix(uri, "//") {
				return "https:" + uri
			}
			return uri
		}
	}
	if primary, ok := entry["primary_image"].(map[string]any); ok {
		uri := firstNonEmptyString(str(primary["uri"]), str(primary["url"]))
		if uri != "" {
			if strings.HasPrefix(uri, "//") {
				return "https:" + uri
			}
			return uri
		}
	}
	return ""
}

func cdkVDPURL(entry map[string]any, baseURL string) string {
	link := firstNonEmptyString(str(entry["link"]), str(entry["vdp"]), str(entry["url"]))
	if link == "" {
		return ""
	}
	return resolveRef(link, baseURL)
}

func cdkNormalizeStatus(status string) string {
	if status == "" {
		return ""
	}
	normalized := strings.ToUpper(strings.TrimSpace(status))
	normalized = strings.ReplaceAll(normalized, "-", " ")
	normalized = strings.ReplaceAll(normalized, "_", " ")
	for _, rule := range cdkConfig.StatusMap {
		if rule.Pattern == normalized {
			return rule.Normalized
		}
	}
	switch normalized {
	case "LIVE", "AVAILABLE":
		return domain.StatusAvailable
	case "IN TRANSIT", "ARRIVING", "TRANSFER":
		return domain.StatusInTransit
	}
	return strings.ToLower(status)
}
