package parsers

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	smartPathAPIKeyRE     = regexp.MustCompile(`apiKey:\s*['"]([^'"]+)['"]`)
	smartPathHostRE       = regexp.MustCompile(`host:\s*['"]([^'"]+)['"]`)
	smartPathIndexRE      = regexp.MustCompile(`(?i)var\s+indexName\s*=\s*['"]([^'"]+)['"]`)
	smartPathFallbackIdxRE = regexp.MustCompile(`vehicles-[A-Za-z0-9]+`)
	smartPathCanonicalRE  = regexp.MustCompile(`(?i)<link[^>]+rel="canonical"[^>]+href="([^"]+)"`)
	smartPathOGURLRE      = regexp.MustCompile(`(?i)<meta[^>]+property="og:url"[^>]+content="([^"]+)"`)
)

var smartPathModelNames = map[string]string{
	"4runner":      "4Runner",
	"4 runner":     "4Runner",
	"tacoma":       "Tacoma",
	"tundra":       "Tundra",
	"land cruiser": "Land Cruiser",
	"land-cruiser": "Land Cruiser",
}

// SmartPathSearchRequest is the Typesense single-search the orchestrator
// issues with its own API HTTP client (not the Fetch Client) once markup
// has been parsed.
type SmartPathSearchRequest struct {
	BaseURL     string
	IndexName   string
	APIKey      string
	DealerHost  string
	ModelFilter string
	Params      url.Values
}

// ParseSmartPathConfig extracts Typesense credentials, the dealer host, and
// an optional model filter from a SmartPath SRP page. Returns
// SmartPathParseError when the markup carries no usable configuration.
func ParseSmartPathConfig(markdownOrHTML string) (*SmartPathSearchRequest, error) {
	if markdownOrHTML == "" {
		return nil, newSmartPathParseError("empty markup")
	}

	apiMatch := smartPathAPIKeyRE.FindStringSubmatch(markdownOrHTML)
	hostMatch := smartPathHostRE.FindStringSubmatch(markdownOrHTML)
	indexName := ""
	if m := smartPathIndexRE.FindStringSubmatch(markdownOrHTML); m != nil {
		indexName = m[1]
	} else if m := smartPathFallbackIdxRE.FindString(markdownOrHTML); m != "" {
		indexName = m
	}
	if apiMatch == nil || hostMatch == nil || indexName == "" {
		return nil, newSmartPathParseError("unable to locate typesense configuration in markup")
	}

	dealerHost := smartPathDealerHost(markdownOrHTML)
	if dealerHost == "" {
		return nil, newSmartPathParseError("unable to determine dealer host")
	}

	filters := []string{"condition:='New'"}
	if model := smartPathModelFilter(markdownOrHTML); model != "" {
		filters = append(filters, "model:='"+model+"'")
	}

	params := url.Values{}
	params.Set("q", "*")
	params.Set("query_by", "model")
	params.Set("per_page", "250")
	params.Set("filter_by", strings.Join(filters, " && "))

	return &SmartPathSearchRequest{
		BaseURL:    "https://" + hostMatch[1],
		IndexName:  indexName,
		APIKey:     apiMatch[1],
		DealerHost: dealerHost,
		Params:     params,
	}, nil
}

func smartPathDealerHost(html string) string {
	for _, re := range []*regexp.Regexp{smartPathCanonicalRE, smartPathOGURLRE} {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		u, err := url.Parse(m[1])
		if err == nil && u.Host != "" {
			return u.Host
		}
	}
	return ""
}

func smartPathModelFilter(html string) string {
	var candidates []string
	for _, re := range []*regexp.Regexp{smartPathCanonicalRE, smartPathOGURLRE} {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		u, err := url.Parse(m[1])
		if err != nil {
			continue
		}
		if u.RawQuery != "" {
			q := u.Query()
			candidates = append(candidates, q["model"]...)
			for key, values := range q {
				if strings.Contains(key, "model") {
					candidates = append(candidates, values...)
				}
			}
		} else {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(segments) > 0 && segments[len(segments)-1] != "" {
				candidates = append(candidates, segments[len(segments)-1])
			}
		}
	}
	for _, c := range candidates {
		if normalized := normalizeSmartPathModel(c); normalized != "" {
			return normalized
		}
	}
	return ""
}

func normalizeSmartPathModel(value string) string {
	if value == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		decoded = value
	}
	decoded = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(decoded, "+", " ")))
	return smartPathModelNames[decoded]
}

// ParseSmartPathDocuments converts a Typesense single-search response's
// document list into ParsedRows.
func ParseSmartPathDocuments(documents []map[string]any, dealerHost string) []domain.ParsedRow {
	rows := make([]domain.ParsedRow, 0, len(documents))
	for _, doc := range documents {
		vin := strings.ToUpper(firstNonEmptyString(str(doc["vin"]), str(doc["id"])))
		if vin == "" {
			continue
		}

		row := domain.ParsedRow{
			VIN:         vin,
			StockNumber: str(doc["stockNumber"]),
			Trim:        str(doc["trim"]),
			Model:       str(doc["model"]),
		}
		if p := coercePrice(firstNonEmpty(doc["finalPrice"], doc["sellingPrice"], doc["price"])); p != nil {
			d := decimal.NewFromFloat(*p)
			row.AdvertisedPrice = &d
		} else if p := coercePrice(doc["internetPrice"]); p != nil {
			d := decimal.NewFromFloat(*p)
			row.AdvertisedPrice = &d
		}
		if p := coercePrice(doc["msrp"]); p != nil {
			d := decimal.NewFromFloat(*p)
			row.MSRP = &d
		} else if p := coercePrice(doc["price"]); p != nil {
			d := decimal.NewFromFloat(*p)
			row.MSRP = &d
		}

		row.Status = domain.StatusAvailable
		if flags, ok := doc["flags"].(map[string]any); ok {
			if inTransit, _ := flags["inTransit"].(bool); inTransit {
				row.Status = domain.StatusInTransit
			}
		}

		if images, ok := doc["imageUrls"].([]any); ok && len(images) > 0 {
			row.ImageURL = str(images[0])
		}
		if y := yearOf(doc["year"]); y != nil {
			row.Year = y
		}
		if f, ok := doc["features"].([]any); ok {
			feats := map[string]any{}
			for i, v := range f {
				feats[str(float64(i))] = v
			}
			row.Features = feats
		}

		vdpURL := str(doc["vdpUrl"])
		if strings.HasPrefix(vdpURL, "/") {
			vdpURL = "https://" + dealerHost + vdpURL
		}
		row.VDPURL = vdpURL

		rows = append(rows, row)
	}
	return rows
}
