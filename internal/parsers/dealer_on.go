package parsers

import (
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	taggingDataScriptRE = regexp.MustCompile(`(?is)<script[^>]+id="dealeron_tagging_data"[^>]*>(.*?)</script>`)
	dealerOnOGURLRE      = regexp.MustCompile(`(?i)<meta[^>]+property="og:url"[^>]+content="([^"]+)"`)
	dealerOnCanonicalRE  = regexp.MustCompile(`(?i)<link[^>]+rel="canonical"[^>]+href="([^"]+)"`)
)

// DealerOnAPIRequest is the Cosmos SRP API call the orchestrator issues
// with its own API HTTP client (not the Fetch Client) after this package
// extracts the tagging data embedded in the SRP markup.
type DealerOnAPIRequest struct {
	URL    string
	Params url.Values
	// EmptyInventory is set when the tagging data reports a 404 status,
	// meaning the SRP is a legitimately empty, filtered inventory and the
	// orchestrator should not treat the absence of an API call as failure.
	EmptyInventory bool
}

// BuildDealerOnRequest extracts dealerId/pageId and host/query from the
// dealeron_tagging_data script and the og:url/canonical tags. Returns
// DealerOnParseError when the tagging data or host cannot be located.
func BuildDealerOnRequest(markdownOrHTML string) (*DealerOnAPIRequest, error) {
	if markdownOrHTML == "" {
		return nil, nil
	}

	taggingData := extractTaggingData(markdownOrHTML)
	if taggingData == nil {
		return nil, newDealerOnParseError("unable to locate dealeron_tagging_data script in markup")
	}

	dealerIDRaw := firstNonEmpty(taggingData["dealerId"], taggingData["DealerId"])
	pageIDRaw := firstNonEmpty(taggingData["pageId"], taggingData["PageId"])
	if dealerIDRaw == nil || pageIDRaw == nil {
		return nil, newDealerOnParseError("dealeron_tagging_data missing dealerId or pageId")
	}
	dealerID, err := strconv.Atoi(str(dealerIDRaw))
	if err != nil {
		return nil, newDealerOnParseError("dealerId is not numeric")
	}
	pageID, err := strconv.Atoi(str(pageIDRaw))
	if err != nil {
		return nil, newDealerOnParseError("pageId is not numeric")
	}

	host, query := extractHostAndQuery(markdownOrHTML)
	if host == "" {
		return nil, newDealerOnParseError("unable to determine host for dealeron page from markup")
	}

	if statusCode, ok := taggingData["statusCode"].(float64); ok && int(statusCode) == 404 {
		return &DealerOnAPIRequest{EmptyInventory: true}, nil
	}

	pageSize := 12
	if items, ok := taggingData["items"].([]any); ok && len(items) > pageSize {
		pageSize = len(items)
	}

	params := url.Values{}
	params.Set("host", host)
	params.Set("PageNumber", "1")
	params.Set("PageSize", strconv.Itoa(pageSize))
	params.Set("displayCardsShown", strconv.Itoa(pageSize))
	if query != "" {
		if parsed, err := url.ParseQuery(query); err == nil {
			for k, vs := range parsed {
				if len(vs) > 0 {
					params.Set(k, vs[0])
				}
			}
		}
	}

	apiURL := "https://" + host + "/api/vhcliaa/vehicle-pages/cosmos/srp/vehicles/" +
		strconv.Itoa(dealerID) + "/" + strconv.Itoa(pageID)

	return &DealerOnAPIRequest{URL: apiURL, Params: params}, nil
}

func extractTaggingData(raw string) map[string]any {
	m := taggingDataScriptRE.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(m[1]), &out); err != nil {
		return nil
	}
	return out
}

func extractHostAndQuery(raw string) (string, string) {
	var candidate string
	if m := dealerOnOGURLRE.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else if m := dealerOnCanonicalRE.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	}
	if candidate == "" {
		return "", ""
	}

	decoded := html.UnescapeString(candidate)
	if strings.Contains(decoded, "%3F") && !strings.Contains(decoded, "?") {
		decoded = strings.Replace(decoded, "%3F", "?", 1)
	}
	u, err := url.Parse(decoded)
	if err != nil {
		return "", ""
	}
	return u.Host, u.RawQuery
}

// ParseDealerOnDisplayCards converts the Cosmos SRP API's DisplayCards
// payload into ParsedRows.
func ParseDealerOnDisplayCards(payload map[string]any, host string) []domain.ParsedRow {
	displayCards, _ := payload["DisplayCards"].([]any)
	rows := make([]domain.ParsedRow, 0, len(displayCards))
	for _, c := range displayCards {
		card, ok := c.(map[string]any)
		if !ok {
			continue
		}
		vehicleCard, ok := card["VehicleCard"].(map[string]any)
		if !ok {
			continue
		}

		imageModel, _ := vehicleCard["VehicleImageModel"].(map[string]any)
		vin := firstNonEmptyString(str(vehicleCard["VehicleVin"]), str(imageModel["Vin"]))
		if vin == "" {
			continue
		}
		vin = strings.ToUpper(strings.TrimSpace(vin))

		row := domain.ParsedRow{
			VIN:         vin,
			StockNumber: str(vehicleCard["VehicleStockNumber"]),
			Trim:        str(vehicleCard["VehicleTrim"]),
			Model:       str(vehicleCard["VehicleModel"]),
			Status:      domain.StatusAvailable,
		}
		if inTransit, _ := vehicleCard["VehicleInTransit"].(bool); inTransit {
			row.Status = domain.StatusInTransit
		}
		if inProduction, _ := vehicleCard["VehicleInProduction"].(bool); inProduction {
			row.Status = domain.StatusInTransit
		}

		if imageSrc := str(imageModel["VehiclePhotoSrc"]); imageSrc != "" {
			if strings.HasPrefix(imageSrc, "http") {
				row.ImageURL = imageSrc
			} else {
				row.ImageURL = "https://" + host + imageSrc
			}
		}

		vdpURL := firstNonEmptyString(str(vehicleCard["VehicleDetailUrl"]), str(imageModel["VehicleDetailUrl"]))
		if vdpURL != "" && !strings.HasPrefix(vdpURL, "http") {
			vdpURL = "https://" + host + vdpURL
		}
		row.VDPURL = vdpURL

		price := coercePrice(vehicleCard["VehicleInternetPrice"])
		if price == nil {
			price = coercePrice(vehicleCard["TaggingPrice"])
		}
		if price != nil {
			d := decimal.NewFromFloat(*price)
			row.AdvertisedPrice = &d
		}
		if p := coercePrice(vehicleCard["VehicleMsrp"]); p != nil {
			d := decimal.NewFromFloat(*p)
			row.MSRP = &d
		}
		if y := yearOf(vehicleCard["VehicleYear"]); y != nil {
			row.Year = y
		}

		rows = append(rows, row)
	}
	return rows
}
