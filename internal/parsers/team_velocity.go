package parsers

import (
	"encoding/json"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ldJSONRE         = regexp.MustCompile(`(?is)<script[^>]+type="application/ld\+json"[^>]*>(.*?)</script>`)
	teamVelocityCanonicalRE = regexp.MustCompile(`(?i)<link[^>]+rel="canonical"[^>]+href="([^"]+)"`)
)

// ParseTeamVelocity extracts `@type: "Car"` JSON-LD nodes from Team
// Velocity SRP markup. Returns TeamVelocityParseError when no dealer host
// can be determined.
func ParseTeamVelocity(markdownOrHTML string) ([]domain.ParsedRow, error) {
	if markdownOrHTML == "" {
		return nil, nil
	}

	dealerHost := teamVelocityDealerHost(markdownOrHTML)
	if dealerHost == "" {
		return nil, newTeamVelocityParseError("unable to determine dealer host for team velocity markup")
	}

	cars := teamVelocityCars(markdownOrHTML)
	rows := make([]domain.ParsedRow, 0, len(cars))
	for _, car := range cars {
		vin := strings.ToUpper(str(car["vehicleIdentificationNumber"]))
		if vin == "" {
			continue
		}

		offer, _ := car["offers"].(map[string]any)

		row := domain.ParsedRow{
			VIN:    vin,
			Status: domain.StatusAvailable,
			Trim:   firstNonEmptyString(str(car["vehicleModel"]), str(car["model"])),
			Model:  str(car["model"]),
		}
		if sku := str(car["sku"]); sku != "" {
			row.StockNumber = sku
		}
		if offer != nil {
			if p := coercePrice(offer["price"]); p != nil {
				d := decimal.NewFromFloat(*p)
				row.AdvertisedPrice = &d
			}
			vdpURL := str(offer["url"])
			if strings.HasPrefix(vdpURL, "/") {
				vdpURL = "https://" + dealerHost + vdpURL
			}
			row.VDPURL = vdpURL
		}
		if y := yearOf(car["vehicleModelDate"]); y != nil {
			row.Year = y
		}
		switch img := car["image"].(type) {
		case map[string]any:
			row.ImageURL = str(img["contentUrl"])
		case string:
			row.ImageURL = img
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func teamVelocityDealerHost(raw string) string {
	m := teamVelocityCanonicalRE.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	u, err := url.Parse(html.UnescapeString(m[1]))
	if err != nil {
		return ""
	}
	return u.Host
}

func teamVelocityCars(raw string) []map[string]any {
	var cars []map[string]any
	for _, m := range ldJSONRE.FindAllStringSubmatch(raw, -1) {
		script := m[1]

		var asObject map[string]any
		if err := json.Unmarshal([]byte(script), &asObject); err == nil {
			if str(asObject["@type"]) == "Car" {
				cars = append(cars, asObject)
			}
			continue
		}

		var asArray []map[string]any
		if err := json.Unmarshal([]byte(script), &asArray); err == nil {
			for _, node := range asArray {
				if str(node["@type"]) == "Car" {
					cars = append(cars, node)
				}
			}
		}
	}
	return cars
}
