package parsers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

// DealerSocket SRPs render as a sequence of markdown `## [title](vdp_url)`
// sections, each containing a VIN/trim/stock-number table and two
// labeled price lines.
var (
	dealerSocketSectionRE = regexp.MustCompile(`(?s)## \[.*?\]\((?P<vdp>[^)]+)\).*?\n(?P<body>.*?)(?:\n## \[|\z)`)
	dealerSocketVINRE     = regexp.MustCompile(`\|\s*VIN\s*\|\s*([A-HJ-NPR-Z0-9]{17})\s*\|`)
	dealerSocketFieldRE   = regexp.MustCompile(`\|\s*([^|]+?)\s*\|\s*([^|]+?)\s*\|`)
	dealerSocketPriceRE   = regexp.MustCompile(`Your Price\s*\n\$(\d[\d,]*)`)
	dealerSocketMSRPRE    = regexp.MustCompile(`(?:MSRP|TSRP)\s*\n\$(\d[\d,]*)`)
)

// ParseDealerSocket parses DealerSocket inventory markdown into ParsedRows.
func ParseDealerSocket(markdownOrHTML string) []domain.ParsedRow {
	if markdownOrHTML == "" {
		return nil
	}

	var rows []domain.ParsedRow
	names := dealerSocketSectionRE.SubexpNames()
	// Split on section headers first: the section pattern's terminator
	// consumes the next header, so one scan over the whole text would skip
	// every other section.
	var matches [][]string
	for i, part := range strings.Split(markdownOrHTML, "\n## [") {
		if i > 0 {
			part = "## [" + part
		}
		matches = append(matches, dealerSocketSectionRE.FindAllStringSubmatch(part, -1)...)
	}
	for _, m := range matches {
		var vdpURL, body string
		for i, n := range names {
			switch n {
			case "vdp":
				vdpURL = m[i]
			case "body":
				body = m[i]
			}
		}

		vinMatch := dealerSocketVINRE.FindStringSubmatch(body)
		if vinMatch == nil {
			continue
		}
		vin := strings.ToUpper(vinMatch[1])

		table := parseDealerSocketTable(body)

		row := domain.ParsedRow{
			VIN:         vin,
			VDPURL:      vdpURL,
			StockNumber: table["stock #"],
			Trim:        table["trim"],
			Model:       table["model"],
			Status:      domain.StatusAvailable,
		}
		if p := dealerSocketPrice(body, dealerSocketPriceRE); p != nil {
			d := decimal.NewFromFloat(*p)
			row.AdvertisedPrice = &d
		}
		if p := dealerSocketPrice(body, dealerSocketMSRPRE); p != nil {
			d := decimal.NewFromFloat(*p)
			row.MSRP = &d
		}
		rows = append(rows, row)
	}
	return rows
}

func parseDealerSocketTable(body string) map[string]string {
	table := map[string]string{}
	for _, m := range dealerSocketFieldRE.FindAllStringSubmatch(body, -1) {
		table[strings.ToLower(strings.TrimSpace(m[1]))] = strings.TrimSpace(m[2])
	}
	return table
}

func dealerSocketPrice(body string, pattern *regexp.Regexp) *float64 {
	m := pattern.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}
