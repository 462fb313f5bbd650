// Package parsers turns raw scraped markup into domain.ParsedRow slices.
// common.go is the generic markdown/HTML heuristic engine shared by the
// CDK, Dealer.com, DealerInspire, DealerAlchemy, DealerVenom and FoxDealer
// backend families.
package parsers

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	vinRE   = regexp.MustCompile(`(?i)\b[A-HJ-NPR-Z0-9]{17}\b`)
	priceRE = regexp.MustCompile(`\$[\s]*([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{2})?)`)
	urlRE   = regexp.MustCompile(`(?i)https?://[^\s"')>]+`)
	tagRE   = regexp.MustCompile(`<[^>]+>`)

	defaultURLKeywords  = []string{"inventory", "vehicle", "vdp"}
	defaultStockPattern = regexp.MustCompile(`(?i)(?:stock\s*(?:#|number|no\.?)\s*[:\-]?\s*)([A-Z0-9-]+)`)
)

// StatusRule maps one uppercase substring to a normalized status. Rules are
// tried in order, first match wins, matching the original's dict-iteration
// behavior rather than an unordered map.
type StatusRule struct {
	Pattern    string
	Normalized string
}

// PriceKeyword ranks a line-level price keyword; lower Priority wins.
type PriceKeyword struct {
	Keyword  string
	Priority int
}

// ParserConfig parameterizes the heuristic engine per backend family.
type ParserConfig struct {
	StatusMap             []StatusRule
	PriceKeywordsPriority []PriceKeyword
	URLKeywords           []string
	StockPatterns         []*regexp.Regexp
}

func (c ParserConfig) urlKeywords() []string {
	if len(c.URLKeywords) > 0 {
		return c.URLKeywords
	}
	return defaultURLKeywords
}

func (c ParserConfig) stockPatterns() []*regexp.Regexp {
	if len(c.StockPatterns) > 0 {
		return c.StockPatterns
	}
	return []*regexp.Regexp{defaultStockPattern}
}

// recordState accumulates one VIN's fields across the line-by-line scan
// before being flattened into a domain.ParsedRow.
type recordState struct {
	vin             string
	advertisedPrice *float64
	priceRank       int
	msrp            *float64
	vdpURL          string
	stockNumber     string
	status          string
}

func newRecordState(vin string) *recordState {
	return &recordState{vin: vin, priceRank: math.MaxInt32}
}

func (r *recordState) toParsedRow() domain.ParsedRow {
	row := domain.ParsedRow{VIN: r.vin, VDPURL: r.vdpURL, StockNumber: r.stockNumber, Status: r.status}
	if r.advertisedPrice != nil {
		d := decimal.NewFromFloat(*r.advertisedPrice)
		row.AdvertisedPrice = &d
	}
	if r.msrp != nil {
		d := decimal.NewFromFloat(*r.msrp)
		row.MSRP = &d
	}
	return row
}

func stripTags(raw string) string {
	return tagRE.ReplaceAllString(raw, " ")
}

func parsePrice(token string) (float64, bool) {
	m := priceRE.FindStringSubmatch(token)
	if m == nil {
		return 0, false
	}
	numeric := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractStatus(snippet string, rules []StatusRule) string {
	upper := strings.ToUpper(snippet)
	for _, rule := range rules {
		if strings.Contains(upper, rule.Pattern) {
			return rule.Normalized
		}
	}
	return ""
}

func extractStock(snippet string, patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(snippet); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func extractVDPURL(snippet, vin string, urlKeywords []string) string {
	for _, match := range urlRE.FindAllString(snippet, -1) {
		lowered := strings.ToLower(match)
		if strings.Contains(lowered, strings.ToLower(vin)) {
			return match
		}
		for _, kw := range urlKeywords {
			if strings.Contains(lowered, kw) {
				return match
			}
		}
	}
	return ""
}

func applyLine(rec *recordState, line string, cfg ParserConfig) {
	if line == "" {
		return
	}
	lower := strings.ToLower(line)

	if linePrice, ok := parsePrice(line); ok {
		if strings.Contains(lower, "msrp") || strings.Contains(lower, "sticker price") {
			if rec.msrp == nil {
				rec.msrp = &linePrice
			}
		} else {
			rank := -1
			for _, pk := range cfg.PriceKeywordsPriority {
				if strings.Contains(lower, pk.Keyword) {
					rank = pk.Priority
					break
				}
			}
			if rank == -1 && strings.Contains(line, "$") {
				rank = 5
			}
			if rank != -1 {
				if rank < rec.priceRank || (rank == rec.priceRank && (rec.advertisedPrice == nil || linePrice < *rec.advertisedPrice)) {
					rec.advertisedPrice = &linePrice
					rec.priceRank = rank
				}
			}
		}
	}

	if stock := extractStock(line, cfg.stockPatterns()); stock != "" && rec.stockNumber == "" {
		rec.stockNumber = stock
	}

	if status := extractStatus(line, cfg.StatusMap); status != "" {
		rec.status = status
	}

	if rec.vdpURL == "" {
		if vdpURL := extractVDPURL(line, rec.vin, cfg.urlKeywords()); vdpURL != "" {
			rec.vdpURL = vdpURL
		}
	}
}

// ParseInventoryWithConfig scans markdownOrHTML line by line, starting a new
// record every time a VIN is seen and folding subsequent lines into the most
// recently seen VIN's record until another VIN appears.
func ParseInventoryWithConfig(markdownOrHTML string, cfg ParserConfig) []domain.ParsedRow {
	cleaned := stripTags(markdownOrHTML)
	if cleaned == "" {
		return nil
	}

	records := map[string]*recordState{}
	var order []string
	currentVIN := ""

	for _, rawLine := range strings.Split(cleaned, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if loc := vinRE.FindStringIndex(line); loc != nil {
			vin := strings.ToUpper(line[loc[0]:loc[1]])
			currentVIN = vin
			rec, exists := records[vin]
			if !exists {
				rec = newRecordState(vin)
				records[vin] = rec
				order = append(order, vin)
			}
			remainder := strings.TrimSpace(line[:loc[0]] + " " + line[loc[1]:])
			if remainder != "" {
				applyLine(rec, remainder, cfg)
			}
			continue
		}

		if currentVIN == "" {
			continue
		}
		applyLine(records[currentVIN], line, cfg)
	}

	rows := make([]domain.ParsedRow, 0, len(order))
	for _, vin := range order {
		rows = append(rows, records[vin].toParsedRow())
	}
	return rows
}
