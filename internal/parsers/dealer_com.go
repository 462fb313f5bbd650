package parsers

import "github.com/Condor83/vehicle-inventory-system-v2/internal/domain"

// dealerComConfig drives the generic heuristic engine for Dealer.com SRPs.
var dealerComConfig = ParserConfig{
	StatusMap: []StatusRule{
		{"IN TRANSIT", domain.StatusInTransit},
		{"IN-TRANSIT", domain.StatusInTransit},
		{"IN PRODUCTION", domain.StatusInTransit},
		{"COMING SOON", domain.StatusInTransit},
		{"SOLD", domain.StatusSold},
		{"AVAILABLE", domain.StatusAvailable},
		{"IN STOCK", domain.StatusAvailable},
		{"ON LOT", domain.StatusAvailable},
	},
	PriceKeywordsPriority: []PriceKeyword{
		{"internet price", 1},
		{"dealer price", 1},
		{"sale price", 2},
		{"online price", 2},
		{"price", 4},
	},
}

// ParseDealerCom parses Dealer.com inventory markup with the shared
// heuristic engine.
func ParseDealerCom(markdownOrHTML string) []domain.ParsedRow {
	return ParseInventoryWithConfig(markdownOrHTML, dealerComConfig)
}
