package parsers

import (
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
)

// ParseFunc is the primary, markup-only parsing entry point for a backend
// family. Backends whose inventory is only fully available through a JS-
// driven API still implement ParseFunc against the raw SRP markup:
// DealerInspire/Algolia, DealerAlchemy/Typesense and CDK run the generic
// heuristic, while DealerOn and SmartPath only check the markup for their
// API configuration and return no rows. Their dedicated follow-up
// builders/parsers live alongside them in this package and are invoked
// directly by the orchestrator.
type ParseFunc func(markdownOrHTML string) ([]domain.ParsedRow, error)

// Registry dispatches a backend tag to its primary parse function.
var Registry = map[domain.Backend]ParseFunc{
	domain.BackendCDK:           wrapNoErr(ParseCDK),
	domain.BackendDealerCom:     wrapNoErr(ParseDealerCom),
	domain.BackendDealerInspire: wrapNoErr(ParseDealerInspire),
	domain.BackendDealerAlchemy: wrapNoErr(ParseDealerAlchemy),
	domain.BackendDealerVenom:   wrapNoErr(ParseDealerAlchemy),
	domain.BackendFoxDealer:     wrapNoErr(ParseDealerAlchemy),
	domain.BackendDealerSocket:  wrapNoErr(ParseDealerSocket),
	domain.BackendTeamVelocity:  ParseTeamVelocity,
	domain.BackendDealerOn:      parseDealerOnMarkupOnly,
	domain.BackendSmartPath:     parseSmartPathMarkupOnly,
}

func wrapNoErr(fn func(string) []domain.ParsedRow) ParseFunc {
	return func(markdownOrHTML string) ([]domain.ParsedRow, error) {
		return fn(markdownOrHTML), nil
	}
}

// parseDealerOnMarkupOnly satisfies ParseFunc for dispatch uniformity; the
// real DealerOn parse path always needs the Cosmos SRP API follow-up
// (BuildDealerOnRequest + ParseDealerOnDisplayCards), driven by the
// orchestrator rather than this single-call signature.
func parseDealerOnMarkupOnly(markdownOrHTML string) ([]domain.ParsedRow, error) {
	req, err := BuildDealerOnRequest(markdownOrHTML)
	if err != nil {
		return nil, err
	}
	if req != nil && req.EmptyInventory {
		return nil, nil
	}
	return nil, ErrNoConfig
}

// parseSmartPathMarkupOnly mirrors parseDealerOnMarkupOnly: SmartPath has no
// markup-only inventory representation, only a Typesense follow-up.
func parseSmartPathMarkupOnly(markdownOrHTML string) ([]domain.ParsedRow, error) {
	if _, err := ParseSmartPathConfig(markdownOrHTML); err != nil {
		return nil, err
	}
	return nil, ErrNoConfig
}

// ClassifyBackend applies the seed-time backend-classification rule: a
// SmartPath-flavored template takes precedence over the dealer's stored
// backend_type; specific dealer IDs are known Team Velocity sites
// regardless of template; and a DealerSocket template that actually points
// at a DealerOn SRP path is coerced to DealerOn.
func ClassifyBackend(dealer domain.Dealer, teamVelocityDealerIDs map[int64]bool) domain.Backend {
	tmpl := strings.ToLower(dealer.InventoryURLTmpl)

	if strings.Contains(tmpl, "smartpath") {
		return domain.BackendSmartPath
	}
	if teamVelocityDealerIDs[dealer.ID] {
		return domain.BackendTeamVelocity
	}
	if dealer.BackendType == domain.BackendDealerSocket &&
		(strings.Contains(tmpl, "dealeron") || strings.Contains(tmpl, "searchnew.aspx")) {
		return domain.BackendDealerOn
	}
	return dealer.BackendType
}
