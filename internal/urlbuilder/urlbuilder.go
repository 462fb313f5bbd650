// Package urlbuilder expands a dealer's inventory URL template for a given
// model. It is a pure, dependency-free component with a full placeholder
// set and a token-precedence rule for resolving overrides.
package urlbuilder

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
)

// ErrUnsupportedModel is returned when model is not in the registry.
type ErrUnsupportedModel struct{ Model string }

func (e *ErrUnsupportedModel) Error() string {
	return fmt.Sprintf("unsupported model: %s", e.Model)
}

// ErrMissingPlaceholder is returned when a required token has no value.
type ErrMissingPlaceholder struct{ Placeholder string }

func (e *ErrMissingPlaceholder) Error() string {
	return fmt.Sprintf("missing placeholder: %s", e.Placeholder)
}

// modelTokens is the static per-model token set.
type modelTokens struct {
	slug           string
	plus           string
	nameEncoded    string
	underscore     string
	series         string
}

// ModelRegistry is the canonical token set per supported model, including
// the underscore and series forms some dealer templates require.
var ModelRegistry = map[string]modelTokens{
	"Land Cruiser": {
		slug:        "land-cruiser",
		plus:        "Land+Cruiser",
		nameEncoded: url.QueryEscape("Land Cruiser"),
		underscore:  "land_cruiser",
		series:      "landcruiser",
	},
	"4Runner": {
		slug:        "4runner",
		plus:        "4Runner",
		nameEncoded: url.QueryEscape("4Runner"),
		underscore:  "4runner",
		series:      "4runner",
	},
	"Tacoma": {
		slug:        "tacoma",
		plus:        "Tacoma",
		nameEncoded: url.QueryEscape("Tacoma"),
		underscore:  "tacoma",
		series:      "tacoma",
	},
	"Tundra": {
		slug:        "tundra",
		plus:        "Tundra",
		nameEncoded: url.QueryEscape("Tundra"),
		underscore:  "tundra",
		series:      "tundra",
	},
}

var placeholderRE = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

// Build expands dealer.InventoryURLTmpl for the given model, applying the
// precedence rule dealer_overrides > scraping_config.tokens > model
// registry > dealer fallbacks. dealerOverrides comes from a
// DealerBackendTemplate row when one exists (may be nil).
func Build(dealer domain.Dealer, model string, dealerOverrides map[string]string) (string, error) {
	tokens, ok := ModelRegistry[model]
	if !ok {
		return "", &ErrUnsupportedModel{Model: model}
	}

	values := map[string]string{
		"model_slug":           tokens.slug,
		"model_plus":           tokens.plus,
		"model_name_encoded":   tokens.nameEncoded,
		"model_underscore":     tokens.underscore,
		"model_series":         tokens.series,
		"homepage_url":         dealer.HomepageURL,
		"dealer_code":          dealer.Code,
		"city":                 dealer.City,
		"state":                dealer.State,
		"city_code":            cityCode(dealer),
	}

	// scraping_config.tokens override the registry/fallback layer.
	for k, v := range dealer.ScrapingConfig.Tokens {
		values[k] = v
	}
	// dealer_overrides (DealerBackendTemplate) take highest precedence.
	for k, v := range dealerOverrides {
		values[k] = v
	}

	tpl := dealer.InventoryURLTmpl
	missing := map[string]bool{}

	expanded := placeholderRE.ReplaceAllStringFunc(tpl, func(match string) string {
		name := placeholderRE.FindStringSubmatch(match)[1]
		v, ok := values[name]
		if !ok || v == "" {
			missing[name] = true
			return match
		}
		return v
	})

	for name := range missing {
		if name == "city_code" {
			expanded = cleanCityCodePlaceholder(expanded)
			continue
		}
		return "", &ErrMissingPlaceholder{Placeholder: name}
	}

	scope := dealer.ScrapingConfig.TemplateScope
	if scope == "" {
		scope = domain.TemplateScopeRelative
	}
	if scope == domain.TemplateScopeRelative && !strings.HasPrefix(expanded, "http") {
		base, err := url.Parse(dealer.HomepageURL)
		if err != nil {
			return "", fmt.Errorf("invalid homepage_url: %w", err)
		}
		ref, err := url.Parse(expanded)
		if err != nil {
			return "", fmt.Errorf("invalid template: %w", err)
		}
		return base.ResolveReference(ref).String(), nil
	}
	return expanded, nil
}

func cityCode(dealer domain.Dealer) string {
	// city_code has no dedicated dealer field; it is supplied only via
	// scraping_config.tokens or a DealerBackendTemplate override, and may
	// legitimately be absent.
	return ""
}

// cleanCityCodePlaceholder removes an unresolved {city_code} placeholder and
// any dangling `cy=` query parameter it leaves behind, plus any resulting
// empty `?` or trailing `&`.
func cleanCityCodePlaceholder(raw string) string {
	// Strip a `cy={city_code}` or `cy={city_code}&` pair first.
	cleaned := regexp.MustCompile(`cy=\{city_code\}&?`).ReplaceAllString(raw, "")
	// Any remaining bare placeholder (not part of a cy= param) is dropped too.
	cleaned = strings.ReplaceAll(cleaned, "{city_code}", "")

	// Normalize a dangling leading `&` immediately after `?` into `?`.
	cleaned = regexp.MustCompile(`\?&`).ReplaceAllString(cleaned, "?")
	// Drop a trailing empty `?`.
	cleaned = strings.TrimSuffix(cleaned, "?")
	// Collapse a double `&&` left by removing a middle param.
	cleaned = regexp.MustCompile(`&&+`).ReplaceAllString(cleaned, "&")
	cleaned = strings.TrimSuffix(cleaned, "&")
	return cleaned
}
