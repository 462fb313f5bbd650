package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/domain"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/fetchclient"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/parsers"
)

// parseWithFallback dispatches content to the right backend parser and,
// when that backend carries a typed fallback, drives the retry/discovery
// path before giving up. It returns the rows, the backend that actually
// produced them (empty when the dispatched backend's own parser did; the
// SmartPath flow always names the backend it used), and any terminal parse
// error.
func (p *Processor) parseWithFallback(
	ctx context.Context, dealer domain.Dealer, backend domain.Backend, model, pageURL string, result *fetchclient.Result,
) ([]domain.ParsedRow, domain.Backend, error) {
	content := selectContent(backend, result)

	switch backend {
	case domain.BackendDealerOn:
		rows, err := p.dealerOnFollowUp(ctx, content, dealer)
		if err == nil {
			return rows, "", nil
		}
		var parseErr *parsers.DealerOnParseError
		if !errors.As(err, &parseErr) {
			return nil, "", err
		}
		lower := strings.ToLower(content)
		switch {
		case strings.Contains(lower, "smartpath"):
			rows, discovered, serr := p.smartPathFlow(ctx, content, dealer, model)
			return rows, discovered, serr
		case strings.Contains(lower, "teamvelocityportal") || strings.Contains(lower, "inventoryapibaseurl"):
			rows, terr := parsers.ParseTeamVelocity(ensureCanonical(content, dealer))
			if terr != nil {
				return nil, "", terr
			}
			return rows, domain.BackendTeamVelocity, nil
		default:
			return nil, "", err
		}

	case domain.BackendSmartPath:
		rows, discovered, err := p.smartPathFlow(ctx, content, dealer, model)
		return rows, discovered, err

	case domain.BackendCDK, domain.BackendDealerInspire, domain.BackendDealerAlchemy, domain.BackendDealerVenom, domain.BackendFoxDealer:
		fn := parsers.Registry[backend]
		rows, err := fn(content)
		if err != nil {
			return nil, "", err
		}
		if len(rows) > 0 {
			return rows, "", nil
		}
		followRows, followErr := p.apiFollowUp(ctx, backend, content, model, pageURL)
		if followErr != nil {
			p.logger.Warn("api_followup_failed",
				"backend", string(backend), "error", followErr.Error())
			return rows, "", nil
		}
		return followRows, "", nil

	default:
		fn, ok := parsers.Registry[backend]
		if !ok {
			return nil, "", fmt.Errorf("orchestrator: no parser registered for backend %s", backend)
		}
		rows, err := fn(content)
		if err != nil {
			return nil, "", err
		}
		return rows, "", nil
	}
}

// selectContent picks which of markdown/html/raw_html a backend's parser
// expects. DealerOn and SmartPath need the raw markup (their credentials
// live in embedded <script> tags the Fetch Client's markdown conversion
// strips); the heuristic parsers take the best available content.
func selectContent(backend domain.Backend, result *fetchclient.Result) string {
	if backend == domain.BackendDealerOn || backend == domain.BackendSmartPath {
		if result.RawHTML != "" {
			return result.RawHTML
		}
		return result.HTML
	}
	return result.BestContent()
}

func (p *Processor) apiFollowUp(ctx context.Context, backend domain.Backend, content, model, pageURL string) ([]domain.ParsedRow, error) {
	switch backend {
	case domain.BackendCDK:
		return p.cdkFollowUp(ctx, content, pageURL)
	case domain.BackendDealerInspire:
		return p.algoliaFollowUp(ctx, content, model, pageURL)
	case domain.BackendDealerAlchemy, domain.BackendDealerVenom, domain.BackendFoxDealer:
		return p.typesenseFollowUp(ctx, content, model, pageURL)
	default:
		return nil, nil
	}
}

func (p *Processor) dealerOnFollowUp(ctx context.Context, content string, dealer domain.Dealer) ([]domain.ParsedRow, error) {
	req, err := parsers.BuildDealerOnRequest(content)
	if err != nil {
		return nil, err
	}
	if req == nil || req.EmptyInventory {
		return nil, nil
	}

	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	reqURL := req.URL + "?" + req.Params.Encode()
	body, err := p.api.doJSON(ctx, "dealeron", "cosmos/srp", http.MethodGet, reqURL, nil, nil)
	if err != nil {
		return nil, err
	}
	return parsers.ParseDealerOnDisplayCards(body, req.Params.Get("host")), nil
}

func (p *Processor) smartPathFlow(ctx context.Context, content string, dealer domain.Dealer, model string) ([]domain.ParsedRow, domain.Backend, error) {
	req, err := parsers.ParseSmartPathConfig(content)
	if err != nil {
		rows, discovered, ferr := p.smartPathCandidateFallback(ctx, dealer, model)
		if ferr == nil && discovered != "" {
			p.saveDiscoveredTemplate(ctx, dealer, discovered)
		}
		return rows, discovered, ferr
	}
	rows, err := p.smartPathSearch(ctx, req)
	if err != nil {
		return nil, "", err
	}
	return rows, domain.BackendSmartPath, nil
}

func (p *Processor) smartPathSearch(ctx context.Context, req *parsers.SmartPathSearchRequest) ([]domain.ParsedRow, error) {
	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	reqURL := fmt.Sprintf("%s/collections/%s/documents/search?%s", req.BaseURL, url.PathEscape(req.IndexName), req.Params.Encode())
	headers := map[string]string{"x-typesense-api-key": req.APIKey}
	body, err := p.api.doJSON(ctx, "smartpath", "collections/documents/search", http.MethodGet, reqURL, headers, nil)
	if err != nil {
		return nil, err
	}

	hits, _ := body["hits"].([]any)
	docs := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		hit, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if doc, ok := hit["document"].(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return parsers.ParseSmartPathDocuments(docs, req.DealerHost), nil
}

// smartPathCandidateFallback is the last resort when a SmartPath page
// carries no embedded Typesense credentials: probe the handful of URL
// shapes SmartPath dealers commonly publish inventory under and run the
// fallback parser chain against whichever responds first with rows.
func (p *Processor) smartPathCandidateFallback(ctx context.Context, dealer domain.Dealer, model string) ([]domain.ParsedRow, domain.Backend, error) {
	slug := modelSlug(model)
	home := strings.TrimRight(dealer.HomepageURL, "/")
	candidates := []string{
		home + "/inventory/new/toyota/" + slug,
		home + "/inventory/new/" + slug,
		home + "/inventory/new-toyota-" + slug,
		home + "/inventory/new-" + slug,
	}
	fallbackChain := []domain.Backend{
		domain.BackendTeamVelocity, domain.BackendDealerInspire, domain.BackendDealerCom,
		domain.BackendDealerOn, domain.BackendDealerSocket, domain.BackendCDK,
	}

	for _, candidateURL := range candidates {
		release, err := p.limiter.Acquire(ctx)
		if err != nil {
			return nil, "", err
		}
		result, err := p.fetch.Fetch(ctx, candidateURL, true)
		release()
		if err != nil {
			continue
		}
		content := result.BestContent()

		for _, backend := range fallbackChain {
			var rows []domain.ParsedRow
			var perr error
			if backend == domain.BackendTeamVelocity {
				rows, perr = parsers.ParseTeamVelocity(ensureCanonical(content, dealer))
			} else if fn, ok := parsers.Registry[backend]; ok {
				rows, perr = fn(content)
			}
			if perr == nil && len(rows) > 0 {
				return rows, backend, nil
			}
		}
	}
	return nil, "", fmt.Errorf("orchestrator: smartpath candidate-url fallback chain exhausted for dealer %d", dealer.ID)
}

func (p *Processor) cdkFollowUp(ctx context.Context, content, pageURL string) ([]domain.ParsedRow, error) {
	req, err := parsers.ExtractInventoryRequest(content)
	if err != nil {
		return nil, err
	}

	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	reqURL := resolveAgainst(pageURL, req.Endpoint)
	body, err := p.api.doJSON(ctx, "cdk", "ws-inv-data/getInventory", http.MethodPost, reqURL, nil, req.Payload)
	if err != nil {
		return nil, err
	}
	return parsers.ParseInventoryJSON(body, pageURL), nil
}

func (p *Processor) algoliaFollowUp(ctx context.Context, content, model, pageURL string) ([]domain.ParsedRow, error) {
	cfg, err := parsers.ExtractAlgoliaConfig(content)
	if err != nil {
		return nil, err
	}

	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	params := parsers.BuildAlgoliaParams(*cfg, model, 60, "Toyota", "New")
	reqURL := fmt.Sprintf("https://%s-dsn.algolia.net/1/indexes/%s/query", cfg.AppID, url.PathEscape(cfg.Index))
	headers := map[string]string{
		"X-Algolia-API-Key":        cfg.APIKey,
		"X-Algolia-Application-Id": cfg.AppID,
	}
	body, err := p.api.doJSON(ctx, "algolia", "1/indexes/query", http.MethodPost, reqURL, headers, map[string]any{"params": params})
	if err != nil {
		return nil, err
	}
	return parsers.ParseAlgoliaHits(body, pageURL), nil
}

func (p *Processor) typesenseFollowUp(ctx context.Context, content, model, pageURL string) ([]domain.ParsedRow, error) {
	cfg, err := parsers.ExtractTypesenseConfig(content)
	if err != nil {
		return nil, err
	}

	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	conditionClause := ""
	if cfg.Condition != "" {
		conditionClause = "condition:=" + parsers.QuoteFilterValue(cfg.Condition)
	}
	filter := parsers.BuildFilterString(conditionClause, "model:="+parsers.QuoteFilterValue(model))
	search := map[string]any{
		"collection": cfg.IndexName,
		"q":          "*",
		"query_by":   cfg.QueryBy,
		"filter_by":  filter,
		"per_page":   cfg.HitsPerPage,
	}
	reqURL := fmt.Sprintf("%s://%s:%d/multi_search?use_cache=true", cfg.Protocol, cfg.Host, cfg.Port)
	headers := map[string]string{"x-typesense-api-key": cfg.APIKey}
	body, err := p.api.doJSON(ctx, "typesense", "multi_search", http.MethodPost, reqURL, headers, map[string]any{"searches": []any{search}})
	if err != nil {
		return nil, err
	}
	return parsers.ParseTypesenseHits(body, pageURL), nil
}

var canonicalTagRE = regexp.MustCompile(`(?i)<link[^>]+rel="canonical"`)

// ensureCanonical prepends a synthetic canonical link tag when the DealerOn
// fallback sniff routes to Team Velocity's parser, which needs one to
// determine the dealer host and otherwise has no markup to find it in.
func ensureCanonical(content string, dealer domain.Dealer) string {
	if canonicalTagRE.MatchString(content) {
		return content
	}
	return `<link rel="canonical" href="` + dealer.HomepageURL + `">` + content
}

func modelSlug(model string) string {
	return strings.ToLower(strings.ReplaceAll(model, " ", "-"))
}

func resolveAgainst(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}
