// Package fetchclient wraps the upstream scrape/extract HTTP service with
// an exponential-backoff retry loop around each attempt.
package fetchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/metrics"
	"github.com/Condor83/vehicle-inventory-system-v2/internal/tracing"
)

var retryableStatus = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// RetryableError means the caller should keep retrying the fetch up to
// MaxAttempts; non-retryable errors short-circuit the attempt loop.
type RetryableError struct {
	msg string
}

func (e *RetryableError) Error() string { return e.msg }

// Result is the normalized scrape/extract response the orchestrator hands
// to the Parser Registry.
type Result struct {
	URL      string
	Markdown string
	HTML     string
	RawHTML  string
	Metadata map[string]any
	Source   string // "scrape" or "extract"
}

// BestContent returns the richest available representation, preferring
// markdown, then html, then raw_html.
func (r Result) BestContent() string {
	if r.Markdown != "" {
		return r.Markdown
	}
	if r.HTML != "" {
		return r.HTML
	}
	return r.RawHTML
}

// Client issues scrape/extract calls against the upstream fetch service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpClient = c } }

// New builds a Client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string, timeout time.Duration, maxAttempts int, backoffBase time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	c := &Client{
		httpClient:  &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var scrapeOptions = map[string]any{
	"onlyMainContent":     true,
	"removeBase64Images":  true,
	"skipTlsVerification": true,
	"storeInCache":        true,
	"blockAds":            true,
	"maxAge":              14400000,
	"formats":             []string{"markdown", "html"},
}

// Fetch scrapes url, falling back to the extract endpoint when the scrape
// response carries no markdown/html and allowExtractFallback is set.
func (c *Client) Fetch(ctx context.Context, url string, allowExtractFallback bool) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "fetchclient.fetch")
	defer span.End()

	doc, err := c.scrape(ctx, url)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if doc.Markdown != "" || doc.HTML != "" || !allowExtractFallback {
		return doc, nil
	}

	extracted, err := c.extract(ctx, url)
	if err != nil {
		c.logger.Warn("extract fallback failed", slog.String("url", url), slog.String("error", err.Error()))
		return doc, nil
	}
	if extracted != nil {
		return extracted, nil
	}
	return doc, nil
}

func (c *Client) scrape(ctx context.Context, url string) (*Result, error) {
	payload := map[string]any{"url": url}
	for k, v := range scrapeOptions {
		payload[k] = v
	}

	body, err := c.post(ctx, "/v2/scrape", payload)
	if err != nil {
		return nil, err
	}
	if ok, _ := body["success"].(bool); !ok {
		return nil, fmt.Errorf("fetchclient: scrape failed: %v", body["error"])
	}
	data, _ := body["data"].(map[string]any)
	return &Result{
		URL:      url,
		Markdown: strVal(data["markdown"]),
		HTML:     strVal(data["html"]),
		RawHTML:  firstNonEmpty(strVal(data["rawHtml"]), strVal(data["raw_html"])),
		Metadata: normalizeMetadata(data["metadata"]),
		Source:   "scrape",
	}, nil
}

func (c *Client) extract(ctx context.Context, url string) (*Result, error) {
	payload := map[string]any{
		"urls":          []string{url},
		"scrapeOptions": scrapeOptions,
	}
	body, err := c.post(ctx, "/v2/extract", payload)
	if err != nil {
		return nil, err
	}
	if status, ok := body["status"].(string); ok && status != "" && status != "completed" {
		return nil, fmt.Errorf("fetchclient: extract status %s", status)
	}

	candidate := extractCandidate(body["data"])
	if candidate == nil {
		return nil, nil
	}
	if docs, ok := candidate["documents"].([]any); ok && len(docs) > 0 {
		if first, ok := docs[0].(map[string]any); ok {
			candidate = first
		}
	}

	markdown := strVal(candidate["markdown"])
	html := strVal(candidate["html"])
	rawHTML := strVal(candidate["rawHtml"])
	if markdown == "" && html == "" && rawHTML == "" {
		markdown = strVal(candidate["content"])
	}

	return &Result{
		URL:      url,
		Markdown: markdown,
		HTML:     html,
		RawHTML:  rawHTML,
		Metadata: normalizeMetadata(candidate["metadata"]),
		Source:   "extract",
	}, nil
}

func extractCandidate(data any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		return v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// post issues one POST, retrying up to c.maxAttempts times on a retryable
// status or transport error with exponential backoff plus jitter, mirroring
// the bid processor's attempt loop.
func (c *Client) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		start := time.Now()
		resp, err := c.doRequest(ctx, path, encoded)
		metrics.ExternalAPICallsTotal.WithLabelValues("fetchclient", path, statusLabel(resp, err)).Inc()
		metrics.ExternalAPILatency.WithLabelValues("fetchclient", path).Observe(time.Since(start).Seconds())

		if err != nil {
			lastErr = &RetryableError{msg: fmt.Sprintf("fetchclient: request to %s failed: %v", path, err)}
			c.wait(ctx, attempt)
			continue
		}

		if retryableStatus[resp.StatusCode] {
			lastErr = &RetryableError{msg: fmt.Sprintf("fetchclient: upstream returned %d for %s", resp.StatusCode, path)}
			resp.Body.Close()
			c.wait(ctx, attempt)
			continue
		}

		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("fetchclient: %s returned %d: %s", path, resp.StatusCode, string(b))
		}

		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("fetchclient: invalid JSON from upstream: %w", err)
		}
		return out, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("fetchclient: request to %s failed", path)
}

func (c *Client) doRequest(ctx context.Context, path string, body []byte) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(req)
}

func (c *Client) wait(ctx context.Context, attempt int) {
	if attempt >= c.maxAttempts-1 {
		return
	}
	delay := c.backoffBase * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Float64() * 0.3 * float64(time.Second))
	select {
	case <-ctx.Done():
	case <-time.After(delay + jitter):
	}
}

func statusLabel(resp *http.Response, err error) string {
	if err != nil {
		return "error"
	}
	if resp.StatusCode >= 400 {
		return "error"
	}
	return "ok"
}

func strVal(v any) string {
	s, _ := v.(string)
	return s
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeMetadata(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if val != nil {
			out[k] = val
		}
	}
	return out
}
