package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Condor83/vehicle-inventory-system-v2/internal/metrics"
)

// apiHTTPClient issues the dealer-API follow-up calls (Algolia, Typesense,
// CDK's inventory widget, DealerOn's Cosmos SRP API, SmartPath's Typesense
// collection) a parser's extracted credentials point at. These hit the
// dealer's own site or API host directly, not the upstream scrape/extract
// service, so they get a plain client and their own deadline rather than
// reusing the Fetch Client.
type apiHTTPClient struct {
	http    *http.Client
	timeout time.Duration
}

func newAPIHTTPClient(timeout time.Duration) *apiHTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &apiHTTPClient{http: &http.Client{}, timeout: timeout}
}

// doJSON issues method against url and decodes a JSON object response.
// endpointLabel is a low-cardinality metrics label (e.g. "multi_search")
// distinct from url, which varies per dealer host.
func (c *apiHTTPClient) doJSON(
	ctx context.Context, service, endpointLabel, method, url string, headers map[string]string, body any,
) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	status := "ok"
	if err != nil || (resp != nil && resp.StatusCode >= 400) {
		status = "error"
	}
	metrics.ExternalAPICallsTotal.WithLabelValues(service, endpointLabel, status).Inc()
	metrics.ExternalAPILatency.WithLabelValues(service, endpointLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("orchestrator: %s follow-up returned %d: %s", service, resp.StatusCode, string(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("orchestrator: %s follow-up returned invalid json: %w", service, err)
	}
	return out, nil
}
