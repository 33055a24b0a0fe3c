package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// apiFields limits the Open Food Facts response to what the estimator reads
const apiFields = "code,product_name,generic_name,brands,quantity,categories,origins," +
	"manufacturing_places,packaging_tags,packaging_materials_tags,ecoscore_data"

// healthCheckBarcode is a long-lived catalogue entry used to probe the API
const healthCheckBarcode = "3017620422003"

// APIEngine queries the Open Food Facts REST API (v2)
type APIEngine struct {
	baseURL   string
	userAgent string
	client    *http.Client
	log       *slog.Logger
}

// Ensure APIEngine implements QueryEngine interface
var _ QueryEngine = (*APIEngine)(nil)

type apiResponse struct {
	Status        int            `json:"status"`
	StatusVerbose string         `json:"status_verbose"`
	Product       map[string]any `json:"product"`
}

// NewAPIEngine creates an engine against baseURL (e.g. https://world.openfoodfacts.org)
func NewAPIEngine(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *APIEngine {
	return &APIEngine{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		log:       logger,
	}
}

// SearchByBarcode fetches one product. Unknown barcodes return (nil, nil).
// Network failures and server errors wrap types.ErrUpstreamUnavailable.
func (a *APIEngine) SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error) {
	start := time.Now()
	a.log.Debug("SearchByBarcode starting", "barcode", barcode, "source", "api")

	resp, err := a.get(ctx, barcode, apiFields)
	if err != nil {
		a.log.Error("Open Food Facts request failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("%w: open food facts: %v", types.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		a.log.Debug("No product found for barcode", "barcode", barcode, "duration", time.Since(start))
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: open food facts returned status %d", types.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("open food facts returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading open food facts response: %v", types.ErrUpstreamUnavailable, err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding open food facts response: %w", err)
	}

	if decoded.Status == 0 || decoded.Product == nil {
		a.log.Debug("No product found for barcode", "barcode", barcode, "status", decoded.StatusVerbose)
		return nil, nil
	}

	p := productFromRecord(decoded.Product)
	if p.Code == "" {
		p.Code = barcode
	}
	p.Link = fmt.Sprintf("%s/product/%s", a.baseURL, url.PathEscape(p.Code))

	a.log.Info("SearchByBarcode completed", "found", true, "source", "api", "duration", time.Since(start))
	return p, nil
}

// TestConnection checks the API answers a lookup without a server error
func (a *APIEngine) TestConnection(ctx context.Context) error {
	resp, err := a.get(ctx, healthCheckBarcode, "code")
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("connection test failed: status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing
func (a *APIEngine) Close() error {
	return nil
}

func (a *APIEngine) get(ctx context.Context, barcode, fields string) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/api/v2/product/%s.json?fields=%s",
		a.baseURL, url.PathEscape(barcode), url.QueryEscape(fields))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	return a.client.Do(req)
}
