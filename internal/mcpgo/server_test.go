package mcpgo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/config"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/estimate"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/query"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

// stubModel implements vision.Model for testing.
type stubModel struct {
	text string
	err  error
}

func (m *stubModel) Analyze(_ context.Context, _ vision.Request) (string, error) {
	return m.text, m.err
}

func newTestServer(t *testing.T, model vision.Model) (*Server, *query.MockEngine) {
	t.Helper()
	logger := config.NewTestLogger(io.Discard, "debug")
	products := query.NewMockEngine(logger)
	estimator := estimate.NewEstimator(products, model, emission.DefaultTable(), time.Second, logger)
	return NewServer(estimator, products, logger), products
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer_EstimateFromBarcode(t *testing.T) {
	server, _ := newTestServer(t, nil)

	result, err := server.handleEstimateFromBarcode(context.Background(), callRequest("estimate_from_barcode", map[string]any{"barcode": "0417890019578"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	response, ok := result.StructuredContent.(EstimateResponse)
	require.True(t, ok)
	assert.True(t, response.Found)
	require.NotNil(t, response.Estimate)
	assert.Equal(t, "Plant-based Burger", response.Estimate.Product)
	assert.Equal(t, 3.5, response.Estimate.CO2Kg)
	assert.Equal(t, 100, response.Estimate.Confidence)

	var decoded EstimateResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	assert.Equal(t, response.Estimate.CO2Kg, decoded.Estimate.CO2Kg)
}

func TestServer_EstimateFromBarcode_NotFound(t *testing.T) {
	server, _ := newTestServer(t, nil)

	result, err := server.handleEstimateFromBarcode(context.Background(), callRequest("estimate_from_barcode", map[string]any{"barcode": "0000000000000"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	response, ok := result.StructuredContent.(EstimateResponse)
	require.True(t, ok)
	assert.False(t, response.Found)
	assert.Nil(t, response.Estimate)
	assert.Equal(t, "product not found", response.Message)
}

func TestServer_EstimateFromBarcode_Errors(t *testing.T) {
	t.Run("missing argument", func(t *testing.T) {
		server, _ := newTestServer(t, nil)
		result, err := server.handleEstimateFromBarcode(context.Background(), callRequest("estimate_from_barcode", map[string]any{}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "barcode")
	})

	t.Run("database down", func(t *testing.T) {
		server, products := newTestServer(t, nil)
		products.SetError(errors.New("connection refused"))

		result, err := server.handleEstimateFromBarcode(context.Background(), callRequest("estimate_from_barcode", map[string]any{"barcode": "0417890019578"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "upstream service unavailable, try again", resultText(t, result))
	})
}

func TestServer_EstimateFromImage(t *testing.T) {
	model := &stubModel{text: `{"materials":["glass"],"weight_kg":0.75,"origin":"France","confidence":80,
		"alternatives":[{"name":"refill pouch","co2_kg":0.2},{"name":"can","co2_kg":9}]}`}
	server, _ := newTestServer(t, model)

	image := base64.StdEncoding.EncodeToString(pngImage)
	result, err := server.handleEstimateFromImage(context.Background(), callRequest("estimate_from_image", map[string]any{"image": image}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	response := result.StructuredContent.(EstimateResponse)
	require.NotNil(t, response.Estimate)
	assert.Equal(t, 0.9, response.Estimate.CO2Kg)
	assert.Equal(t, []types.Alternative{{Name: "refill pouch", CO2Kg: 0.2, Savings: 0.7}}, response.Estimate.Alternatives)
}

func TestServer_EstimateFromImage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		model    *stubModel
		args     map[string]any
		expected string
	}{
		{
			name:     "no structured payload",
			model:    &stubModel{text: "Sorry, the photo is too blurry."},
			args:     map[string]any{"image": base64.StdEncoding.EncodeToString(pngImage)},
			expected: "analysis failed, try again or retake photo",
		},
		{
			name:     "model unavailable",
			model:    &stubModel{err: types.ErrUpstreamUnavailable},
			args:     map[string]any{"image": base64.StdEncoding.EncodeToString(pngImage)},
			expected: "upstream service unavailable, try again",
		},
		{
			name:     "not an image",
			model:    &stubModel{},
			args:     map[string]any{"image": "hello"},
			expected: "invalid input: provide a barcode or an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.model)
			result, err := server.handleEstimateFromImage(context.Background(), callRequest("estimate_from_image", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.expected, resultText(t, result))
		})
	}
}

func TestServer_ListEmissionFactors(t *testing.T) {
	server, _ := newTestServer(t, nil)

	result, err := server.handleListEmissionFactors(context.Background(), callRequest("list_emission_factors", nil))
	require.NoError(t, err)

	response := result.StructuredContent.(FactorsResponse)
	assert.Equal(t, 8.1, response.Factors["aluminum"])
	assert.Equal(t, 5.0, response.Factors[emission.DefaultMaterial])
	assert.Equal(t, 0.5, response.OriginBonus["india"])
}

func TestServer_checkHealthWithCache(t *testing.T) {
	t.Run("first call performs health check", func(t *testing.T) {
		server, _ := newTestServer(t, nil)

		assert.NoError(t, server.checkHealthWithCache(context.Background()))
		assert.False(t, server.lastHealthCheck.IsZero())
		assert.NoError(t, server.lastHealthError)
	})

	t.Run("subsequent calls within 10 seconds use cache", func(t *testing.T) {
		server, _ := newTestServer(t, nil)
		ctx := context.Background()

		require.NoError(t, server.checkHealthWithCache(ctx))
		firstCheckTime := server.lastHealthCheck

		require.NoError(t, server.checkHealthWithCache(ctx))
		assert.Equal(t, firstCheckTime, server.lastHealthCheck)
	})

	t.Run("caches error results", func(t *testing.T) {
		server, products := newTestServer(t, nil)
		ctx := context.Background()
		testError := errors.New("open food facts unreachable")
		products.SetError(testError)

		assert.Equal(t, testError, server.checkHealthWithCache(ctx))

		products.SetError(nil)
		assert.Equal(t, testError, server.checkHealthWithCache(ctx))
	})

	t.Run("cache expires after 10 seconds", func(t *testing.T) {
		server, _ := newTestServer(t, nil)
		ctx := context.Background()

		require.NoError(t, server.checkHealthWithCache(ctx))
		server.lastHealthCheck = time.Now().Add(-11 * time.Second)

		require.NoError(t, server.checkHealthWithCache(ctx))
		assert.True(t, time.Since(server.lastHealthCheck) < time.Second)
	})

	t.Run("concurrent calls are safe", func(t *testing.T) {
		server, _ := newTestServer(t, nil)
		ctx := context.Background()
		server.lastHealthCheck = time.Now().Add(-11 * time.Second)

		errCh := make(chan error, 10)
		for i := 0; i < 10; i++ {
			go func() { errCh <- server.checkHealthWithCache(ctx) }()
		}
		for i := 0; i < 10; i++ {
			assert.NoError(t, <-errCh)
		}
	})

	t.Run("no product source", func(t *testing.T) {
		logger := config.NewTestLogger(io.Discard, "debug")
		server := NewServer(estimate.NewEstimator(nil, nil, nil, 0, logger), nil, logger)
		assert.NoError(t, server.checkHealthWithCache(context.Background()))
	})
}

func TestServer_Handler(t *testing.T) {
	server, _ := newTestServer(t, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("health rejects POST", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/health", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("unhealthy product source", func(t *testing.T) {
		broken, brokenProducts := newTestServer(t, nil)
		brokenProducts.SetError(errors.New("parquet file missing"))
		brokenTS := httptest.NewServer(broken.Handler())
		defer brokenTS.Close()

		resp, err := http.Get(brokenTS.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("mcp initialize", func(t *testing.T) {
		payload := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0.0"}}}`
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "Carbon Footprint MCP Server")
	})

}
