package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/config"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cokeResponse = `{
  "code": "0490000425668",
  "status": 1,
  "status_verbose": "product found",
  "product": {
    "code": "0490000425668",
    "product_name": "Coca Cola 330ml",
    "brands": "Coca-Cola",
    "quantity": "330 ml",
    "origins": "en:india",
    "packaging_tags": ["en:can", "en:aluminium"],
    "ecoscore_data": {"agribalyse": {"co2_total": 0.5}}
  }
}`

func newTestAPIEngine(t *testing.T, handler http.HandlerFunc) *APIEngine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAPIEngine(server.URL+"/", "carbon-test/1.0", 5*time.Second, config.NewTestLogger(io.Discard, "debug"))
}

func TestAPIEngine_SearchByBarcode(t *testing.T) {
	var gotPath, gotFields, gotAgent string
	engine := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFields = r.URL.Query().Get("fields")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(cokeResponse))
	})

	product, err := engine.SearchByBarcode(context.Background(), "0490000425668")
	require.NoError(t, err)
	require.NotNil(t, product)

	assert.Equal(t, "/api/v2/product/0490000425668.json", gotPath)
	assert.Contains(t, gotFields, "ecoscore_data")
	assert.Equal(t, "carbon-test/1.0", gotAgent)

	assert.Equal(t, "Coca Cola 330ml", product.ProductName)
	assert.Equal(t, "330 ml", product.Quantity)
	assert.Equal(t, []string{"en:can", "en:aluminium"}, product.PackagingTags)
	assert.Equal(t, "india", product.Origin())
	require.NotNil(t, product.CO2Total)
	assert.Equal(t, 0.5, *product.CO2Total)
	assert.Contains(t, product.Link, "/product/0490000425668")
}

func TestAPIEngine_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{name: "status zero", status: http.StatusOK, payload: `{"status":0,"status_verbose":"product not found"}`},
		{name: "http 404", status: http.StatusNotFound, payload: `{"status":0}`},
		{name: "missing product", status: http.StatusOK, payload: `{"status":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			})

			product, err := engine.SearchByBarcode(context.Background(), "0000000000000")
			assert.NoError(t, err)
			assert.Nil(t, product)
		})
	}
}

func TestAPIEngine_Upstream(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		engine := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := engine.SearchByBarcode(context.Background(), "0490000425668")
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrUpstreamUnavailable))
	})

	t.Run("rate limited", func(t *testing.T) {
		engine := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := engine.SearchByBarcode(context.Background(), "0490000425668")
		assert.True(t, errors.Is(err, types.ErrUpstreamUnavailable))
	})

	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()
		engine := NewAPIEngine(server.URL, "", time.Second, config.NewTestLogger(io.Discard, "debug"))

		_, err := engine.SearchByBarcode(context.Background(), "0490000425668")
		assert.True(t, errors.Is(err, types.ErrUpstreamUnavailable))
	})

	t.Run("malformed body is not upstream", func(t *testing.T) {
		engine := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		})

		_, err := engine.SearchByBarcode(context.Background(), "0490000425668")
		require.Error(t, err)
		assert.False(t, errors.Is(err, types.ErrUpstreamUnavailable))
	})
}

func TestAPIEngine_TestConnection(t *testing.T) {
	healthy := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":1,"product":{"code":"3017620422003"}}`))
	})
	assert.NoError(t, healthy.TestConnection(context.Background()))

	broken := newTestAPIEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	assert.Error(t, broken.TestConnection(context.Background()))

	assert.NoError(t, healthy.Close())
}
