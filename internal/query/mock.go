package query

import (
	"context"
	"log/slog"
	"sync"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// MockEngine serves a small seeded catalogue for demos and tests
type MockEngine struct {
	mu       sync.RWMutex
	products []types.Product
	err      error
	log      *slog.Logger
}

// Ensure MockEngine implements QueryEngine interface
var _ QueryEngine = (*MockEngine)(nil)

func co2(v float64) *float64 { return &v }

// NewMockEngine creates a mock engine seeded with the demo catalogue
func NewMockEngine(logger *slog.Logger) *MockEngine {
	return &MockEngine{
		log: logger,
		products: []types.Product{
			{
				Code:              "7376280645025",
				ProductName:       "Organic Beef",
				Categories:        "meat",
				Quantity:          "1 kg",
				PackagingTags:     []string{"en:plastic"},
				CO2Total:          co2(27.0),
				SustainabilityTip: "Consider plant-based alternatives to reduce emissions.",
			},
			{
				Code:              "0417890019578",
				ProductName:       "Plant-based Burger",
				Categories:        "vegetarian",
				Quantity:          "226 g",
				PackagingTags:     []string{"en:paper", "en:plastic"},
				CO2Total:          co2(3.5),
				SustainabilityTip: "Great choice! Plant-based foods generally have lower emissions.",
			},
			{
				Code:              "0490000425668",
				ProductName:       "Coca Cola 330ml",
				Brands:            "Coca-Cola",
				Categories:        "beverages",
				Quantity:          "330 ml",
				PackagingTags:     []string{"en:aluminium"},
				CO2Total:          co2(0.5),
				SustainabilityTip: "Consider using reusable bottles and local drinks.",
			},
			{
				Code:          "3017620422003",
				ProductName:   "Nutella",
				Brands:        "Ferrero",
				Categories:    "spreads",
				Quantity:      "400 g",
				Origins:       "Italy",
				PackagingTags: []string{"en:glass"},
				Link:          "https://world.openfoodfacts.org/product/3017620422003/nutella-ferrero",
			},
		},
	}
}

// SearchByBarcode searches for a product by barcode
func (m *MockEngine) SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	for _, product := range m.products {
		if product.Code == barcode {
			found := product
			return &found, nil
		}
	}

	return nil, nil
}

// TestConnection returns the configured error, if any
func (m *MockEngine) TestConnection(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Close closes the mock engine (no-op)
func (m *MockEngine) Close() error {
	return nil
}

// SetError sets an error to be returned by the mock
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetProducts replaces the seeded catalogue
func (m *MockEngine) SetProducts(products []types.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = products
}
