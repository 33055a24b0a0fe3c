package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/config"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// QueryEngine looks products up by barcode in a product database
// SearchByBarcode returns (nil, nil) when the barcode is unknown.
type QueryEngine interface {
	SearchByBarcode(ctx context.Context, barcode string) (*types.Product, error)
	TestConnection(ctx context.Context) error
	Close() error
}

// NewQueryEngine builds the product source selected by cfg.ProductSource
// QUERY_ENGINE_MOCK=true forces the seeded mock catalogue
func NewQueryEngine(cfg *config.Config, logger *slog.Logger) (QueryEngine, error) {
	source := cfg.ProductSource
	if os.Getenv("QUERY_ENGINE_MOCK") == "true" {
		source = config.ProductSourceMock
	}

	switch source {
	case config.ProductSourceAPI, "":
		return NewAPIEngine(cfg.OFFBaseURL, cfg.OFFUserAgent, cfg.UpstreamTimeout(), logger), nil
	case config.ProductSourceParquet:
		return NewEngine(cfg.ParquetPath, logger)
	case config.ProductSourceMock:
		return NewMockEngine(logger), nil
	default:
		return nil, fmt.Errorf("unknown product source %q", source)
	}
}
