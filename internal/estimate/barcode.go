package estimate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/query"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// BarcodeConfidence is reported for database lookups
const BarcodeConfidence = 100

// ResolveBarcode looks a barcode up and returns a partial estimate payload.
// Fields the record does not provide are left out for the normalizer to default;
// a database co2 figure is carried as-is.
func ResolveBarcode(ctx context.Context, products query.QueryEngine, barcode string) (map[string]any, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("%w: empty barcode", types.ErrInvalidInput)
	}

	product, err := products.SearchByBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, types.ErrUpstreamUnavailable) {
			return nil, fmt.Errorf("looking up %s: %w", barcode, err)
		}
		return nil, fmt.Errorf("looking up %s: %w: %v", barcode, types.ErrUpstreamUnavailable, err)
	}
	if product == nil {
		return nil, fmt.Errorf("barcode %s: %w", barcode, types.ErrNotFound)
	}

	return productPayload(product, barcode), nil
}

func productPayload(product *types.Product, barcode string) map[string]any {
	partial := map[string]any{
		types.FieldBarcode:      barcode,
		types.FieldConfidence:   float64(BarcodeConfidence),
		types.FieldAlternatives: []any{},
	}

	if name := product.Name(); name != "" {
		partial[types.FieldProduct] = name
	}
	if product.SustainabilityTip != "" {
		partial[types.FieldTip] = product.SustainabilityTip
	}

	if materials := product.Materials(); len(materials) > 0 {
		list := make([]any, len(materials))
		for i, m := range materials {
			list[i] = m
		}
		partial[types.FieldMaterials] = list
	}
	if weight, ok := emission.ParseQuantity(product.Quantity); ok {
		partial[types.FieldWeightKg] = weight
	}
	if origin := product.Origin(); origin != "" {
		partial[types.FieldOrigin] = origin
	}
	if product.CO2Total != nil {
		partial[types.FieldCO2Kg] = *product.CO2Total
	}

	return partial
}
