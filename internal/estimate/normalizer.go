// Package estimate turns barcode lookups and model answers into normalized emission estimates
package estimate

import (
	"math"
	"strings"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// Defaults applied to missing or malformed fields
const (
	DefaultMaterial   = "plastic"
	DefaultWeightKg   = 0.5
	DefaultOrigin     = "China"
	DefaultConfidence = 50

	// MaxWeightKg bounds a plausible product weight; heavier values are treated as missing
	MaxWeightKg = 1e6
)

// Normalize validates and defaults a loosely-typed payload into a complete estimate.
// Only numbers count as numbers: numeric strings, NaN and infinities are treated as missing,
// as is a weight outside (0, MaxWeightKg].
// Normalize is pure and idempotent: Normalize(Normalize(x).ToMap()) equals Normalize(x).
func Normalize(raw map[string]any, table *emission.Table) types.EmissionEstimate {
	est := types.EmissionEstimate{
		Product:    stringField(raw, types.FieldProduct),
		Barcode:    stringField(raw, types.FieldBarcode),
		Tip:        stringField(raw, types.FieldTip),
		Materials:  materials(raw[types.FieldMaterials]),
		WeightKg:   DefaultWeightKg,
		Origin:     DefaultOrigin,
		Confidence: DefaultConfidence,
	}

	if w, ok := types.Number(raw[types.FieldWeightKg]); ok && w > 0 && w <= MaxWeightKg {
		est.WeightKg = w
	}
	if origin := stringField(raw, types.FieldOrigin); origin != "" {
		est.Origin = origin
	}

	if co2, ok := types.Number(raw[types.FieldCO2Kg]); ok {
		est.CO2Kg = math.Max(co2, 0)
	} else {
		est.CO2Kg = table.Estimate(est.Materials, est.WeightKg, est.Origin)
	}

	if c, ok := types.Number(raw[types.FieldConfidence]); ok {
		est.Confidence = int(math.Max(0, math.Min(100, math.Round(c))))
	}

	est.Alternatives = RankAlternatives(raw[types.FieldAlternatives], est.CO2Kg)
	return est
}

func materials(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]string); ok {
			items = make([]any, len(typed))
			for i, s := range typed {
				items[i] = s
			}
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return []string{DefaultMaterial}
	}
	return out
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}
