package estimate

import (
	"math"
	"sort"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// MaxAlternatives caps the ranked list
const MaxAlternatives = 3

// RankAlternatives validates raw alternative entries against the source footprint.
// Entries that are not objects, have a blank name or a non-numeric co2_kg are dropped.
// Savings are always recomputed as sourceCO2 - co2_kg; any model-supplied value is ignored.
// Negative or non-finite savings are dropped and the rest sorted by savings, descending and stable.
func RankAlternatives(v any, sourceCO2 float64) []types.Alternative {
	items, _ := v.([]any)

	ranked := make([]types.Alternative, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := stringField(entry, types.FieldName)
		if name == "" {
			continue
		}
		co2, ok := types.Number(entry[types.FieldCO2Kg])
		if !ok {
			continue
		}
		co2 = math.Max(co2, 0)

		savings := sourceCO2 - co2
		if savings < 0 || math.IsNaN(savings) || math.IsInf(savings, 0) {
			continue
		}
		ranked = append(ranked, types.Alternative{Name: name, CO2Kg: co2, Savings: emission.Round2(savings)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Savings > ranked[j].Savings
	})

	if len(ranked) > MaxAlternatives {
		ranked = ranked[:MaxAlternatives]
	}
	return ranked
}
