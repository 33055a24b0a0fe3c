package query

import (
	"strings"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// productFromRecord maps a loosely-typed Open Food Facts record onto types.Product
// Records come from the REST API (decoded JSON) or from parquet rows, where text
// fields may be plain strings or localized lists of {lang, text} structs.
func productFromRecord(record map[string]any) *types.Product {
	p := &types.Product{
		Code:                textValue(record["code"]),
		ProductName:         textValue(record["product_name"]),
		GenericName:         textValue(record["generic_name"]),
		Brands:              textValue(record["brands"]),
		Link:                textValue(record["link"]),
		Quantity:            textValue(record["quantity"]),
		Categories:          textValue(record["categories"]),
		Origins:             textValue(record["origins"]),
		ManufacturingPlaces: textValue(record["manufacturing_places"]),
	}

	p.PackagingTags = stringList(record["packaging_materials_tags"])
	if len(p.PackagingTags) == 0 {
		p.PackagingTags = stringList(record["packaging_tags"])
	}

	for _, key := range []string{"ecoscore_data", "environmental_score_data"} {
		if co2, ok := agribalyseCO2(record[key]); ok {
			p.CO2Total = &co2
			break
		}
	}

	return p
}

// agribalyseCO2 reads agribalyse.co2_total from an ecoscore block
func agribalyseCO2(v any) (float64, bool) {
	data, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	agribalyse, ok := data["agribalyse"].(map[string]any)
	if !ok {
		return 0, false
	}
	return types.Number(agribalyse["co2_total"])
}

// textValue flattens a string or a localized text list, preferring the "main" language entry
func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		first := ""
		for _, item := range t {
			entry, ok := item.(map[string]any)
			if !ok {
				if s, ok := item.(string); ok && first == "" {
					first = strings.TrimSpace(s)
				}
				continue
			}
			text, _ := entry["text"].(string)
			if lang, _ := entry["lang"].(string); lang == "main" && text != "" {
				return strings.TrimSpace(text)
			}
			if first == "" {
				first = strings.TrimSpace(text)
			}
		}
		return first
	default:
		return ""
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
