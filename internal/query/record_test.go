package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductFromRecord(t *testing.T) {
	t.Run("parquet style localized names", func(t *testing.T) {
		record := map[string]any{
			"code": "3017620422003",
			"product_name": []any{
				map[string]any{"lang": "fr", "text": "Pâte à tartiner"},
				map[string]any{"lang": "main", "text": "Nutella"},
			},
			"brands":         "Ferrero",
			"quantity":       "400 g",
			"packaging_tags": []any{"en:glass", "en:jar"},
			"ecoscore_data":  map[string]any{"agribalyse": map[string]any{"co2_total": float32(5.5)}},
		}

		p := productFromRecord(record)
		assert.Equal(t, "Nutella", p.ProductName)
		assert.Equal(t, "400 g", p.Quantity)
		assert.Equal(t, []string{"en:glass", "en:jar"}, p.PackagingTags)
		require.NotNil(t, p.CO2Total)
		assert.InDelta(t, 5.5, *p.CO2Total, 0.0001)
	})

	t.Run("materials tags preferred over shape tags", func(t *testing.T) {
		p := productFromRecord(map[string]any{
			"packaging_tags":           []any{"en:bottle"},
			"packaging_materials_tags": []any{"en:pet-1-polyethylene-terephthalate"},
		})
		assert.Equal(t, []string{"en:pet-1-polyethylene-terephthalate"}, p.PackagingTags)
	})

	t.Run("first localized entry without main", func(t *testing.T) {
		p := productFromRecord(map[string]any{
			"product_name": []any{map[string]any{"lang": "de", "text": "Apfelsaft"}},
		})
		assert.Equal(t, "Apfelsaft", p.ProductName)
	})

	t.Run("missing co2", func(t *testing.T) {
		p := productFromRecord(map[string]any{
			"code":          "1",
			"ecoscore_data": map[string]any{"agribalyse": map[string]any{"co2_total": nil}},
		})
		assert.Nil(t, p.CO2Total)
	})

	t.Run("json numbers", func(t *testing.T) {
		p := productFromRecord(map[string]any{
			"environmental_score_data": map[string]any{"agribalyse": map[string]any{"co2_total": json.Number("1.75")}},
		})
		require.NotNil(t, p.CO2Total)
		assert.Equal(t, 1.75, *p.CO2Total)
	})
}
