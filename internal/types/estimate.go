package types

// Field names of the canonical estimate schema, shared by the prompt,
// the normalizer and the barcode resolver
const (
	FieldMaterials    = "materials"
	FieldWeightKg     = "weight_kg"
	FieldOrigin       = "origin"
	FieldCO2Kg        = "co2_kg"
	FieldConfidence   = "confidence"
	FieldAlternatives = "alternatives"
	FieldName         = "name"
	FieldSavings      = "savings"
	FieldProduct      = "product"
	FieldBarcode      = "barcode"
	FieldTip          = "sustainability_tip"
)

// EmissionEstimate is the normalized carbon footprint of one product
// Every field is populated once it leaves the normalizer
type EmissionEstimate struct {
	Product      string        `json:"product,omitempty"`
	Barcode      string        `json:"barcode,omitempty"`
	Materials    []string      `json:"materials"`
	WeightKg     float64       `json:"weight_kg"`
	Origin       string        `json:"origin"`
	CO2Kg        float64       `json:"co2_kg"`
	Confidence   int           `json:"confidence"`
	Alternatives []Alternative `json:"alternatives"`

	// Tip is a short sustainability hint, only known for some catalogue entries
	Tip string `json:"sustainability_tip,omitempty"`
}

// Alternative is a substitute product with a lower footprint than the estimated one
type Alternative struct {
	Name    string  `json:"name"`
	CO2Kg   float64 `json:"co2_kg"`
	Savings float64 `json:"savings"`
}

// ToMap renders the estimate in the loosely-typed shape the normalizer consumes
func (e EmissionEstimate) ToMap() map[string]any {
	materials := make([]any, 0, len(e.Materials))
	for _, m := range e.Materials {
		materials = append(materials, m)
	}

	alternatives := make([]any, 0, len(e.Alternatives))
	for _, alt := range e.Alternatives {
		alternatives = append(alternatives, map[string]any{
			FieldName:    alt.Name,
			FieldCO2Kg:   alt.CO2Kg,
			FieldSavings: alt.Savings,
		})
	}

	m := map[string]any{
		FieldMaterials:    materials,
		FieldWeightKg:     e.WeightKg,
		FieldOrigin:       e.Origin,
		FieldCO2Kg:        e.CO2Kg,
		FieldConfidence:   float64(e.Confidence),
		FieldAlternatives: alternatives,
	}
	if e.Product != "" {
		m[FieldProduct] = e.Product
	}
	if e.Barcode != "" {
		m[FieldBarcode] = e.Barcode
	}
	if e.Tip != "" {
		m[FieldTip] = e.Tip
	}
	return m
}
