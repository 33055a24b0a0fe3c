package types

import "strings"

// Product represents a product record from the Open Food Facts database
// This is the canonical Product struct shared by every product source
type Product struct {
	Code                string   `json:"code"`
	ProductName         string   `json:"product_name"`
	GenericName         string   `json:"generic_name,omitempty"`
	Brands              string   `json:"brands"`
	Link                string   `json:"link,omitempty"`
	Quantity            string   `json:"quantity,omitempty"`
	Categories          string   `json:"categories,omitempty"`
	Origins             string   `json:"origins,omitempty"`
	ManufacturingPlaces string   `json:"manufacturing_places,omitempty"`
	PackagingTags       []string `json:"packaging_tags,omitempty"`

	// CO2Total is the Agribalyse kg CO2e figure reported by the database, nil when absent
	CO2Total *float64 `json:"co2_total,omitempty"`

	// SustainabilityTip is only populated by the seeded demo catalogue
	SustainabilityTip string `json:"sustainability_tip,omitempty"`
}

// Name returns the best available product name
// Fallback order: product_name, generic_name, brands
func (p *Product) Name() string {
	if name := strings.TrimSpace(p.ProductName); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.GenericName); name != "" {
		return name
	}
	return strings.TrimSpace(p.Brands)
}

// Materials converts taxonomy packaging tags ("en:plastic", "en:pet-1-polyethylene-terephthalate")
// into plain lower-case material names, dropping duplicates and blanks
func (p *Product) Materials() []string {
	seen := make(map[string]bool, len(p.PackagingTags))
	materials := make([]string, 0, len(p.PackagingTags))

	for _, tag := range p.PackagingTags {
		name := strings.ToLower(strings.TrimSpace(tag))
		if idx := strings.Index(name, ":"); idx >= 0 {
			name = name[idx+1:]
		}
		name = strings.ReplaceAll(name, "-", " ")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		materials = append(materials, name)
	}

	return materials
}

// Origin returns the first listed origin, falling back to the manufacturing place
func (p *Product) Origin() string {
	for _, candidate := range []string{p.Origins, p.ManufacturingPlaces} {
		first, _, _ := strings.Cut(candidate, ",")
		first = strings.TrimSpace(first)
		if idx := strings.Index(first, ":"); idx >= 0 {
			first = strings.TrimSpace(first[idx+1:])
		}
		if first != "" {
			return first
		}
	}
	return ""
}
