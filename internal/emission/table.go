package emission

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaterial is the table key used for materials the table does not know
const DefaultMaterial = "default"

// Table maps lower-case material names to kg CO2 emitted per kg of material,
// together with the per-origin manufacturing bonus in kg CO2
type Table struct {
	Factors     map[string]float64 `yaml:"factors" json:"factors"`
	OriginBonus map[string]float64 `yaml:"origin_bonus" json:"origin_bonus"`
}

// materialAliases folds common packaging vocabulary onto table keys
var materialAliases = map[string]string{
	"aluminium":     "aluminum",
	"alu":           "aluminum",
	"pet":           "plastic",
	"hdpe":          "plastic",
	"ldpe":          "plastic",
	"pp":            "plastic",
	"ps":            "plastic",
	"polyethylene":  "plastic",
	"polypropylene": "plastic",
	"polystyrene":   "plastic",
	"polyester":     "plastic",
	"verre":         "glass",
	"cardboard":     "paper",
	"carton":        "paper",
	"tin":           "steel",
}

// DefaultTable returns the built-in emission factor table
func DefaultTable() *Table {
	return &Table{
		Factors: map[string]float64{
			"plastic":       6.0,
			"cotton":        8.0,
			"glass":         1.2,
			"aluminum":      8.1,
			"paper":         1.4,
			"steel":         2.8,
			DefaultMaterial: 5.0,
		},
		OriginBonus: map[string]float64{
			"china": 0.5,
			"india": 0.5,
		},
	}
}

// LoadTable reads a YAML (or JSON) factor file
// An empty path returns the built-in table
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading emission factors %s: %w", path, err)
	}

	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("parsing emission factors %s: %w", path, err)
	}
	return table, nil
}

// ParseTable decodes a factor document and validates it
// Missing sections fall back to the built-in values
func ParseTable(data []byte) (*Table, error) {
	var raw Table
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	builtin := DefaultTable()
	table := &Table{
		Factors:     make(map[string]float64, len(raw.Factors)+1),
		OriginBonus: make(map[string]float64, len(raw.OriginBonus)),
	}

	for material, factor := range raw.Factors {
		table.Factors[normalizeKey(material)] = factor
	}
	if len(table.Factors) == 0 {
		table.Factors = builtin.Factors
	}
	if _, ok := table.Factors[DefaultMaterial]; !ok {
		table.Factors[DefaultMaterial] = builtin.Factors[DefaultMaterial]
	}

	if raw.OriginBonus == nil {
		table.OriginBonus = builtin.OriginBonus
	}
	for origin, bonus := range raw.OriginBonus {
		table.OriginBonus[normalizeKey(origin)] = bonus
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks that every factor and bonus is finite and non-negative
func (t *Table) Validate() error {
	if _, ok := t.Factors[DefaultMaterial]; !ok {
		return fmt.Errorf("emission table has no %q factor", DefaultMaterial)
	}
	for material, factor := range t.Factors {
		if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < 0 {
			return fmt.Errorf("invalid factor %v for material %q", factor, material)
		}
	}
	for origin, bonus := range t.OriginBonus {
		if math.IsNaN(bonus) || math.IsInf(bonus, 0) || bonus < 0 {
			return fmt.Errorf("invalid bonus %v for origin %q", bonus, origin)
		}
	}
	return nil
}

// Factor returns kg CO2 per kg for a material name
// Lookup order: exact key, alias, then the worst matching word of a
// multi-word name ("pet bottle" -> plastic). Unknown names get the default factor.
func (t *Table) Factor(material string) float64 {
	factor, _ := t.lookup(material)
	return factor
}

// Recognized reports whether the material resolves to a table entry other than default
func (t *Table) Recognized(material string) bool {
	_, ok := t.lookup(material)
	return ok
}

func (t *Table) lookup(material string) (float64, bool) {
	key := normalizeKey(material)
	if f, ok := t.direct(key); ok {
		return f, true
	}

	best, found := 0.0, false
	for _, word := range strings.FieldsFunc(key, isWordSeparator) {
		if f, ok := t.direct(word); ok && (!found || f > best) {
			best, found = f, true
		}
	}
	if found {
		return best, true
	}
	return t.Factors[DefaultMaterial], false
}

func (t *Table) direct(key string) (float64, bool) {
	if key == "" || key == DefaultMaterial {
		return 0, false
	}
	if f, ok := t.Factors[key]; ok {
		return f, true
	}
	if alias, ok := materialAliases[key]; ok {
		if f, ok := t.Factors[alias]; ok {
			return f, true
		}
	}
	return 0, false
}

// WorstCase picks the material with the highest factor
// Ties keep the first listed material. An empty list resolves to the default factor.
func (t *Table) WorstCase(materials []string) (string, float64) {
	if len(materials) == 0 {
		return DefaultMaterial, t.Factors[DefaultMaterial]
	}

	worst, worstFactor := materials[0], t.Factor(materials[0])
	for _, m := range materials[1:] {
		if f := t.Factor(m); f > worstFactor {
			worst, worstFactor = m, f
		}
	}
	return worst, worstFactor
}

// Bonus returns the manufacturing bonus for an origin country (case-insensitive)
func (t *Table) Bonus(origin string) float64 {
	return t.OriginBonus[normalizeKey(origin)]
}

// Estimate applies the heuristic formula: weight * worst-case factor + origin bonus,
// rounded to two decimals. A result too large for a float64 is clamped to math.MaxFloat64.
func (t *Table) Estimate(materials []string, weightKg float64, origin string) float64 {
	_, factor := t.WorstCase(materials)
	co2 := weightKg*factor + t.Bonus(origin)
	if math.IsInf(co2, 1) || math.IsNaN(co2) {
		return math.MaxFloat64
	}
	return Round2(co2)
}

// Materials returns the known material names in alphabetical order, default excluded
func (t *Table) Materials() []string {
	names := make([]string, 0, len(t.Factors))
	for name := range t.Factors {
		if name != DefaultMaterial {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Origins returns the origins that carry a manufacturing bonus, alphabetically
func (t *Table) Origins() []string {
	names := make([]string, 0, len(t.OriginBonus))
	for name := range t.OriginBonus {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FactorsJSON renders the factor map as indented JSON for embedding in prompts
func (t *Table) FactorsJSON() string {
	data, err := json.MarshalIndent(t.Factors, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Round2 rounds to two decimal places. Values whose scaled form overflows are
// returned unchanged; they carry no fractional digits anyway.
func Round2(v float64) float64 {
	if math.IsInf(v*100, 0) {
		return v
	}
	return math.Round(v*100) / 100
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isWordSeparator(r rune) bool {
	return r == ' ' || r == '-' || r == '_' || r == '/' || r == ','
}
