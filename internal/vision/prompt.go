package vision

import (
	"fmt"
	"strings"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/emission"
)

const systemPrompt = `You are an environmental analyst. Extract product details from images and calculate carbon footprint.
Return JSON with:
- materials (list)
- weight_kg (convert to kg)
- origin (country)
- co2_kg
- confidence (0-100)
- alternatives (list of 3 eco-friendly PRODUCT alternatives with name, co2_kg, and savings)
Use defaults if data missing: materials=["plastic"], weight_kg=0.5, origin="China".`

const userPromptTemplate = `Analyze this product and calculate CO2 emissions using these emission factors (kg CO2 per kg of material):
%s
- Assume liquid products: 1L = 1kg
- For ambiguous materials, choose worst-case scenario
- Unknown materials use the "default" factor
- Manufacturing bonus: %s
- Suggest 3 eco-friendly PRODUCT alternatives (e.g., soda -> juice, plastic bottle -> glass bottle)
Return ONLY valid JSON, no commentary.`

// NewRequest builds the estimation request for one image against the given factor table
func NewRequest(table *emission.Table, image Image) Request {
	return Request{
		System: systemPrompt,
		User:   fmt.Sprintf(userPromptTemplate, table.FactorsJSON(), bonusRule(table)),
		Image:  image,
	}
}

func bonusRule(table *emission.Table) string {
	origins := table.Origins()
	if len(origins) == 0 {
		return "none"
	}

	rules := make([]string, 0, len(origins))
	for _, origin := range origins {
		rules = append(rules, fmt.Sprintf("+%gkg if from %s", table.OriginBonus[origin], origin))
	}
	return strings.Join(rules, ", ")
}
