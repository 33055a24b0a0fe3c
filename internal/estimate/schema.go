package estimate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

//go:embed estimate.schema.json
var estimateSchema []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("estimate.schema.json", bytes.NewReader(estimateSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("estimate.schema.json")
})

// Schema returns the JSON Schema every normalized estimate conforms to
func Schema() []byte {
	return estimateSchema
}

// Validate checks an estimate against the estimate schema and the ordering rule
// on alternatives, which JSON Schema cannot express
func Validate(est types.EmissionEstimate) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	data, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("marshal estimate: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal estimate: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("estimate does not match schema: %w", err)
	}

	for i := 1; i < len(est.Alternatives); i++ {
		if est.Alternatives[i].Savings > est.Alternatives[i-1].Savings {
			return fmt.Errorf("alternatives not sorted by savings at index %d", i)
		}
	}
	return nil
}
