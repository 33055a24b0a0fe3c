// Package extract recovers the JSON object a vision model embeds in its free-text answer.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// Extract locates the first '{' and the last '}' in text and decodes the span
// between them (inclusive) as a JSON object. Any surrounding prose is ignored.
//
// It fails with types.ErrExtraction when there is no such span or the span is not
// a single valid JSON object. No partial recovery is attempted.
func Extract(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 {
		return nil, fmt.Errorf("%w: no braces found", types.ErrExtraction)
	}
	if end < start {
		return nil, fmt.Errorf("%w: closing brace precedes opening brace", types.ErrExtraction)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExtraction, err)
	}

	return payload, nil
}
