package estimate

import (
	"errors"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// UserMessage maps a pipeline error to the message shown to end users
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrNotFound):
		return "product not found"
	case errors.Is(err, types.ErrExtraction):
		return "analysis failed, try again or retake photo"
	case errors.Is(err, types.ErrUpstreamUnavailable):
		return "upstream service unavailable, try again"
	case errors.Is(err, types.ErrInvalidInput):
		return "invalid input: provide a barcode or an image"
	default:
		return "internal error"
	}
}
