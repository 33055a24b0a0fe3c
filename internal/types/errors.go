package types

// constError is an immutable error type for sentinel errors.
type constError string

func (e constError) Error() string { return string(e) }

// Estimation outcomes reported to callers. Compare with errors.Is.
var (
	// ErrNotFound indicates the barcode has no matching product. Not retriable.
	ErrNotFound = constError("product not found")

	// ErrUpstreamUnavailable indicates the model or product database could not be reached,
	// timed out or answered with a server error. Callers may re-issue the request.
	ErrUpstreamUnavailable = constError("upstream unavailable")

	// ErrExtraction indicates the model response held no recoverable structured payload.
	ErrExtraction = constError("no structured payload in model response")

	// ErrInvalidInput indicates an empty barcode or image.
	ErrInvalidInput = constError("invalid input")
)
