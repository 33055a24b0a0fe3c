// Package vision sends product photographs to a vision-capable language model
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
)

// Temperature keeps model answers factual
const Temperature = 0.1

// Model analyzes one image and returns the model's raw text answer, unmodified
type Model interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// Request is one outbound model call: instructions plus a single image
type Request struct {
	System string
	User   string
	Image  Image
}

// Image is decoded image bytes with their sniffed media type
type Image struct {
	MediaType string
	Data      []byte
}

var supportedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// NewImage accepts raw image bytes, base64 text or a data URL
// ("data:image/jpeg;base64,...") and returns the decoded image.
func NewImage(data []byte) (Image, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", types.ErrInvalidInput)
	}

	if bytes.HasPrefix(trimmed, []byte("data:")) {
		return fromDataURL(string(trimmed))
	}

	if mediaType := sniff(trimmed); supportedMediaTypes[mediaType] {
		return Image{MediaType: mediaType, Data: data}, nil
	}

	decoded, err := decodeBase64(string(trimmed))
	if err != nil {
		return Image{}, fmt.Errorf("%w: image is neither a supported format nor base64", types.ErrInvalidInput)
	}
	return newDecoded(decoded)
}

// Base64 returns the image encoded as standard base64
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data URL
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Base64()
}

func fromDataURL(s string) (Image, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return Image{}, fmt.Errorf("%w: malformed data URL", types.ErrInvalidInput)
	}

	decoded, err := decodeBase64(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: malformed data URL payload: %v", types.ErrInvalidInput, err)
	}
	return newDecoded(decoded)
}

func newDecoded(decoded []byte) (Image, error) {
	if len(decoded) == 0 {
		return Image{}, fmt.Errorf("%w: empty image", types.ErrInvalidInput)
	}
	mediaType := sniff(decoded)
	if !supportedMediaTypes[mediaType] {
		return Image{}, fmt.Errorf("%w: unsupported image type %s", types.ErrInvalidInput, mediaType)
	}
	return Image{MediaType: mediaType, Data: decoded}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func sniff(data []byte) string {
	mediaType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return mediaType
}
