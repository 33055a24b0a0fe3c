package vision

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/noot-app/carbon-footprint-mcp-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func TestNewImage(t *testing.T) {
	pngB64 := base64.StdEncoding.EncodeToString(pngBytes)

	tests := []struct {
		name      string
		input     []byte
		mediaType string
		data      []byte
	}{
		{name: "raw png", input: pngBytes, mediaType: "image/png", data: pngBytes},
		{name: "raw jpeg", input: jpegBytes, mediaType: "image/jpeg", data: jpegBytes},
		{name: "base64", input: []byte(pngB64), mediaType: "image/png", data: pngBytes},
		{name: "base64 with line breaks", input: []byte(pngB64[:10] + "\n" + pngB64[10:] + "\n"), mediaType: "image/png", data: pngBytes},
		{
			name:      "data url",
			input:     []byte("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)),
			mediaType: "image/jpeg",
			data:      jpegBytes,
		},
		{
			name:      "data url media type is sniffed",
			input:     []byte("data:image/jpeg;base64," + pngB64),
			mediaType: "image/png",
			data:      pngBytes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NewImage(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.mediaType, img.MediaType)
			assert.Equal(t, tt.data, img.Data)
		})
	}
}

func TestNewImage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: nil},
		{name: "whitespace", input: []byte("  \n")},
		{name: "plain text", input: []byte("this is not an image!")},
		{name: "base64 of text", input: []byte(base64.StdEncoding.EncodeToString([]byte("hello world")))},
		{name: "data url without base64", input: []byte("data:image/png,abc")},
		{name: "data url bad payload", input: []byte("data:image/png;base64,***")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImage(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidInput))
		})
	}
}

func TestImage_Encodings(t *testing.T) {
	img := Image{MediaType: "image/png", Data: pngBytes}
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), img.Base64())
	assert.Equal(t, "data:image/png;base64,"+img.Base64(), img.DataURL())
}
