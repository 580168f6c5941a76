package pixel

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// ErrCaptureDecode indicates a malformed pixel payload from a rendering
// context. Such captures are dropped and logged, never fatal.
var ErrCaptureDecode = errors.New("capture decode failed")

const pngDataURLPrefix = "data:image/png;base64,"

// DecodeDataURL decodes a base64 PNG data URL into a buffer.
func DecodeDataURL(dataURL string) (*Buffer, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, fmt.Errorf("%w: unsupported data URL scheme", ErrCaptureDecode)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureDecode, err)
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureDecode, err)
	}

	return FromImage(img), nil
}

// DecodeRaw decodes a base64 raw RGBA payload with declared dimensions.
func DecodeRaw(encoded string, width, height int) (*Buffer, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureDecode, err)
	}

	buf := &Buffer{Width: width, Height: height, Data: data}
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureDecode, err)
	}

	return buf, nil
}

// EncodeDataURL encodes a buffer as a base64 PNG data URL for UI transport.
func (b *Buffer) EncodeDataURL() (string, error) {
	var out bytes.Buffer
	if err := png.Encode(&out, b.ToImage()); err != nil {
		return "", fmt.Errorf("failed to encode diff image: %w", err)
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}
