// internal/capture/validate.go
package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/Vrooli/agent-s2/api/schemas"
)

const (
	// MaxDimension is the largest width or height a screenshot may have.
	MaxDimension = 4096
	// MaxEncodedBytes caps the encoded buffer.
	MaxEncodedBytes = 50 * 1024 * 1024
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

func dataURIPrefix(format schemas.ImageFormat) string {
	return "data:image/" + string(format) + ";base64,"
}

// checkMagic accepts only PNG and JPEG payloads.
func checkMagic(b []byte) error {
	if bytes.HasPrefix(b, pngMagic) || bytes.HasPrefix(b, jpegMagic) {
		return nil
	}
	return fmt.Errorf("%w: payload is neither PNG nor JPEG", schemas.ErrInvalidInput)
}

// DecodeDataURI returns the raw image bytes of a screenshot after checking its
// prefix and magic bytes.
func DecodeDataURI(s *schemas.Screenshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil screenshot", schemas.ErrInvalidInput)
	}
	prefix := dataURIPrefix(s.Format)
	if s.Format != schemas.FormatPNG && s.Format != schemas.FormatJPEG {
		return nil, fmt.Errorf("%w: unsupported format %q", schemas.ErrInvalidInput, s.Format)
	}
	if !strings.HasPrefix(s.Data, prefix) {
		return nil, fmt.Errorf("%w: data URI must start with %q", schemas.ErrInvalidInput, prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(s.Data[len(prefix):])
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 payload: %v", schemas.ErrInvalidInput, err)
	}
	if len(raw) > MaxEncodedBytes {
		return nil, fmt.Errorf("%w: encoded screenshot is %d bytes, limit %d", schemas.ErrInvalidInput, len(raw), MaxEncodedBytes)
	}
	want := pngMagic
	if s.Format == schemas.FormatJPEG {
		want = jpegMagic
	}
	if !bytes.HasPrefix(raw, want) {
		return nil, fmt.Errorf("%w: payload magic does not match %s", schemas.ErrInvalidInput, s.Format)
	}
	return raw, nil
}

// ValidateScreenshot checks every screenshot invariant: data URI shape, magic
// bytes, encoded size and pixel dimensions.
func ValidateScreenshot(s *schemas.Screenshot) error {
	raw, err := DecodeDataURI(s)
	if err != nil {
		return err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: undecodable image: %v", schemas.ErrInvalidInput, err)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d", schemas.ErrInvalidInput, cfg.Width, cfg.Height, MaxDimension)
	}
	if s.Size.Width != cfg.Width || s.Size.Height != cfg.Height {
		return fmt.Errorf("%w: declared size %dx%d but image is %dx%d", schemas.ErrInvalidInput, s.Size.Width, s.Size.Height, cfg.Width, cfg.Height)
	}
	return nil
}

// Decode returns the image carried by a screenshot.
func Decode(s *schemas.Screenshot) (image.Image, error) {
	raw, err := DecodeDataURI(s)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding screenshot: %v", schemas.ErrInvalidInput, err)
	}
	return img, nil
}
