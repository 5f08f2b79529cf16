// Package codec converts between uploaded data URLs, decoded pixel buffers
// and JPEG bytes for the video feed.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyPayload   = errors.New("empty image payload")
	ErrInvalidDataURL = errors.New("invalid data URL format")
)

const DefaultJPEGQuality = 80

// SplitDataURL returns the base64 payload of a "<prefix>,<payload>" string.
// Everything before the first comma is discarded.
func SplitDataURL(dataURL string) (string, error) {
	_, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return "", ErrInvalidDataURL
	}
	return payload, nil
}

// DecodeDataURL extracts and base64-decodes the payload of a data URL.
func DecodeDataURL(dataURL string) ([]byte, error) {
	payload, err := SplitDataURL(dataURL)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}

// DecodeImage decodes JPEG, PNG, GIF, BMP, TIFF or WebP bytes into an NRGBA
// pixel buffer.
func DecodeImage(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return imaging.Clone(img), nil
	}

	// fallback for WebP variants the pure Go decoder rejects
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return imaging.Clone(wimg), nil
	}

	return nil, fmt.Errorf("failed to decode image: %w", err)
}

func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return nil
}

func JPEGBytes(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, img, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
