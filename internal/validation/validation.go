// Package validation performs cheap structural checks on uploaded
// payloads before they are admitted to a queue.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	_ "image/jpeg"
	_ "image/png"
)

var (
	ErrEmptyPayload       = errors.New("payload is empty")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum size")
	ErrUnsupportedType    = errors.New("unsupported content type")
	ErrMalformedPayload   = errors.New("payload does not match its content type")
	ErrUnreasonableBounds = errors.New("image dimensions out of range")
)

const (
	// MaxPayloadSize caps uploads at 25 MiB.
	MaxPayloadSize = 25 << 20

	maxImageDimension = 10000
)

var pdfMagic = []byte("%PDF-")

// Validate checks a payload against its declared content type. A nil
// error means the payload is safe to enqueue.
func Validate(contentType string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	if len(data) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	switch contentType {
	case "image/png", "image/jpeg":
		return validateImage(data)
	case "application/pdf":
		return validatePDF(data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
}

func validateImage(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 ||
		cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
		return fmt.Errorf("%w: %dx%d", ErrUnreasonableBounds, cfg.Width, cfg.Height)
	}
	return nil
}

func validatePDF(data []byte) error {
	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("%w: missing PDF header", ErrMalformedPayload)
	}
	return nil
}
