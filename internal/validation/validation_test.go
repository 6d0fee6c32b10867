package validation

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateEmptyPayload(t *testing.T) {
	if err := Validate("image/png", nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("got %v, want ErrEmptyPayload", err)
	}
}

func TestValidateTooLarge(t *testing.T) {
	data := make([]byte, MaxPayloadSize+1)
	if err := Validate("application/pdf", data); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
}

func TestValidateUnsupportedType(t *testing.T) {
	if err := Validate("text/html", []byte("<html>")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("got %v, want ErrUnsupportedType", err)
	}
}

func TestValidatePNG(t *testing.T) {
	if err := Validate("image/png", pngBytes(t, 400, 600)); err != nil {
		t.Fatalf("valid png rejected: %v", err)
	}
}

func TestValidatePNGMalformed(t *testing.T) {
	err := Validate("image/png", []byte("definitely not a png"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("got %v, want ErrMalformedPayload", err)
	}
}

func TestValidatePNGClaimedAsJPEG(t *testing.T) {
	// DecodeConfig sniffs the real format, so a PNG sent with a jpeg
	// content type still decodes. That is acceptable for queuing.
	if err := Validate("image/jpeg", pngBytes(t, 10, 10)); err != nil {
		t.Fatalf("png under image/jpeg rejected: %v", err)
	}
}

func TestValidatePDF(t *testing.T) {
	if err := Validate("application/pdf", []byte("%PDF-1.7\n...")); err != nil {
		t.Fatalf("valid pdf rejected: %v", err)
	}
	err := Validate("application/pdf", []byte("PK\x03\x04 zip data"))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("got %v, want ErrMalformedPayload", err)
	}
}
