package printer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestTSPLRenderPassthroughForNonImages(t *testing.T) {
	r := NewTSPLRenderer(100, 150)
	raw := []byte("SIZE 100 mm,150 mm\r\nPRINT 1\r\n")
	job := NewJob("label", "cmd.tspl", "application/octet-stream", raw, 1)

	out, err := r.Render(job)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatal("non-image payload was modified")
	}
}

func TestTSPLRenderImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.White)
		}
	}
	// One black pixel at the origin.
	img.Set(0, 0, color.Black)

	r := NewTSPLRenderer(100, 150)
	job := NewJob("label", "label.png", "image/png", encodePNG(t, img), 1)

	out, err := r.Render(job)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"SIZE 100 mm,150 mm", "GAP 3 mm,0 mm", "CLS", "BITMAP 0,0,2,8,0,", "PRINT 1"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("output missing %q", want)
		}
	}

	// 16 px wide = 2 bytes per row; the first bitmap byte has its top
	// bit cleared for the black origin pixel.
	idx := bytes.Index(out, []byte("BITMAP 0,0,2,8,0,"))
	data := out[idx+len("BITMAP 0,0,2,8,0,"):]
	if data[0] != 0x7f || data[1] != 0xff {
		t.Errorf("first row = %#02x %#02x, want 0x7f 0xff", data[0], data[1])
	}
}

func TestTSPLRenderRejectsGarbageImage(t *testing.T) {
	r := NewTSPLRenderer(62, 29)
	job := NewJob("label", "bad.png", "image/png", []byte("not a png"), 1)
	if _, err := r.Render(job); err == nil {
		t.Fatal("expected decode error")
	}
}
