package printer

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/jpeg"
	_ "image/png"
)

// TSPLRenderer turns uploaded images into a TSPL2 command stream for
// thermal label printers that speak that dialect. Non-image payloads
// pass through untouched so pre-rendered command files still work.
type TSPLRenderer struct {
	WidthMM   float64
	HeightMM  float64
	GapMM     float64
	DPI       int
	Density   int
	Threshold uint8 // luminance cutoff for 1-bit conversion
}

func NewTSPLRenderer(widthMM, heightMM float64) *TSPLRenderer {
	return &TSPLRenderer{
		WidthMM:   widthMM,
		HeightMM:  heightMM,
		GapMM:     3,
		DPI:       203,
		Density:   8,
		Threshold: 128,
	}
}

func (r *TSPLRenderer) Render(job *Job) ([]byte, error) {
	if !strings.HasPrefix(job.ContentType, "image/") {
		return job.Data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(job.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	widthBytes := (width + 7) / 8

	// TSPL bitmaps are 1-bit, MSB first, 1 = white.
	bitmap := make([]byte, widthBytes*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			rr, gg, bb, _ := c.RGBA()
			lum := (299*rr + 587*gg + 114*bb) / 1000 >> 8
			if uint8(lum) >= r.Threshold {
				bitmap[y*widthBytes+x/8] |= 1 << (7 - uint(x%8))
			}
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "SIZE %s mm,%s mm\r\n", formatMM(r.WidthMM), formatMM(r.HeightMM))
	fmt.Fprintf(&buf, "GAP %s mm,0 mm\r\n", formatMM(r.GapMM))
	fmt.Fprintf(&buf, "DENSITY %d\r\n", r.Density)
	buf.WriteString("CLS\r\n")
	fmt.Fprintf(&buf, "BITMAP 0,0,%d,%d,0,", widthBytes, height)
	buf.Write(bitmap)
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "PRINT %d\r\n", 1)
	return buf.Bytes(), nil
}

func formatMM(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
