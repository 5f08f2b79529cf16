package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const DefaultFontSize = 20

// TextRenderer draws single-line labels onto frames. The underlying font
// face is not safe for concurrent use, so drawing is serialized.
type TextRenderer struct {
	mu      sync.Mutex
	face    font.Face
	padding int
}

func NewTextRenderer(size float64) (*TextRenderer, error) {
	if size <= 0 {
		size = DefaultFontSize
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	return &TextRenderer{face: face, padding: 4}, nil
}

// DrawText writes text with its top-left corner at (x, y) over a
// translucent box and returns the rectangle it covered.
func (r *TextRenderer) DrawText(dst draw.Image, text string, x, y int, fg color.Color) image.Rectangle {
	if text == "" {
		return image.Rectangle{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	metrics := r.face.Metrics()
	ascent := metrics.Ascent.Ceil()
	descent := metrics.Descent.Ceil()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: r.face,
	}
	width := d.MeasureString(text).Ceil()

	box := image.Rect(x, y, x+width+2*r.padding, y+ascent+descent+2*r.padding).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(textBackground), image.Point{}, draw.Over)

	d.Dot = fixed.P(x+r.padding, y+r.padding+ascent)
	d.DrawString(text)

	return box
}

func (r *TextRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.face.Close()
}
