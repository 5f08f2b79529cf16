// Package render burns landmark skeletons and text into video frames.
package render

import (
	"image"
	"image/draw"
	"math"

	"github.com/san-kum/squat-coach-cv/server/models"
	"golang.org/x/image/vector"
)

// circleSegments is the number of polygon edges used to approximate a joint
const circleSegments = 16

// DrawLandmarks draws the connections between landmarks as lines, then a
// filled circle at every landmark. Landmarks are in normalized coordinates;
// connections referencing missing indices are skipped. dst must have its
// bounds anchored at the origin.
func DrawLandmarks(dst draw.Image, landmarks []models.Landmark, connections []models.Connection, style Style) {
	if len(landmarks) == 0 {
		return
	}

	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}

	points := make([][2]float32, len(landmarks))
	for i, lm := range landmarks {
		points[i] = toPixel(lm, w, h)
	}

	limbs := vector.NewRasterizer(w, h)
	drawn := 0
	for _, conn := range connections {
		from, to := conn[0], conn[1]
		if from < 0 || to < 0 || from >= len(points) || to >= len(points) {
			continue
		}
		addLine(limbs, points[from], points[to], style.LineWidth, w, h)
		drawn++
	}
	if drawn > 0 {
		limbs.Draw(dst, b, image.NewUniform(style.LimbColor), image.Point{})
	}

	joints := vector.NewRasterizer(w, h)
	for _, p := range points {
		addCircle(joints, p, style.JointRadius, w, h)
	}
	joints.Draw(dst, b, image.NewUniform(style.JointColor), image.Point{})
}

func toPixel(lm models.Landmark, w, h int) [2]float32 {
	return [2]float32{
		float32(lm.X * float64(w)),
		float32(lm.Y * float64(h)),
	}
}

// addLine adds a thick segment as a quad. All quads share one winding so
// overlapping limbs do not cancel each other out.
func addLine(z *vector.Rasterizer, a, b [2]float32, width float32, w, h int) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return
	}

	half := width / 2
	nx, ny := -dy/length*half, dx/length*half

	z.MoveTo(clamp(a[0]-nx, w), clamp(a[1]-ny, h))
	z.LineTo(clamp(b[0]-nx, w), clamp(b[1]-ny, h))
	z.LineTo(clamp(b[0]+nx, w), clamp(b[1]+ny, h))
	z.LineTo(clamp(a[0]+nx, w), clamp(a[1]+ny, h))
	z.ClosePath()
}

func addCircle(z *vector.Rasterizer, c [2]float32, radius float32, w, h int) {
	if radius <= 0 {
		return
	}

	for i := 0; i < circleSegments; i++ {
		theta := 2 * math.Pi * float64(i) / circleSegments
		x := clamp(c[0]+radius*float32(math.Cos(theta)), w)
		y := clamp(c[1]+radius*float32(math.Sin(theta)), h)
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func clamp(v float32, limit int) float32 {
	if v < 0 || v != v {
		return 0
	}
	if v > float32(limit) {
		return float32(limit)
	}
	return v
}
