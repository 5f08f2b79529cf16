package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/san-kum/squat-coach-cv/server/models"
)

func blackFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestDrawLandmarksLimbAndJoint(t *testing.T) {
	img := blackFrame(100, 100)
	landmarks := []models.Landmark{
		{X: 0.25, Y: 0.5},
		{X: 0.75, Y: 0.5},
	}

	DrawLandmarks(img, landmarks, []models.Connection{{0, 1}}, PoseStyle)

	limb := img.NRGBAAt(50, 49)
	if limb.R < 200 || limb.G < 200 || limb.B < 200 {
		t.Errorf("expected white limb pixel at (50,49), got %v", limb)
	}

	joint := img.NRGBAAt(25, 50)
	if joint.R < 200 || joint.G > 50 {
		t.Errorf("expected red joint pixel at (25,50), got %v", joint)
	}

	far := img.NRGBAAt(50, 10)
	if far != (color.NRGBA{A: 255}) {
		t.Errorf("expected untouched pixel at (50,10), got %v", far)
	}
}

func TestDrawLandmarksSkipsMissingIndices(t *testing.T) {
	img := blackFrame(20, 20)
	landmarks := []models.Landmark{{X: 0.5, Y: 0.5}}

	// must not panic on connections past the end of a partial set
	DrawLandmarks(img, landmarks, models.PoseConnections, PoseStyle)

	if c := img.NRGBAAt(10, 10); c.R < 200 {
		t.Errorf("expected joint drawn at centre, got %v", c)
	}
}

func TestDrawLandmarksOutOfFrame(t *testing.T) {
	img := blackFrame(20, 20)
	landmarks := []models.Landmark{{X: -0.5, Y: 1.7}, {X: 2, Y: -1}}

	DrawLandmarks(img, landmarks, []models.Connection{{0, 1}}, HandStyle)
}

func TestDrawLandmarksEmpty(t *testing.T) {
	img := blackFrame(10, 10)
	DrawLandmarks(img, nil, models.HandConnections, HandStyle)

	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 || img.Pix[i+1] != 0 || img.Pix[i+2] != 0 {
			t.Fatal("expected frame untouched")
		}
	}
}

func TestDrawText(t *testing.T) {
	tr, err := NewTextRenderer(16)
	if err != nil {
		t.Fatalf("NewTextRenderer() failed: %v", err)
	}
	defer tr.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 200, 60))
	box := tr.DrawText(img, "Good squat form!", 10, 10, Green)
	if box.Empty() {
		t.Fatal("expected a non-empty text box")
	}
	if !box.In(img.Bounds()) {
		t.Errorf("text box %v outside frame %v", box, img.Bounds())
	}

	green := 0
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			if c := img.NRGBAAt(x, y); c.G > 128 && c.R < 100 {
				green++
			}
		}
	}
	if green == 0 {
		t.Error("expected glyph pixels inside the text box")
	}

	if r := tr.DrawText(img, "", 0, 0, Green); !r.Empty() {
		t.Errorf("expected empty rectangle for empty text, got %v", r)
	}
}
