package render

import "image/color"

var (
	Black  = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Green  = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	Blue   = color.NRGBA{R: 0, G: 128, B: 255, A: 255}
	Red    = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	Orange = color.NRGBA{R: 255, G: 128, B: 0, A: 255}

	// textBackground is painted behind overlay text so it stays readable on
	// bright frames
	textBackground = color.NRGBA{R: 0, G: 0, B: 0, A: 160}
)

// Style controls how a landmark set is drawn.
type Style struct {
	LimbColor   color.NRGBA
	JointColor  color.NRGBA
	LineWidth   float32
	JointRadius float32
}

var (
	PoseStyle = Style{
		LimbColor:   White,
		JointColor:  Red,
		LineWidth:   2,
		JointRadius: 3,
	}

	HandStyle = Style{
		LimbColor:   Green,
		JointColor:  Orange,
		LineWidth:   2,
		JointRadius: 2.5,
	}
)
