// Package analysis turns pose landmarks into squat-form coaching feedback.
package analysis

import (
	"math"

	"github.com/san-kum/squat-coach-cv/server/models"
	"gonum.org/v1/gonum/spatial/r2"
)

const epsilon = 1e-8

const (
	FeedbackStandTall = "Stand tall. Begin your squat by bending your knees."
	FeedbackGoLower   = "Lower your hips further for a deeper squat."
	FeedbackGoodForm  = "Good squat form!"
	FeedbackTooLow    = "Too low! Keep control to avoid injury."
)

// JointAngle returns the interior angle in degrees at vertex b formed by
// the segments b->a and b->c. Zero-length segments yield 90 rather than NaN.
func JointAngle(a, b, c r2.Vec) float64 {
	ba := r2.Sub(a, b)
	bc := r2.Sub(c, b)

	cosine := r2.Dot(ba, bc) / (r2.Norm(ba)*r2.Norm(bc) + epsilon)
	cosine = math.Max(-1, math.Min(1, cosine))

	return math.Acos(cosine) * 180 / math.Pi
}

// ClassifyAngle maps an average knee angle to its coaching message. NaN
// matches no band and yields an empty string.
func ClassifyAngle(angle float64) string {
	switch {
	case angle > 160:
		return FeedbackStandTall
	case angle > 120 && angle <= 160:
		return FeedbackGoLower
	case angle > 90 && angle <= 120:
		return FeedbackGoodForm
	case angle <= 90:
		return FeedbackTooLow
	default:
		return ""
	}
}

// KneeAngles returns the left and right knee angles in pixel space. ok is
// false when any hip, knee or ankle landmark is missing.
func KneeAngles(pose *models.PoseLandmarks, width, height int) (left, right float64, ok bool) {
	indices := [6]int{
		models.PoseLeftHip, models.PoseLeftKnee, models.PoseLeftAnkle,
		models.PoseRightHip, models.PoseRightKnee, models.PoseRightAnkle,
	}

	var pts [6]r2.Vec
	for i, idx := range indices {
		lm, found := pose.At(idx)
		if !found {
			return 0, 0, false
		}
		pts[i] = toPixel(lm, width, height)
	}

	left = JointAngle(pts[0], pts[1], pts[2])
	right = JointAngle(pts[3], pts[4], pts[5])
	return left, right, true
}

// ClassifySquat averages both knee angles and returns the matching feedback,
// or an empty string when the joints needed are not all present.
func ClassifySquat(pose *models.PoseLandmarks, width, height int) string {
	left, right, ok := KneeAngles(pose, width, height)
	if !ok {
		return ""
	}

	avg := (left + right) / 2
	if math.IsNaN(avg) || math.IsInf(avg, 0) {
		return ""
	}
	return ClassifyAngle(avg)
}

func toPixel(lm models.Landmark, width, height int) r2.Vec {
	return r2.Vec{X: lm.X * float64(width), Y: lm.Y * float64(height)}
}
