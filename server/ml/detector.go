package ml

import (
	"context"
	"image"
	"sync"

	"github.com/san-kum/squat-coach-cv/server/models"
)

// PoseDetector finds a body skeleton in a frame. It returns nil landmarks
// and a nil error when no body is visible.
type PoseDetector interface {
	DetectPose(ctx context.Context, img image.Image) (*models.PoseLandmarks, error)
}

// HandDetector returns every hand found in a frame, possibly none.
type HandDetector interface {
	DetectHands(ctx context.Context, img image.Image) ([]models.HandLandmarks, error)
}

type Detector interface {
	PoseDetector
	HandDetector
}

// Serialized guards a detector that is not safe for concurrent use so that
// only one detection runs at a time.
type Serialized struct {
	mu    sync.Mutex
	inner Detector
}

func NewSerialized(inner Detector) *Serialized {
	return &Serialized{inner: inner}
}

func (s *Serialized) DetectPose(ctx context.Context, img image.Image) (*models.PoseLandmarks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.DetectPose(ctx, img)
}

func (s *Serialized) DetectHands(ctx context.Context, img image.Image) ([]models.HandLandmarks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.DetectHands(ctx, img)
}
