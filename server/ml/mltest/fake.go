// Package mltest provides an in-process detector for tests.
package mltest

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/squat-coach-cv/server/models"
)

// Fake returns canned detections. It is safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	pose  *models.PoseLandmarks
	hands []models.HandLandmarks
	err   error
	delay time.Duration

	PoseCalls atomic.Int64
	HandCalls atomic.Int64
}

func (f *Fake) SetPose(pose *models.PoseLandmarks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pose = pose
}

func (f *Fake) SetHands(hands []models.HandLandmarks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hands = hands
}

// SetError makes every following detection fail with err.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetDelay makes pose detection take d regardless of the caller's context,
// like a backend that ignores cancellation.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *Fake) DetectPose(ctx context.Context, img image.Image) (*models.PoseLandmarks, error) {
	f.PoseCalls.Add(1)
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.pose, nil
}

func (f *Fake) DetectHands(ctx context.Context, img image.Image) ([]models.HandLandmarks, error) {
	f.HandCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.hands, nil
}

// Legs builds a pose whose hips, knees and ankles are placed at the given
// normalized coordinates on both sides of the body.
func Legs(hip, knee, ankle [2]float64) *models.PoseLandmarks {
	lms := make([]models.Landmark, models.NumPoseLandmarks)
	for i := range lms {
		lms[i] = models.Landmark{X: 0.5, Y: 0.2, Visibility: 1}
	}
	set := func(idx int, p [2]float64) {
		lms[idx] = models.Landmark{X: p[0], Y: p[1], Visibility: 1}
	}
	set(models.PoseLeftHip, hip)
	set(models.PoseLeftKnee, knee)
	set(models.PoseLeftAnkle, ankle)
	set(models.PoseRightHip, hip)
	set(models.PoseRightKnee, knee)
	set(models.PoseRightAnkle, ankle)
	return &models.PoseLandmarks{Landmarks: lms}
}

// Hand returns a single right hand with all landmarks near the centre.
func Hand() models.HandLandmarks {
	lms := make([]models.Landmark, models.NumHandLandmarks)
	for i := range lms {
		lms[i] = models.Landmark{X: 0.5 + float64(i)*0.005, Y: 0.5, Visibility: 1}
	}
	return models.HandLandmarks{Landmarks: lms, Handedness: "Right", Score: 0.9}
}
