package models

import "time"

type FrameUploadRequest struct {
	Image string `json:"image"`
}

// FrameResult is returned to the uploader for every processed frame.
type FrameResult struct {
	HandDetected bool   `json:"hand_detected"`
	Feedback     string `json:"feedback"`

	// PoseDetected is set whenever a body was found, even when the legs were
	// not visible enough for feedback.
	PoseDetected bool `json:"-"`
}

// Detections holds everything the external detectors reported for a frame.
type Detections struct {
	Pose  *PoseLandmarks  `json:"pose,omitempty"`
	Hands []HandLandmarks `json:"hands,omitempty"`
}

type FrameJob struct {
	ID         string
	ImageData  []byte
	ClientID   string
	ReceivedAt time.Time
}

type ClientMessage struct {
	Type      string `json:"type"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
