package models

// Pose landmark indices of the 33-point body model.
const (
	PoseNose          = 0
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftElbow     = 13
	PoseRightElbow    = 14
	PoseLeftWrist     = 15
	PoseRightWrist    = 16
	PoseLeftHip       = 23
	PoseRightHip      = 24
	PoseLeftKnee      = 25
	PoseRightKnee     = 26
	PoseLeftAnkle     = 27
	PoseRightAnkle    = 28

	NumPoseLandmarks = 33
)

// Hand landmark indices of the 21-point hand model.
const (
	HandWrist     = 0
	HandThumbTip  = 4
	HandIndexTip  = 8
	HandMiddleTip = 12
	HandRingTip   = 16
	HandPinkyTip  = 20

	NumHandLandmarks = 21
)

// Landmark is a detected keypoint in coordinates normalized to the image
// width and height.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// PoseLandmarks is the ordered landmark set of one detected body. Detectors
// may return fewer than NumPoseLandmarks points.
type PoseLandmarks struct {
	Landmarks []Landmark `json:"landmarks"`
}

// At returns the landmark at index i and whether the detector produced it.
func (p *PoseLandmarks) At(i int) (Landmark, bool) {
	if p == nil || i < 0 || i >= len(p.Landmarks) {
		return Landmark{}, false
	}
	return p.Landmarks[i], true
}

func (p *PoseLandmarks) Empty() bool {
	return p == nil || len(p.Landmarks) == 0
}

type HandLandmarks struct {
	Landmarks  []Landmark `json:"landmarks"`
	Handedness string     `json:"handedness"`
	Score      float64    `json:"score"`
}

// Connection is a pair of landmark indices joined by a line when rendering.
type Connection [2]int

var PoseConnections = []Connection{
	{0, 1}, {1, 2}, {2, 3}, {3, 7}, {0, 4}, {4, 5}, {5, 6}, {6, 8},
	{9, 10},
	{11, 12}, {11, 13}, {13, 15}, {15, 17}, {15, 19}, {15, 21}, {17, 19},
	{12, 14}, {14, 16}, {16, 18}, {16, 20}, {16, 22}, {18, 20},
	{11, 23}, {12, 24}, {23, 24},
	{23, 25}, {24, 26}, {25, 27}, {26, 28},
	{27, 29}, {28, 30}, {29, 31}, {30, 32}, {27, 31}, {28, 32},
}

var HandConnections = []Connection{
	{0, 1}, {1, 2}, {2, 3}, {3, 4},
	{0, 5}, {5, 6}, {6, 7}, {7, 8},
	{5, 9}, {9, 10}, {10, 11}, {11, 12},
	{9, 13}, {13, 14}, {14, 15}, {15, 16},
	{13, 17}, {0, 17}, {17, 18}, {18, 19}, {19, 20},
}
