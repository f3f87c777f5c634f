package detector

import (
	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to script the detection results frame by frame.
type MockDetector struct {
	results       []Result
	index         int
	err           error
	lastTimestamp int64
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult sets a single result returned by every Detect call.
func (m *MockDetector) SetResult(res Result) {
	m.results = []Result{res}
	m.index = 0
}

// Queue sets a sequence of results returned by successive Detect calls.
// The last result is repeated once the sequence is exhausted.
func (m *MockDetector) Queue(results ...Result) {
	m.results = results
	m.index = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Detect returns the next scripted result or the configured error.
// Like the real detector it rejects non-increasing timestamps.
func (m *MockDetector) Detect(frame *gocv.Mat, timestampMs int64) (Result, error) {
	if m.err != nil {
		return Result{}, m.err
	}

	if timestampMs <= m.lastTimestamp {
		return Result{}, ErrTimestampOrder
	}
	m.lastTimestamp = timestampMs

	if len(m.results) == 0 {
		return Result{}, nil
	}

	res := m.results[m.index]
	if m.index < len(m.results)-1 {
		m.index++
	}
	return res, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// UprightHandLandmarks returns a preset HandLandmarks with the hand upright
// and all fingers extended, suitable as a generic test fixture.
func UprightHandLandmarks(handedness string) HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: handedness,
		Score:      0.95,
	}

	// Wrist at base
	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended to the side
	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	landmarks.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	// Index finger extended upward
	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	landmarks.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.55, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.45, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	// Middle finger extended upward (slightly longer)
	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52, Z: 0.0}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40, Z: 0.0}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28, Z: 0.0}

	// Ring finger extended upward
	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.68, Z: 0.0}
	landmarks.Points[RingPIP] = Point3D{X: 0.43, Y: 0.55, Z: 0.0}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.45, Z: 0.0}
	landmarks.Points[RingTip] = Point3D{X: 0.42, Y: 0.35, Z: 0.0}

	// Pinky finger extended upward
	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.70, Z: 0.0}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.60, Z: 0.0}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.50, Z: 0.0}
	landmarks.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.42, Z: 0.0}

	return landmarks
}

// UpperBodyPoseLandmarks returns a preset PoseLandmarks covering the full
// MediaPipe pose landmark list with the subject centered in frame.
func UpperBodyPoseLandmarks() *PoseLandmarks {
	pose := &PoseLandmarks{
		Points: make([]Point3D, NumPoseLandmarks),
		Score:  0.9,
	}

	pose.Points[PoseNose] = Point3D{X: 0.50, Y: 0.20, Z: -0.1}
	pose.Points[PoseLeftShoulder] = Point3D{X: 0.60, Y: 0.35, Z: 0.0}
	pose.Points[PoseRightShoulder] = Point3D{X: 0.40, Y: 0.35, Z: 0.0}
	pose.Points[PoseLeftElbow] = Point3D{X: 0.65, Y: 0.50, Z: 0.0}
	pose.Points[PoseRightElbow] = Point3D{X: 0.35, Y: 0.50, Z: 0.0}
	pose.Points[PoseLeftWrist] = Point3D{X: 0.68, Y: 0.62, Z: 0.0}
	pose.Points[PoseRightWrist] = Point3D{X: 0.32, Y: 0.62, Z: 0.0}
	pose.Points[PoseLeftHip] = Point3D{X: 0.57, Y: 0.70, Z: 0.0}
	pose.Points[PoseRightHip] = Point3D{X: 0.43, Y: 0.70, Z: 0.0}
	pose.Points[PoseLeftKnee] = Point3D{X: 0.57, Y: 0.88, Z: 0.0}
	pose.Points[PoseRightKnee] = Point3D{X: 0.43, Y: 0.88, Z: 0.0}

	return pose
}
