package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrTimestampOrder is returned when a frame timestamp does not strictly
// increase. Video-mode landmark tracking requires monotonically increasing
// timestamps for continuity between frames.
var ErrTimestampOrder = errors.New("frame timestamp must be strictly increasing")

// Detector defines the interface for hand and pose detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected hand and pose
	// landmarks. timestampMs must be strictly greater than the timestamp of
	// every previous call; implementations return ErrTimestampOrder otherwise.
	// An empty Result (no hands, nil pose) is not an error.
	Detect(frame *gocv.Mat, timestampMs int64) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for landmark detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// DetectPose enables body pose detection alongside hands.
	DetectPose bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		DetectPose:      true,
	}
}
