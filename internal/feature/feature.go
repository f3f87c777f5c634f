// Package feature turns raw per-frame landmark detections into the
// fixed-length frame feature vector that every downstream stage (recording,
// training, export, inference) depends on. The layout is the system-wide
// contract: [left hand 63 | right hand 63 | pose 33], float32, always the
// same length regardless of what was detected in a given frame.
package feature

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
)

// Feature vector layout constants.
const (
	// HandFeatures is the per-hand feature count: 21 landmarks x 3 coords.
	HandFeatures = detector.NumHandLandmarks * 3

	// PoseLandmarkCount is the number of body landmarks retained per frame.
	PoseLandmarkCount = 11

	// PoseFeatures is the pose feature count: 11 landmarks x 3 coords.
	PoseFeatures = PoseLandmarkCount * 3

	// TotalFeatures is the full frame feature vector length with pose.
	TotalFeatures = HandFeatures*2 + PoseFeatures

	// scaleEpsilon guards the scale normalization against a degenerate
	// all-zero hand.
	scaleEpsilon = 1e-6
)

// PoseIndices are the body landmarks retained for gesture recognition, in
// canonical order: nose, shoulders, elbows, wrists, hips, knees.
var PoseIndices = [PoseLandmarkCount]int{
	detector.PoseNose,
	detector.PoseLeftShoulder,
	detector.PoseRightShoulder,
	detector.PoseLeftElbow,
	detector.PoseRightElbow,
	detector.PoseLeftWrist,
	detector.PoseRightWrist,
	detector.PoseLeftHip,
	detector.PoseRightHip,
	detector.PoseLeftKnee,
	detector.PoseRightKnee,
}

// Side identifies which slot of the frame feature vector a hand fills.
type Side int

const (
	// SideLeft is the subject's left hand (first 63 features).
	SideLeft Side = iota
	// SideRight is the subject's right hand (second 63 features).
	SideRight
)

// ResolveHandedness maps a detector handedness label to the feature slot the
// hand fills. The video feed is horizontally mirrored (selfie view), so the
// detector's "Left" is the subject's right hand and vice versa. This swap is
// a fixed rule; miswiring it silently corrupts every collected sample.
func ResolveHandedness(label string) Side {
	if label == "Left" {
		return SideRight
	}
	return SideLeft
}

// NormalizeHand converts one hand's landmarks into a translation- and
// scale-invariant 63-length vector. The wrist becomes the origin and all
// coordinates are divided by the maximum absolute translated coordinate.
// A nil hand yields the all-zero vector, the "no hand visible" sentinel.
// Note: the sentinel is indistinguishable from a genuinely degenerate
// zero-scale hand; this ambiguity is accepted.
func NormalizeHand(h *detector.HandLandmarks) []float32 {
	out := make([]float32, HandFeatures)
	if h == nil {
		return out
	}

	wrist := h.Points[detector.Wrist]

	var coords [detector.NumHandLandmarks][3]float64
	maxAbs := 0.0
	for i, p := range h.Points {
		coords[i][0] = p.X - wrist.X
		coords[i][1] = p.Y - wrist.Y
		coords[i][2] = p.Z - wrist.Z
		for _, c := range coords[i] {
			if a := math.Abs(c); a > maxAbs {
				maxAbs = a
			}
		}
	}

	if maxAbs > scaleEpsilon {
		for i := range coords {
			coords[i][0] /= maxAbs
			coords[i][1] /= maxAbs
			coords[i][2] /= maxAbs
		}
	}

	for i := range coords {
		out[i*3] = float32(coords[i][0])
		out[i*3+1] = float32(coords[i][1])
		out[i*3+2] = float32(coords[i][2])
	}
	return out
}

// ExtractPoseSubset selects the fixed pose landmark subset into a 33-length
// vector. A nil pose yields the all-zero vector; an index beyond the
// available landmarks contributes a (0,0,0) triple. The vector never
// shrinks and extraction never fails.
func ExtractPoseSubset(p *detector.PoseLandmarks) []float32 {
	out := make([]float32, PoseFeatures)
	if p == nil {
		return out
	}

	for i, idx := range PoseIndices {
		if idx >= len(p.Points) {
			continue
		}
		lm := p.Points[idx]
		out[i*3] = float32(lm.X)
		out[i*3+1] = float32(lm.Y)
		out[i*3+2] = float32(lm.Z)
	}
	return out
}

// Extractor assembles frame feature vectors from per-frame detections.
type Extractor struct {
	// UsePose appends the 33 pose features after the two hand blocks.
	UsePose bool
}

// NewExtractor creates an Extractor. usePose selects the 159-feature layout;
// without pose the frame is 126 features.
func NewExtractor(usePose bool) *Extractor {
	return &Extractor{UsePose: usePose}
}

// FrameSize returns the frame feature vector length for this extractor.
func (e *Extractor) FrameSize() int {
	if e.UsePose {
		return TotalFeatures
	}
	return HandFeatures * 2
}

// Frame builds the frame feature vector for one detection result. The output
// always has exactly FrameSize() values in [left | right | pose] order. When
// two detections resolve to the same side, the later one wins. Identical
// input yields bit-identical output.
func (e *Extractor) Frame(res detector.Result) []float32 {
	var left, right *detector.HandLandmarks
	for i := range res.Hands {
		h := &res.Hands[i]
		if ResolveHandedness(h.Handedness) == SideRight {
			right = h
		} else {
			left = h
		}
	}

	out := make([]float32, 0, e.FrameSize())
	out = append(out, NormalizeHand(left)...)
	out = append(out, NormalizeHand(right)...)
	if e.UsePose {
		out = append(out, ExtractPoseSubset(res.Pose)...)
	}
	return out
}
