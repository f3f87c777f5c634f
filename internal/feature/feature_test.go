package feature

import (
	"math"
	"testing"

	"github.com/ayusman/mudra/internal/detector"
)

const epsilon = 1e-9

func TestNormalizeHand_AbsentHand(t *testing.T) {
	out := NormalizeHand(nil)

	if len(out) != HandFeatures {
		t.Fatalf("expected %d features, got %d", HandFeatures, len(out))
	}

	for i, v := range out {
		if v != 0 {
			t.Errorf("feature %d = %f, want 0", i, v)
		}
	}
}

func TestNormalizeHand_WristAtOrigin(t *testing.T) {
	hand := detector.UprightHandLandmarks("Right")
	// Move the whole hand away from the origin
	for i := range hand.Points {
		hand.Points[i].X += 0.3
		hand.Points[i].Y -= 0.1
		hand.Points[i].Z += 0.05
	}

	out := NormalizeHand(&hand)

	if len(out) != HandFeatures {
		t.Fatalf("expected %d features, got %d", HandFeatures, len(out))
	}

	// Landmark 0 is the wrist; its translated coordinates are exactly zero.
	for i := 0; i < 3; i++ {
		if out[i] != 0 {
			t.Errorf("wrist coord %d = %f, want 0", i, out[i])
		}
	}
}

func TestNormalizeHand_TranslationInvariant(t *testing.T) {
	hand := detector.UprightHandLandmarks("Right")
	shifted := hand
	for i := range shifted.Points {
		shifted.Points[i].X += 0.25
		shifted.Points[i].Y += 0.15
	}

	a := NormalizeHand(&hand)
	b := NormalizeHand(&shifted)

	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-6 {
			t.Fatalf("feature %d differs after translation: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestNormalizeHand_ScaleInvariant(t *testing.T) {
	hand := detector.UprightHandLandmarks("Right")
	wrist := hand.Points[detector.Wrist]

	scaled := hand
	for i := range scaled.Points {
		scaled.Points[i].X = wrist.X + (scaled.Points[i].X-wrist.X)*3
		scaled.Points[i].Y = wrist.Y + (scaled.Points[i].Y-wrist.Y)*3
		scaled.Points[i].Z = wrist.Z + (scaled.Points[i].Z-wrist.Z)*3
	}

	a := NormalizeHand(&hand)
	b := NormalizeHand(&scaled)

	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-6 {
			t.Fatalf("feature %d differs after scaling: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestNormalizeHand_MaxCoordinateIsOne(t *testing.T) {
	hand := detector.UprightHandLandmarks("Right")

	out := NormalizeHand(&hand)

	maxAbs := float32(0)
	for _, v := range out {
		if a := float32(math.Abs(float64(v))); a > maxAbs {
			maxAbs = a
		}
	}

	if math.Abs(float64(maxAbs)-1.0) > 1e-6 {
		t.Errorf("max abs coordinate = %f, want 1.0", maxAbs)
	}
}

func TestNormalizeHand_DegenerateHand(t *testing.T) {
	// All landmarks at the same point: translation leaves all zeros and the
	// scale step must not divide.
	hand := detector.HandLandmarks{}
	for i := range hand.Points {
		hand.Points[i] = detector.Point3D{X: 0.4, Y: 0.4, Z: 0.1}
	}

	out := NormalizeHand(&hand)

	for i, v := range out {
		if v != 0 {
			t.Errorf("feature %d = %f, want 0", i, v)
		}
	}
}

func TestExtractPoseSubset_Absent(t *testing.T) {
	out := ExtractPoseSubset(nil)

	if len(out) != PoseFeatures {
		t.Fatalf("expected %d features, got %d", PoseFeatures, len(out))
	}

	for i, v := range out {
		if v != 0 {
			t.Errorf("feature %d = %f, want 0", i, v)
		}
	}
}

func TestExtractPoseSubset_CanonicalOrder(t *testing.T) {
	pose := detector.UpperBodyPoseLandmarks()

	out := ExtractPoseSubset(pose)

	if len(out) != PoseFeatures {
		t.Fatalf("expected %d features, got %d", PoseFeatures, len(out))
	}

	for i, idx := range PoseIndices {
		want := pose.Points[idx]
		if math.Abs(float64(out[i*3])-want.X) > epsilon ||
			math.Abs(float64(out[i*3+1])-want.Y) > epsilon ||
			math.Abs(float64(out[i*3+2])-want.Z) > epsilon {
			t.Errorf("landmark %d (pose index %d): got (%f, %f, %f), want (%f, %f, %f)",
				i, idx, out[i*3], out[i*3+1], out[i*3+2], want.X, want.Y, want.Z)
		}
	}
}

func TestExtractPoseSubset_TruncatedLandmarkList(t *testing.T) {
	// Only the first 12 landmarks available; hips and knees are missing.
	pose := &detector.PoseLandmarks{
		Points: detector.UpperBodyPoseLandmarks().Points[:12],
	}

	out := ExtractPoseSubset(pose)

	if len(out) != PoseFeatures {
		t.Fatalf("expected %d features, got %d", PoseFeatures, len(out))
	}

	// Indices 12+ are out of range: right shoulder onwards all zero.
	for i := 2; i < PoseLandmarkCount; i++ {
		for j := 0; j < 3; j++ {
			if out[i*3+j] != 0 {
				t.Errorf("out-of-range landmark %d coord %d = %f, want 0", i, j, out[i*3+j])
			}
		}
	}

	// Nose is still present.
	if out[0] == 0 {
		t.Error("nose X should be non-zero")
	}
}

func TestResolveHandedness(t *testing.T) {
	tests := []struct {
		label string
		want  Side
	}{
		{"Left", SideRight}, // mirrored feed: detector "Left" is subject's right
		{"Right", SideLeft},
		{"", SideLeft},
		{"left", SideLeft}, // exact label match only, per MediaPipe output
	}

	for _, tt := range tests {
		if got := ResolveHandedness(tt.label); got != tt.want {
			t.Errorf("ResolveHandedness(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestExtractor_FrameSize(t *testing.T) {
	if got := NewExtractor(true).FrameSize(); got != TotalFeatures {
		t.Errorf("with pose: FrameSize() = %d, want %d", got, TotalFeatures)
	}
	if got := NewExtractor(false).FrameSize(); got != HandFeatures*2 {
		t.Errorf("without pose: FrameSize() = %d, want %d", got, HandFeatures*2)
	}
}

func TestExtractor_Frame_AllCombinations(t *testing.T) {
	leftHand := detector.UprightHandLandmarks("Right") // resolves to left slot
	rightHand := detector.UprightHandLandmarks("Left") // resolves to right slot
	pose := detector.UpperBodyPoseLandmarks()

	tests := []struct {
		name string
		res  detector.Result
	}{
		{"nothing detected", detector.Result{}},
		{"one hand", detector.Result{Hands: []detector.HandLandmarks{leftHand}}},
		{"two hands", detector.Result{Hands: []detector.HandLandmarks{leftHand, rightHand}}},
		{"pose only", detector.Result{Pose: pose}},
		{"hands and pose", detector.Result{Hands: []detector.HandLandmarks{leftHand, rightHand}, Pose: pose}},
	}

	e := NewExtractor(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Frame(tt.res)
			if len(out) != TotalFeatures {
				t.Errorf("frame length = %d, want %d", len(out), TotalFeatures)
			}
		})
	}
}

func TestExtractor_Frame_MirrorSwap(t *testing.T) {
	// A detector "Left" hand must land in the right-hand block.
	hand := detector.UprightHandLandmarks("Left")
	out := NewExtractor(true).Frame(detector.Result{Hands: []detector.HandLandmarks{hand}})

	leftBlock := out[:HandFeatures]
	rightBlock := out[HandFeatures : 2*HandFeatures]

	for i, v := range leftBlock {
		if v != 0 {
			t.Fatalf("left block feature %d = %f, want 0 (hand should be in right block)", i, v)
		}
	}

	nonZero := false
	for _, v := range rightBlock {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("right block is all zero, expected the mirrored hand features")
	}
}

func TestExtractor_Frame_LastWinsOnDuplicateSide(t *testing.T) {
	first := detector.UprightHandLandmarks("Left")
	second := detector.UprightHandLandmarks("Left")
	// Make the second detection distinguishable
	second.Points[detector.IndexTip].X += 0.1

	e := NewExtractor(false)
	got := e.Frame(detector.Result{Hands: []detector.HandLandmarks{first, second}})
	want := e.Frame(detector.Result{Hands: []detector.HandLandmarks{second}})

	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("feature %d = %f, want %f (later detection should win)", i, got[i], want[i])
		}
	}
}

func TestExtractor_Frame_Deterministic(t *testing.T) {
	res := detector.Result{
		Hands: []detector.HandLandmarks{
			detector.UprightHandLandmarks("Left"),
			detector.UprightHandLandmarks("Right"),
		},
		Pose: detector.UpperBodyPoseLandmarks(),
	}

	e := NewExtractor(true)
	a := e.Frame(res)
	b := e.Frame(res)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("feature %d not bit-identical: %v vs %v", i, a[i], b[i])
		}
	}
}
