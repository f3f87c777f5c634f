package detector

import (
	"errors"
	"testing"
)

func TestMockDetector_RejectsNonIncreasingTimestamps(t *testing.T) {
	m := NewMockDetector()

	if _, err := m.Detect(nil, 100); err != nil {
		t.Fatalf("Detect(100) error = %v", err)
	}
	if _, err := m.Detect(nil, 100); !errors.Is(err, ErrTimestampOrder) {
		t.Errorf("Detect(100) again error = %v, want ErrTimestampOrder", err)
	}
	if _, err := m.Detect(nil, 50); !errors.Is(err, ErrTimestampOrder) {
		t.Errorf("Detect(50) error = %v, want ErrTimestampOrder", err)
	}
	if _, err := m.Detect(nil, 101); err != nil {
		t.Errorf("Detect(101) error = %v", err)
	}
}

func TestMockDetector_QueueRepeatsLastResult(t *testing.T) {
	m := NewMockDetector()
	m.Queue(
		Result{Hands: []HandLandmarks{UprightHandLandmarks("Left")}},
		Result{Hands: []HandLandmarks{UprightHandLandmarks("Right")}},
	)

	first, err := m.Detect(nil, 1)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if first.Hands[0].Handedness != "Left" {
		t.Errorf("first result handedness = %q, want Left", first.Hands[0].Handedness)
	}

	for ts := int64(2); ts < 5; ts++ {
		res, err := m.Detect(nil, ts)
		if err != nil {
			t.Fatalf("Detect(%d) error = %v", ts, err)
		}
		if res.Hands[0].Handedness != "Right" {
			t.Errorf("result at ts %d handedness = %q, want Right", ts, res.Hands[0].Handedness)
		}
	}
}

func TestMockDetector_ErrorPassthrough(t *testing.T) {
	m := NewMockDetector()
	want := errors.New("camera unplugged")
	m.SetError(want)

	if _, err := m.Detect(nil, 1); !errors.Is(err, want) {
		t.Errorf("Detect() error = %v, want %v", err, want)
	}
}

func TestUpperBodyPoseLandmarks_CoversFullList(t *testing.T) {
	pose := UpperBodyPoseLandmarks()
	if len(pose.Points) != NumPoseLandmarks {
		t.Fatalf("fixture has %d points, want %d", len(pose.Points), NumPoseLandmarks)
	}
	if pose.Points[PoseNose] == (Point3D{}) {
		t.Error("nose landmark should be populated")
	}
	if pose.Points[PoseRightKnee] == (Point3D{}) {
		t.Error("right knee landmark should be populated")
	}
}
