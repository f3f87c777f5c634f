package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/store"
)

func TestCollector_RecordsSample(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()

	catalog, err := store.New(filepath.Join(tmpDir, "catalog.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer catalog.Close()

	c := New(Config{
		Catalog: catalog,
		DataDir: filepath.Join(tmpDir, "data"),
		UsePose: true,
	})
	defer c.Close()

	// Deterministic inputs: one looping camera frame and a fixed detection.
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	c.SetCamera(capture.NewMockCamera([]*gocv.Mat{&frame}, true))
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	mock := detector.NewMockDetector()
	mock.SetResult(detector.Result{
		Hands: []detector.HandLandmarks{detector.UprightHandLandmarks("Right")},
		Pose:  detector.UpperBodyPoseLandmarks(),
	})
	c.SetDetector(mock)

	// Controlled clock so the recorder's rate limiter accepts every step.
	now := time.Unix(1700000000, 0)
	c.Recorder().SetClock(func() time.Time { return now })

	if err := c.SetLabel("Hello There"); err != nil {
		t.Fatalf("SetLabel() error = %v", err)
	}
	if err := c.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}

	var recorded bool
	for i := 0; i < 30; i++ {
		now = now.Add(67 * time.Millisecond)
		ref, err := c.Step()
		if err != nil {
			t.Fatalf("Step() %d error = %v", i, err)
		}
		if ref != nil {
			if i != 29 {
				t.Errorf("sample completed at step %d, want 29", i)
			}
			if ref.Label != "hello_there" || ref.Index != 0 {
				t.Errorf("ref = %+v, want {hello_there 0}", ref)
			}
			recorded = true
		}
	}
	if !recorded {
		t.Fatal("no sample recorded after 30 steps")
	}

	// On-disk dataset has the sample with the full feature width.
	counts, err := c.Counts()
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts["hello_there"] != 1 {
		t.Errorf("counts = %v, want hello_there:1", counts)
	}

	// Catalog recorded the same sample.
	sign, err := catalog.Signs().GetByName("hello_there")
	if err != nil {
		t.Fatalf("catalog sign lookup error = %v", err)
	}
	samples, err := catalog.Samples().ListBySign(sign.ID)
	if err != nil {
		t.Fatalf("catalog sample list error = %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("catalog has %d samples, want 1", len(samples))
	}
	if samples[0].Frames != 30 || samples[0].Features != feature.TotalFeatures {
		t.Errorf("catalog sample = %+v, want 30 frames x %d features", samples[0], feature.TotalFeatures)
	}
}

// Stepping before Open must fail with the camera sentinel, and Open alone
// must be enough to record a sample; nothing should open the camera behind
// the collector's back.
func TestCollector_OpenReadiesCameraForStep(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	c := New(Config{DataDir: t.TempDir()})
	defer c.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	c.SetCamera(cam)

	mock := detector.NewMockDetector()
	mock.SetResult(detector.Result{
		Hands: []detector.HandLandmarks{detector.UprightHandLandmarks("Right")},
		Pose:  detector.UpperBodyPoseLandmarks(),
	})
	c.SetDetector(mock)

	if _, err := c.Step(); !errors.Is(err, capture.ErrCameraNotOpen) {
		t.Fatalf("Step() before Open error = %v, want ErrCameraNotOpen", err)
	}

	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !cam.IsOpen() {
		t.Fatal("camera not open after collector Open()")
	}

	now := time.Unix(1700000000, 0)
	c.Recorder().SetClock(func() time.Time { return now })

	if err := c.SetLabel("wave"); err != nil {
		t.Fatalf("SetLabel() error = %v", err)
	}
	if err := c.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}

	var ref *sequence.SampleRef
	for i := 0; i < 30 && ref == nil; i++ {
		now = now.Add(67 * time.Millisecond)
		var err error
		ref, err = c.Step()
		if err != nil {
			t.Fatalf("Step() %d error = %v", i, err)
		}
	}
	if ref == nil {
		t.Fatal("no sample recorded after opening the collector")
	}
	if ref.Label != "wave" || ref.Index != 0 {
		t.Errorf("ref = %+v, want {wave 0}", ref)
	}
}

func TestCollector_StepWithoutRecordingIsIdle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	c := New(Config{DataDir: t.TempDir()})
	defer c.Close()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	c.SetCamera(capture.NewMockCamera([]*gocv.Mat{&frame}, true))
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	c.SetDetector(detector.NewMockDetector())

	ref, err := c.Step()
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if ref != nil {
		t.Errorf("idle Step() produced sample %+v", ref)
	}
}
