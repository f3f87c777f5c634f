// Package app provides the main application logic for the mudra sign
// collection system: it wires the camera, landmark detector, feature
// extractor and sequence recorder into one collection pipeline.
package app

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds configuration options for the collector.
type Config struct {
	// Catalog records collected samples in SQLite. Optional; collection
	// works without it.
	Catalog *store.Store
	// DataDir is the root of the on-disk .npy dataset.
	DataDir string
	// CameraID selects the capture device.
	CameraID int
	// UsePose includes upper-body pose features in each frame vector.
	UsePose bool
	// SequenceLength and TargetRate override the recorder defaults when
	// positive.
	SequenceLength int
	TargetRate     int
}

// Collector orchestrates one collection session: frames come off the camera,
// go through landmark detection and feature extraction, and the recorder
// assembles them into fixed-length samples persisted under DataDir.
type Collector struct {
	config    Config
	camera    capture.Camera
	detector  detector.Detector
	extractor *feature.Extractor
	recorder  *sequence.Recorder
	dataset   *dataset.Store
	clock     *capture.Timestamper

	mu     sync.Mutex
	stopCh chan struct{}
}

// New creates a Collector with the given configuration.
func New(config Config) *Collector {
	recCfg := sequence.DefaultConfig()
	if config.SequenceLength > 0 {
		recCfg.SequenceLength = config.SequenceLength
	}
	if config.TargetRate > 0 {
		recCfg.TargetRate = float64(config.TargetRate)
	}

	c := &Collector{
		config:    config,
		camera:    capture.NewCamera(config.CameraID),
		extractor: feature.NewExtractor(config.UsePose),
		dataset:   dataset.NewStore(config.DataDir, recCfg.SequenceLength),
		clock:     capture.NewTimestamper(),
	}
	c.recorder = sequence.NewRecorder(recCfg, c)

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		c.detector = mp
		log.Println("Using MediaPipe landmark detection")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		c.detector = detector.NewMockDetector()
	}

	return c
}

// WriteSample persists a finished sequence and records it in the catalog.
// Catalog failures are logged but do not fail the write; the .npy file is
// the source of truth.
func (c *Collector) WriteSample(label string, frames [][]float32) (int, error) {
	index, err := c.dataset.WriteSample(label, frames)
	if err != nil {
		return 0, err
	}

	if c.config.Catalog != nil {
		if err := c.catalogSample(label, index, frames); err != nil {
			log.Printf("Warning: failed to catalog sample %s/%d: %v", label, index, err)
		}
	}
	return index, nil
}

func (c *Collector) catalogSample(label string, index int, frames [][]float32) error {
	sign, err := c.config.Catalog.Signs().GetOrCreate(label)
	if err != nil {
		return err
	}
	return c.config.Catalog.Samples().Create(&store.Sample{
		SignID:   sign.ID,
		Index:    index,
		Path:     filepath.Join(label, fmt.Sprintf("%d.npy", index)),
		Frames:   len(frames),
		Features: len(frames[0]),
	})
}

// SetDetector sets the landmark detector implementation to use.
func (c *Collector) SetDetector(d detector.Detector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detector = d
}

// SetCamera sets the camera implementation to use.
func (c *Collector) SetCamera(cam capture.Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.camera = cam
}

// Open prepares the camera for capture. Callers driving the pipeline
// directly with Step must open the collector first; Run opens it itself.
func (c *Collector) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	return nil
}

// SetLabel assigns the label for subsequently recorded samples.
func (c *Collector) SetLabel(label string) error {
	return c.recorder.SetLabel(label)
}

// StartRecording begins capturing the next sample.
func (c *Collector) StartRecording() error {
	return c.recorder.Start()
}

// CancelRecording discards the sample in progress.
func (c *Collector) CancelRecording() {
	c.recorder.Cancel()
}

// Recorder exposes the underlying sequence recorder.
func (c *Collector) Recorder() *sequence.Recorder {
	return c.recorder
}

// Status reports the recorder's current state.
func (c *Collector) Status() sequence.Status {
	return c.recorder.Status()
}

// Counts returns the number of stored samples per label.
func (c *Collector) Counts() (map[string]int, error) {
	return c.dataset.Counts()
}

// Step runs one pipeline iteration: read a frame, detect landmarks, extract
// the feature vector and feed it to the recorder. It returns a reference to
// the persisted sample when one completes.
func (c *Collector) Step() (*sequence.SampleRef, error) {
	c.mu.Lock()
	cam, det := c.camera, c.detector
	c.mu.Unlock()

	frame, err := cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	res, err := det.Detect(frame, c.clock.Next())
	if err != nil {
		return nil, fmt.Errorf("detect landmarks: %w", err)
	}

	return c.recorder.Tick(c.extractor.Frame(res))
}

// Run processes frames at the recorder's target rate until Stop is called.
// Per-frame errors are logged and skipped so one bad frame does not abort a
// session.
func (c *Collector) Run() error {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	if err := c.camera.Open(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("open camera: %w", err)
	}
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	rate := c.config.TargetRate
	if rate <= 0 {
		rate = int(sequence.DefaultConfig().TargetRate)
	}
	c.mu.Unlock()

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return nil
		case <-ticker.C:
			ref, err := c.Step()
			if err != nil {
				log.Printf("Error processing frame: %v", err)
				continue
			}
			if ref != nil {
				log.Printf("Recorded sample %d for %q", ref.Index, ref.Label)
			}
		}
	}
}

// Stop ends a running collection loop.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

// Close releases the camera and detector.
func (c *Collector) Close() error {
	c.Stop()

	var firstErr error
	if err := c.camera.Close(); err != nil {
		firstErr = err
	}
	if err := c.detector.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
