package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrPlaybackDone is returned by a non-looping MockCamera once its script
// runs out of frames.
var ErrPlaybackDone = errors.New("frame script exhausted")

// MockCamera plays back a scripted frame sequence so recorder-paced
// collection sessions can run without hardware. A looping camera models a
// live feed; a non-looping one models a finite recording and reports
// ErrPlaybackDone when the script ends.
type MockCamera struct {
	mu     sync.Mutex
	frames []*gocv.Mat
	index  int
	loop   bool
	fps    int
	reads  int
	open   bool
}

// NewMockCamera creates a camera that plays frames in order. With loop set,
// playback restarts from the first frame when the script ends.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames: frames,
		loop:   loop,
		fps:    DefaultFPS,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// ReadFrame returns a clone of the next scripted frame. Cloning keeps the
// script intact when the pipeline mutates or closes the returned Mat.
func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil, ErrCameraNotOpen
	}
	if len(c.frames) == 0 {
		return nil, ErrPlaybackDone
	}

	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, ErrPlaybackDone
		}
		c.index = 0
	}

	frame := c.frames[c.index].Clone()
	c.index++
	c.reads++

	return &frame, nil
}

// Append extends the frame script, so a test can feed a session in stages.
func (c *MockCamera) Append(frames ...*gocv.Mat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frames...)
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// FramesRead reports how many frames the pipeline consumed, for asserting
// session pacing in tests.
func (c *MockCamera) FramesRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Reset restarts playback from the beginning without clearing read counts.
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}
