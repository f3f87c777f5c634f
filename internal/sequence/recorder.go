// Package sequence assembles per-frame feature vectors into fixed-length
// labeled sequence samples through an explicit recording state machine.
package sequence

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Recording errors.
var (
	// ErrNoLabel is returned when recording is started without a label.
	ErrNoLabel = errors.New("no label set")
	// ErrRecording is returned for operations that require the idle state.
	ErrRecording = errors.New("recording in progress")
)

// State is the recorder state.
type State int

const (
	// StateIdle means no sequence is being recorded.
	StateIdle State = iota
	// StateRecording means frames are being accumulated into a sample.
	StateRecording
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Sink persists a finished sequence sample and returns the sample index
// assigned within the label.
type Sink interface {
	WriteSample(label string, frames [][]float32) (int, error)
}

// SampleRef identifies a persisted sequence sample.
type SampleRef struct {
	Label string
	Index int
}

// Config holds recorder settings.
type Config struct {
	// SequenceLength is the number of frames per sample.
	SequenceLength int
	// TargetRate is the capture rate in frames per second. Ticks arriving
	// faster than this are dropped, not queued.
	TargetRate float64
}

// DefaultConfig returns the standard 30-frame, 15 FPS recorder settings.
func DefaultConfig() Config {
	return Config{
		SequenceLength: 30,
		TargetRate:     15,
	}
}

// Status is a read-only snapshot of the recorder for presentation.
type Status struct {
	State          State
	Label          string
	BufferLen      int
	SequenceLength int
}

// Recorder accumulates frame feature vectors into fixed-length sequence
// samples. It owns all recording state explicitly so the state machine can
// be driven and tested without a camera or UI.
type Recorder struct {
	cfg   Config
	sink  Sink
	clock func() time.Time

	mu          sync.Mutex
	state       State
	label       string
	buffer      [][]float32
	lastCapture time.Time
}

// NewRecorder creates a Recorder persisting finished samples to sink.
func NewRecorder(cfg Config, sink Sink) *Recorder {
	if cfg.SequenceLength <= 0 {
		cfg.SequenceLength = DefaultConfig().SequenceLength
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = DefaultConfig().TargetRate
	}
	return &Recorder{
		cfg:   cfg,
		sink:  sink,
		clock: time.Now,
	}
}

// SetClock replaces the time source. Used by tests to drive the rate limiter
// deterministically.
func (r *Recorder) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

// SetLabel sets the active label. Changing the label while recording is not
// allowed; cancel first.
func (r *Recorder) SetLabel(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return ErrRecording
	}

	normalized := NormalizeLabel(label)
	if normalized == "" {
		return fmt.Errorf("invalid label %q", label)
	}

	r.label = normalized
	return nil
}

// Label returns the active label.
func (r *Recorder) Label() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.label
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins recording a new sequence under the active label. The
// in-progress buffer is cleared and the start timestamp recorded, so the
// first frame is captured one sampling interval after Start.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return ErrRecording
	}
	if r.label == "" {
		return ErrNoLabel
	}

	r.buffer = r.buffer[:0]
	r.lastCapture = r.clock()
	r.state = StateRecording
	return nil
}

// Tick offers the current frame feature vector to the recorder. While idle,
// or when the tick arrives before one sampling interval has elapsed, the
// frame is dropped. When the buffer reaches the configured sequence length
// the sample is persisted and the recorder returns to idle, returning the
// reference of the new sample.
//
// A frame is never rejected for content: missing hands or pose degrade to
// zero features upstream, so recording only ever aborts via Cancel.
func (r *Recorder) Tick(frame []float32) (*SampleRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return nil, nil
	}

	now := r.clock()
	interval := time.Duration(float64(time.Second) / r.cfg.TargetRate)
	if now.Sub(r.lastCapture) < interval {
		return nil, nil
	}

	// The buffer can already be full here if a previous persist attempt
	// failed; in that case skip straight to retrying the write.
	if len(r.buffer) < r.cfg.SequenceLength {
		captured := make([]float32, len(frame))
		copy(captured, frame)
		r.buffer = append(r.buffer, captured)
		r.lastCapture = now
	}

	if len(r.buffer) < r.cfg.SequenceLength {
		return nil, nil
	}

	index, err := r.sink.WriteSample(r.label, r.buffer)
	if err != nil {
		// Keep the buffer so the caller can retry on the next tick or cancel.
		return nil, fmt.Errorf("persist sample: %w", err)
	}

	ref := &SampleRef{Label: r.label, Index: index}
	r.buffer = nil
	r.state = StateIdle
	return ref, nil
}

// Cancel discards the in-progress buffer without persisting anything and
// returns the recorder to idle.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = nil
	r.state = StateIdle
}

// Status returns a snapshot for presentation-only consumers.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Status{
		State:          r.state,
		Label:          r.label,
		BufferLen:      len(r.buffer),
		SequenceLength: r.cfg.SequenceLength,
	}
}
