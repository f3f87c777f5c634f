package dataset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/sbinet/npyio"
)

// ErrNoSamples is returned by Load when not a single valid sample exists.
var ErrNoSamples = errors.New("no valid samples found")

// Dataset holds every valid sequence sample, aligned with its label, plus
// the feature count auto-detected from the first sample with a valid 2-D
// shape.
type Dataset struct {
	Samples        [][][]float32 // samples x frames x features
	Labels         []string      // per-sample label, parallel to Samples
	SequenceLength int
	NumFeatures    int
}

// Load reads all persisted samples grouped by label. Samples whose frame
// count differs from the store's sequence length are skipped with a warning;
// loading fails only when zero valid samples remain.
func (s *Store) Load() (*Dataset, error) {
	labels, err := s.Labels()
	if err != nil {
		return nil, err
	}

	ds := &Dataset{SequenceLength: s.seqLen}

	for _, label := range labels {
		files, err := s.sampleFiles(label)
		if err != nil {
			return nil, err
		}

		for _, name := range files {
			path := filepath.Join(s.root, label, name)
			frames, rows, cols, err := readSample(path)
			if err != nil {
				log.Printf("Skipping %s/%s: %v", label, name, err)
				continue
			}

			// Feature count comes from the first 2-D sample seen, even a
			// short one; only the frame count decides inclusion.
			if ds.NumFeatures == 0 {
				ds.NumFeatures = cols
			}

			if rows != s.seqLen {
				log.Printf("Skipping %s/%s: %d frames, want %d", label, name, rows, s.seqLen)
				continue
			}

			ds.Samples = append(ds.Samples, frames)
			ds.Labels = append(ds.Labels, label)
		}
	}

	if len(ds.Samples) == 0 {
		return nil, ErrNoSamples
	}
	return ds, nil
}

// readSample reads one .npy sample file and reshapes it into frames.
func readSample(path string) (frames [][]float32, rows, cols int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read npy header: %w", err)
	}

	shape := r.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, 0, 0, fmt.Errorf("shape %v is not 2-D", shape)
	}
	rows, cols = shape[0], shape[1]

	var data []float32
	if err := r.Read(&data); err != nil {
		return nil, 0, 0, fmt.Errorf("read npy data: %w", err)
	}
	if len(data) != rows*cols {
		return nil, 0, 0, fmt.Errorf("have %d values, want %d", len(data), rows*cols)
	}

	frames = make([][]float32, rows)
	for i := 0; i < rows; i++ {
		frames[i] = data[i*cols : (i+1)*cols]
	}
	return frames, rows, cols, nil
}

// Classes returns the sorted distinct labels in the dataset. This order
// defines the integer class index mapping and must be persisted and reused
// identically at inference time.
func (d *Dataset) Classes() []string {
	seen := make(map[string]bool)
	var classes []string
	for _, label := range d.Labels {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)
	return classes
}

// ClassIndices encodes the per-sample labels as integer indices into
// classes.
func (d *Dataset) ClassIndices(classes []string) ([]int, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	out := make([]int, len(d.Labels))
	for i, label := range d.Labels {
		idx, ok := index[label]
		if !ok {
			return nil, fmt.Errorf("label %q not in class list", label)
		}
		out[i] = idx
	}
	return out, nil
}
