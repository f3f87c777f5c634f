// Package dataset persists and loads sequence samples as NumPy array files,
// one file per sample at <root>/<label>/<index>.npy.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Store manages the on-disk sequence sample layout.
type Store struct {
	root   string
	seqLen int
}

// NewStore creates a Store rooted at dir. sequenceLength is the expected
// frame count per sample; samples with any other length are rejected on
// write and skipped on load.
func NewStore(dir string, sequenceLength int) *Store {
	return &Store{root: dir, seqLen: sequenceLength}
}

// Root returns the dataset root directory.
func (s *Store) Root() string {
	return s.root
}

// SequenceLength returns the expected frames per sample.
func (s *Store) SequenceLength() int {
	return s.seqLen
}

// WriteSample persists one sequence sample under label with the next
// available sample index and returns that index. The file is written to a
// temporary name and renamed into place so readers never observe a partial
// sample.
func (s *Store) WriteSample(label string, frames [][]float32) (int, error) {
	if len(frames) != s.seqLen {
		return 0, fmt.Errorf("sample has %d frames, want %d", len(frames), s.seqLen)
	}

	cols := len(frames[0])
	flat := make([]float32, 0, s.seqLen*cols)
	for i, f := range frames {
		if len(f) != cols {
			return 0, fmt.Errorf("frame %d has %d features, want %d", i, len(f), cols)
		}
		flat = append(flat, f...)
	}

	dir := filepath.Join(s.root, label)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create label directory: %w", err)
	}

	index, err := s.NextIndex(label)
	if err != nil {
		return 0, err
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.npy", index))
	tmp, err := os.CreateTemp(dir, ".sample-*.npy.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	if err := writeNPY(tmp, s.seqLen, cols, flat); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("rename sample into place: %w", err)
	}

	return index, nil
}

// NextIndex returns the next available sample index for a label: one past
// the highest existing index, tolerating gaps. A missing label directory
// yields 0.
func (s *Store) NextIndex(label string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, label))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read label directory: %w", err)
	}

	next := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".npy") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".npy"))
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Labels returns the sorted list of label directories present in the store.
func (s *Store) Labels() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	var labels []string
	for _, e := range entries {
		if e.IsDir() {
			labels = append(labels, e.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// Counts returns the number of sample files per label.
func (s *Store) Counts() (map[string]int, error) {
	labels, err := s.Labels()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(labels))
	for _, label := range labels {
		files, err := s.sampleFiles(label)
		if err != nil {
			return nil, err
		}
		counts[label] = len(files)
	}
	return counts, nil
}

// sampleFiles lists the .npy files for a label, sorted by sample index.
func (s *Store) sampleFiles(label string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, label))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read label directory: %w", err)
	}

	type indexed struct {
		index int
		name  string
	}
	var files []indexed
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".npy") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".npy"))
		if err != nil {
			continue
		}
		files = append(files, indexed{index: n, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}
