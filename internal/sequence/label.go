package sequence

import (
	"bufio"
	"io"
	"strings"
)

// LabelSource supplies validated label strings, independent of the input
// mechanism (keyboard, stdin, network).
type LabelSource interface {
	// NextLabel returns the next label. io.EOF signals the source is done.
	NextLabel() (string, error)
}

// NormalizeLabel validates and canonicalizes a raw label string: trimmed,
// lowercased, internal spaces replaced with underscores. Returns "" for
// labels that are empty after trimming.
func NormalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	return strings.ReplaceAll(label, " ", "_")
}

// ReaderLabelSource reads labels line by line from an io.Reader.
type ReaderLabelSource struct {
	scanner *bufio.Scanner
}

// NewReaderLabelSource creates a LabelSource over r.
func NewReaderLabelSource(r io.Reader) *ReaderLabelSource {
	return &ReaderLabelSource{scanner: bufio.NewScanner(r)}
}

// NextLabel reads lines until a non-empty normalized label is found.
func (s *ReaderLabelSource) NextLabel() (string, error) {
	for s.scanner.Scan() {
		if label := NormalizeLabel(s.scanner.Text()); label != "" {
			return label, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
