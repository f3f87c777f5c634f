package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/model"
)

// Export writes the snapshot as an ONNX model at path. The artifact is
// written to a temporary file first, decoded back and checked against the
// model configuration, and only then renamed into place. A failed validation
// leaves no file at path.
func Export(path string, s *model.Snapshot, cfg *config.ModelConfig) error {
	data, err := buildModel(s, cfg)
	if err != nil {
		return fmt.Errorf("build onnx model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".onnx-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write onnx model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := Verify(tmpPath, cfg); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("exported model failed validation: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move onnx model into place: %w", err)
	}
	return nil
}

// Verify decodes an ONNX file and checks its declared shapes against the
// model configuration.
func Verify(path string, cfg *config.ModelConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read onnx model: %w", err)
	}

	m, err := decodeModel(data)
	if err != nil {
		return fmt.Errorf("decode onnx model: %w", err)
	}
	return validateModel(m, cfg)
}
