package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

// writeNPY writes a little-endian float32 2-D array in NPY format 1.0.
// npyio's Write API only emits float64 matrices and 1-D slices, so the
// header is produced directly here; files written this way read back
// through npyio and numpy alike.
func writeNPY(w io.Writer, rows, cols int, data []float32) error {
	if len(data) != rows*cols {
		return fmt.Errorf("npy: have %d values, want %d", len(data), rows*cols)
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, cols)
	// Pad so the data section starts on a 64-byte boundary, newline last.
	prefix := len(npyMagic) + 4 // magic + version + header length field
	pad := 64 - (prefix+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	buf := make([]byte, 0, prefix+len(header))
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0) // format version 1.0
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("npy: write header: %w", err)
	}

	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("npy: write data: %w", err)
	}
	return nil
}
