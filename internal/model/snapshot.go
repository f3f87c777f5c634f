package model

import (
	"encoding/gob"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a serializable dense matrix.
type Tensor struct {
	Rows int
	Cols int
	Data []float64 // row-major
}

// Snapshot is a serializable copy of a network's configuration and weights.
// It is the handoff format between training, checkpointing and export.
type Snapshot struct {
	Config Config
	Params map[string]Tensor
}

// Snapshot deep-copies the network's weights.
func (n *Network) Snapshot() *Snapshot {
	s := &Snapshot{
		Config: n.cfg,
		Params: make(map[string]Tensor),
	}
	for _, p := range n.params() {
		r, c := p.val.Dims()
		data := make([]float64, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				data[i*c+j] = p.val.At(i, j)
			}
		}
		s.Params[p.name] = Tensor{Rows: r, Cols: c, Data: data}
	}
	return s
}

// Restore loads weights from a snapshot into the network. The snapshot must
// have been taken from a network with the same configuration.
func (n *Network) Restore(s *Snapshot) error {
	if s.Config != n.cfg {
		return fmt.Errorf("snapshot config %+v does not match network config %+v", s.Config, n.cfg)
	}

	for _, p := range n.params() {
		t, ok := s.Params[p.name]
		if !ok {
			return fmt.Errorf("snapshot missing parameter %q", p.name)
		}
		r, c := p.val.Dims()
		if t.Rows != r || t.Cols != c {
			return fmt.Errorf("parameter %q has shape (%d,%d), want (%d,%d)", p.name, t.Rows, t.Cols, r, c)
		}
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				p.val.Set(i, j, t.Data[i*c+j])
			}
		}
	}
	return nil
}

// FromSnapshot builds a network carrying the snapshot's weights.
func FromSnapshot(s *Snapshot) (*Network, error) {
	n, err := NewNetwork(s.Config, 0)
	if err != nil {
		return nil, err
	}
	if err := n.Restore(s); err != nil {
		return nil, err
	}
	return n, nil
}

// Param returns a named weight tensor from the snapshot.
func (s *Snapshot) Param(name string) (Tensor, error) {
	t, ok := s.Params[name]
	if !ok {
		return Tensor{}, fmt.Errorf("snapshot has no parameter %q", name)
	}
	return t, nil
}

// Matrix converts the tensor to a gonum matrix.
func (t Tensor) Matrix() *mat.Dense {
	return mat.NewDense(t.Rows, t.Cols, append([]float64(nil), t.Data...))
}

// SaveSnapshot writes a snapshot to path using gob encoding.
func SaveSnapshot(path string, s *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
