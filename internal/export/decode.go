package export

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/model"
)

// decodedModel is the subset of an ONNX ModelProto the validator inspects.
type decodedModel struct {
	IRVersion    int64
	Producer     string
	OpsetVersion int64
	Graph        decodedGraph
}

type decodedGraph struct {
	Name         string
	Nodes        []decodedNode
	Initializers []decodedTensor
	Inputs       []decodedValueInfo
	Outputs      []decodedValueInfo
}

type decodedNode struct {
	Name    string
	OpType  string
	Inputs  []string
	Outputs []string
	Attrs   map[string]decodedAttr
}

type decodedAttr struct {
	I    int64
	Ints []int64
}

type decodedTensor struct {
	Name     string
	Dims     []int64
	DataType int64
	RawData  []byte
}

// decodedValueInfo is a graph input or output with its declared shape. A dim
// is either a fixed Value or a symbolic Param.
type decodedValueInfo struct {
	Name string
	Dims []decodedDim
}

type decodedDim struct {
	Value int64
	Param string
}

// fieldIter walks the fields of one encoded message.
type fieldIter struct {
	buf []byte
}

func (it *fieldIter) next() (protowire.Number, protowire.Type, bool, error) {
	if len(it.buf) == 0 {
		return 0, 0, false, nil
	}
	num, typ, n := protowire.ConsumeTag(it.buf)
	if n < 0 {
		return 0, 0, false, protowire.ParseError(n)
	}
	it.buf = it.buf[n:]
	return num, typ, true, nil
}

func (it *fieldIter) varint() (int64, error) {
	v, n := protowire.ConsumeVarint(it.buf)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	it.buf = it.buf[n:]
	return int64(v), nil
}

func (it *fieldIter) bytes() ([]byte, error) {
	b, n := protowire.ConsumeBytes(it.buf)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	it.buf = it.buf[n:]
	return b, nil
}

// skip discards one field value of the given wire type.
func (it *fieldIter) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, it.buf)
	if n < 0 {
		return protowire.ParseError(n)
	}
	it.buf = it.buf[n:]
	return nil
}

func decodeModel(data []byte) (*decodedModel, error) {
	m := &decodedModel{}
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		if !ok {
			break
		}
		switch num {
		case fieldModelIRVersion:
			if m.IRVersion, err = it.varint(); err != nil {
				return nil, err
			}
		case fieldModelProducer:
			b, err := it.bytes()
			if err != nil {
				return nil, err
			}
			m.Producer = string(b)
		case fieldModelGraph:
			b, err := it.bytes()
			if err != nil {
				return nil, err
			}
			if err := decodeGraph(b, &m.Graph); err != nil {
				return nil, err
			}
		case fieldModelOpsetImport:
			b, err := it.bytes()
			if err != nil {
				return nil, err
			}
			if m.OpsetVersion, err = decodeOpset(b); err != nil {
				return nil, err
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func decodeOpset(data []byte) (int64, error) {
	var version int64
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return 0, fmt.Errorf("opset: %w", err)
		}
		if !ok {
			return version, nil
		}
		if num == fieldOpsetVersion {
			if version, err = it.varint(); err != nil {
				return 0, err
			}
			continue
		}
		if err := it.skip(num, typ); err != nil {
			return 0, err
		}
	}
}

func decodeGraph(data []byte, g *decodedGraph) error {
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return fmt.Errorf("graph: %w", err)
		}
		if !ok {
			return nil
		}
		switch num {
		case fieldGraphName:
			b, err := it.bytes()
			if err != nil {
				return err
			}
			g.Name = string(b)
		case fieldGraphNode:
			b, err := it.bytes()
			if err != nil {
				return err
			}
			n, err := decodeNode(b)
			if err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case fieldGraphInitializer:
			b, err := it.bytes()
			if err != nil {
				return err
			}
			t, err := decodeTensor(b)
			if err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case fieldGraphInput, fieldGraphOutput:
			b, err := it.bytes()
			if err != nil {
				return err
			}
			vi, err := decodeValueInfo(b)
			if err != nil {
				return err
			}
			if num == fieldGraphInput {
				g.Inputs = append(g.Inputs, vi)
			} else {
				g.Outputs = append(g.Outputs, vi)
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return err
			}
		}
	}
}

func decodeNode(data []byte) (decodedNode, error) {
	n := decodedNode{Attrs: make(map[string]decodedAttr)}
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return n, fmt.Errorf("node: %w", err)
		}
		if !ok {
			return n, nil
		}
		switch num {
		case fieldNodeInput, fieldNodeOutput, fieldNodeName, fieldNodeOpType:
			b, err := it.bytes()
			if err != nil {
				return n, err
			}
			switch num {
			case fieldNodeInput:
				n.Inputs = append(n.Inputs, string(b))
			case fieldNodeOutput:
				n.Outputs = append(n.Outputs, string(b))
			case fieldNodeName:
				n.Name = string(b)
			case fieldNodeOpType:
				n.OpType = string(b)
			}
		case fieldNodeAttribute:
			b, err := it.bytes()
			if err != nil {
				return n, err
			}
			name, attr, err := decodeAttr(b)
			if err != nil {
				return n, err
			}
			n.Attrs[name] = attr
		default:
			if err := it.skip(num, typ); err != nil {
				return n, err
			}
		}
	}
}

func decodeAttr(data []byte) (string, decodedAttr, error) {
	var name string
	var a decodedAttr
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return name, a, fmt.Errorf("attribute: %w", err)
		}
		if !ok {
			return name, a, nil
		}
		switch num {
		case fieldAttrName:
			b, err := it.bytes()
			if err != nil {
				return name, a, err
			}
			name = string(b)
		case fieldAttrI:
			if a.I, err = it.varint(); err != nil {
				return name, a, err
			}
		case fieldAttrInts:
			v, err := it.varint()
			if err != nil {
				return name, a, err
			}
			a.Ints = append(a.Ints, v)
		default:
			if err := it.skip(num, typ); err != nil {
				return name, a, err
			}
		}
	}
}

func decodeTensor(data []byte) (decodedTensor, error) {
	var t decodedTensor
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return t, fmt.Errorf("tensor: %w", err)
		}
		if !ok {
			return t, nil
		}
		switch num {
		case fieldTensorDims:
			v, err := it.varint()
			if err != nil {
				return t, err
			}
			t.Dims = append(t.Dims, v)
		case fieldTensorDataType:
			if t.DataType, err = it.varint(); err != nil {
				return t, err
			}
		case fieldTensorName:
			b, err := it.bytes()
			if err != nil {
				return t, err
			}
			t.Name = string(b)
		case fieldTensorRawData:
			if t.RawData, err = it.bytes(); err != nil {
				return t, err
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return t, err
			}
		}
	}
}

func decodeValueInfo(data []byte) (decodedValueInfo, error) {
	var vi decodedValueInfo
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return vi, fmt.Errorf("value info: %w", err)
		}
		if !ok {
			return vi, nil
		}
		switch num {
		case fieldValueInfoName:
			b, err := it.bytes()
			if err != nil {
				return vi, err
			}
			vi.Name = string(b)
		case fieldValueInfoType:
			b, err := it.bytes()
			if err != nil {
				return vi, err
			}
			if vi.Dims, err = decodeTypeShape(b); err != nil {
				return vi, err
			}
		default:
			if err := it.skip(num, typ); err != nil {
				return vi, err
			}
		}
	}
}

// decodeTypeShape digs through TypeProto -> tensor_type -> shape -> dims.
func decodeTypeShape(data []byte) ([]decodedDim, error) {
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if num != fieldTypeTensorType {
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
			continue
		}
		b, err := it.bytes()
		if err != nil {
			return nil, err
		}
		return decodeTensorTypeShape(b)
	}
}

func decodeTensorTypeShape(data []byte) ([]decodedDim, error) {
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if num != fieldTensorTypeShape {
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
			continue
		}
		b, err := it.bytes()
		if err != nil {
			return nil, err
		}
		return decodeShapeDims(b)
	}
}

func decodeShapeDims(data []byte) ([]decodedDim, error) {
	var dims []decodedDim
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return dims, nil
		}
		if num != fieldShapeDim {
			if err := it.skip(num, typ); err != nil {
				return nil, err
			}
			continue
		}
		b, err := it.bytes()
		if err != nil {
			return nil, err
		}
		d, err := decodeDim(b)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
}

func decodeDim(data []byte) (decodedDim, error) {
	var d decodedDim
	it := &fieldIter{buf: data}
	for {
		num, typ, ok, err := it.next()
		if err != nil {
			return d, err
		}
		if !ok {
			return d, nil
		}
		switch num {
		case fieldDimValue:
			if d.Value, err = it.varint(); err != nil {
				return d, err
			}
		case fieldDimParam:
			b, err := it.bytes()
			if err != nil {
				return d, err
			}
			d.Param = string(b)
		default:
			if err := it.skip(num, typ); err != nil {
				return d, err
			}
		}
	}
}

// validateModel checks a decoded artifact against the model configuration:
// dialect versions, graph I/O shapes, recurrent layer attributes and
// initializer payload sizes.
func validateModel(m *decodedModel, cfg *config.ModelConfig) error {
	if m.IRVersion != irVersion {
		return fmt.Errorf("ir_version %d, want %d", m.IRVersion, irVersion)
	}
	if m.OpsetVersion != opsetVersion {
		return fmt.Errorf("opset %d, want %d", m.OpsetVersion, opsetVersion)
	}

	if len(m.Graph.Inputs) != 1 {
		return fmt.Errorf("%d graph inputs, want 1", len(m.Graph.Inputs))
	}
	in := m.Graph.Inputs[0]
	if in.Name != InputName {
		return fmt.Errorf("input named %q, want %q", in.Name, InputName)
	}
	if err := checkShape(in.Dims, cfg.SequenceLength, cfg.NumFeatures); err != nil {
		return fmt.Errorf("input shape: %w", err)
	}

	if len(m.Graph.Outputs) != 1 {
		return fmt.Errorf("%d graph outputs, want 1", len(m.Graph.Outputs))
	}
	out := m.Graph.Outputs[0]
	if out.Name != OutputName {
		return fmt.Errorf("output named %q, want %q", out.Name, OutputName)
	}
	if err := checkShape(out.Dims, cfg.NumClasses); err != nil {
		return fmt.Errorf("output shape: %w", err)
	}

	gruCount := 0
	for _, n := range m.Graph.Nodes {
		if n.OpType != "GRU" {
			continue
		}
		gruCount++
		if hs := n.Attrs["hidden_size"].I; hs != model.HiddenSize {
			return fmt.Errorf("node %s: hidden_size %d, want %d", n.Name, hs, model.HiddenSize)
		}
		if lbr := n.Attrs["linear_before_reset"].I; lbr != 1 {
			return fmt.Errorf("node %s: linear_before_reset %d, want 1", n.Name, lbr)
		}
	}
	if gruCount != 2 {
		return fmt.Errorf("%d GRU nodes, want 2", gruCount)
	}

	for _, t := range m.Graph.Initializers {
		elems := int64(1)
		for _, d := range t.Dims {
			elems *= d
		}
		var want int64
		switch t.DataType {
		case tensorFloat:
			want = elems * 4
		case tensorInt64:
			want = elems * 8
		default:
			return fmt.Errorf("initializer %q has unexpected data type %d", t.Name, t.DataType)
		}
		if int64(len(t.RawData)) != want {
			return fmt.Errorf("initializer %q has %d raw bytes, shape %v wants %d",
				t.Name, len(t.RawData), t.Dims, want)
		}
		if t.Name == "last_index" {
			idx := int64(binary.LittleEndian.Uint64(t.RawData))
			if idx != int64(cfg.SequenceLength-1) {
				return fmt.Errorf("last timestep index %d, want %d", idx, cfg.SequenceLength-1)
			}
		}
	}

	return nil
}

// checkShape verifies a declared I/O shape: a leading symbolic batch dim
// followed by the given fixed dims.
func checkShape(dims []decodedDim, fixed ...int) error {
	if len(dims) != len(fixed)+1 {
		return fmt.Errorf("%d dims, want %d", len(dims), len(fixed)+1)
	}
	if dims[0].Param != batchDimParam {
		return fmt.Errorf("leading dim is %+v, want symbolic %q", dims[0], batchDimParam)
	}
	for i, want := range fixed {
		if got := dims[i+1].Value; got != int64(want) {
			return fmt.Errorf("dim %d = %d, want %d", i+1, got, want)
		}
	}
	return nil
}
