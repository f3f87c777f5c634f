// Package export serializes a trained classifier to the ONNX wire format so
// the model can run under standard inference runtimes. The graph is built by
// hand with protowire; after writing, the artifact is decoded back and its
// declared shapes are checked against the model configuration before the file
// is moved into place.
package export

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/model"
)

const (
	// irVersion and opsetVersion pin the ONNX dialect the graph is written in.
	irVersion    = 6
	opsetVersion = 11

	producerName = "mudra"

	// InputName and OutputName are the graph's I/O tensor names. Inference
	// runtimes address tensors by these.
	InputName  = "input"
	OutputName = "output"

	batchDimParam = "batch"
)

// buildModel assembles the full ONNX ModelProto from a weight snapshot and
// the model configuration.
func buildModel(s *model.Snapshot, cfg *config.ModelConfig) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model config: %w", err)
	}
	if s.Config.SequenceLength != cfg.SequenceLength ||
		s.Config.NumFeatures != cfg.NumFeatures ||
		s.Config.NumClasses != cfg.NumClasses {
		return nil, fmt.Errorf("snapshot shape %+v does not match model config", s.Config)
	}

	graph, err := buildGraph(s, cfg)
	if err != nil {
		return nil, err
	}

	opset := &message{}
	opset.str(fieldOpsetDomain, "")
	opset.varint(fieldOpsetVersion, opsetVersion)

	m := &message{}
	m.varint(fieldModelIRVersion, irVersion)
	m.str(fieldModelProducer, producerName)
	m.msg(fieldModelGraph, graph)
	m.msg(fieldModelOpsetImport, opset)
	return m.buf, nil
}

func buildGraph(s *model.Snapshot, cfg *config.ModelConfig) (*message, error) {
	g := &message{}
	g.str(fieldGraphName, "sign_classifier")

	// The recurrent layers expect time-major input; the declared graph input
	// is batch-major like the training data.
	g.msg(fieldGraphNode, node("transpose_input", "Transpose",
		[]string{InputName}, []string{"seq_input"},
		intsAttr("perm", 1, 0, 2)))

	for layer := 0; layer < 2; layer++ {
		prefix := fmt.Sprintf("gru%d", layer)
		in := "seq_input"
		if layer > 0 {
			in = "gru0_seq"
		}

		w, r, b, err := gruInitializers(s, prefix)
		if err != nil {
			return nil, err
		}
		g.msg(fieldGraphInitializer, w)
		g.msg(fieldGraphInitializer, r)
		g.msg(fieldGraphInitializer, b)

		g.msg(fieldGraphNode, node(prefix, "GRU",
			[]string{in, prefix + "_W", prefix + "_R", prefix + "_B"},
			[]string{prefix + "_Y"},
			intAttr("hidden_size", model.HiddenSize),
			intAttr("linear_before_reset", 1)))

		// GRU output carries a num_directions axis of size 1.
		g.msg(fieldGraphNode, node(prefix+"_squeeze", "Squeeze",
			[]string{prefix + "_Y"}, []string{prefix + "_seq"},
			intsAttr("axes", 1)))
	}

	// Classification reads only the final timestep.
	g.msg(fieldGraphInitializer, int64Scalar("last_index", int64(cfg.SequenceLength-1)))
	g.msg(fieldGraphNode, node("last_step", "Gather",
		[]string{"gru1_seq", "last_index"}, []string{"last_hidden"},
		intAttr("axis", 0)))

	fc1W, err := floatTensor(s, "fc1.w", "fc1_W", nil)
	if err != nil {
		return nil, err
	}
	fc1B, err := floatTensor(s, "fc1.b", "fc1_B", []int64{model.HeadHidden})
	if err != nil {
		return nil, err
	}
	fc2W, err := floatTensor(s, "fc2.w", "fc2_W", nil)
	if err != nil {
		return nil, err
	}
	fc2B, err := floatTensor(s, "fc2.b", "fc2_B", []int64{int64(cfg.NumClasses)})
	if err != nil {
		return nil, err
	}
	g.msg(fieldGraphInitializer, fc1W)
	g.msg(fieldGraphInitializer, fc1B)
	g.msg(fieldGraphInitializer, fc2W)
	g.msg(fieldGraphInitializer, fc2B)

	g.msg(fieldGraphNode, node("fc1", "Gemm",
		[]string{"last_hidden", "fc1_W", "fc1_B"}, []string{"fc1_out"},
		intAttr("transB", 1)))
	g.msg(fieldGraphNode, node("relu", "Relu",
		[]string{"fc1_out"}, []string{"relu_out"}))
	g.msg(fieldGraphNode, node("fc2", "Gemm",
		[]string{"relu_out", "fc2_W", "fc2_B"}, []string{OutputName},
		intAttr("transB", 1)))

	g.msg(fieldGraphInput, valueInfo(InputName,
		dimParam(batchDimParam), dimValue(int64(cfg.SequenceLength)), dimValue(int64(cfg.NumFeatures))))
	g.msg(fieldGraphOutput, valueInfo(OutputName,
		dimParam(batchDimParam), dimValue(int64(cfg.NumClasses))))

	return g, nil
}

// gruInitializers builds the W, R and B tensors for one recurrent layer. The
// trainer keeps gate blocks in (reset, update, new) row order; the ONNX GRU
// operator wants (update, reset, new), so the blocks are reordered here. B is
// the input and recurrent biases concatenated, matching
// linear_before_reset=1 semantics.
func gruInitializers(s *model.Snapshot, prefix string) (w, r, b *message, err error) {
	wih, err := s.Param(prefix + ".wih")
	if err != nil {
		return nil, nil, nil, err
	}
	whh, err := s.Param(prefix + ".whh")
	if err != nil {
		return nil, nil, nil, err
	}
	bih, err := s.Param(prefix + ".bih")
	if err != nil {
		return nil, nil, nil, err
	}
	bhh, err := s.Param(prefix + ".bhh")
	if err != nil {
		return nil, nil, nil, err
	}

	wData := reorderGateRows(wih.Data, wih.Rows, wih.Cols)
	rData := reorderGateRows(whh.Data, whh.Rows, whh.Cols)

	bData := make([]float64, 0, len(bih.Data)+len(bhh.Data))
	bData = append(bData, reorderGateRows(bih.Data, len(bih.Data), 1)...)
	bData = append(bData, reorderGateRows(bhh.Data, len(bhh.Data), 1)...)

	w = rawFloatTensor(prefix+"_W", []int64{1, int64(wih.Rows), int64(wih.Cols)}, wData)
	r = rawFloatTensor(prefix+"_R", []int64{1, int64(whh.Rows), int64(whh.Cols)}, rData)
	b = rawFloatTensor(prefix+"_B", []int64{1, int64(len(bData))}, bData)
	return w, r, b, nil
}

// reorderGateRows swaps the first two thirds of the rows: (r, z, n) block
// order becomes (z, r, n).
func reorderGateRows(data []float64, rows, cols int) []float64 {
	h := rows / 3
	out := make([]float64, 0, len(data))
	out = append(out, data[h*cols:2*h*cols]...)
	out = append(out, data[:h*cols]...)
	out = append(out, data[2*h*cols:]...)
	return out
}

// floatTensor builds an initializer from a named snapshot parameter. With
// dims nil the parameter's own (rows, cols) shape is used; a 1-D dims value
// flattens it (for biases stored as row vectors).
func floatTensor(s *model.Snapshot, param, name string, dims []int64) (*message, error) {
	t, err := s.Param(param)
	if err != nil {
		return nil, err
	}
	if dims == nil {
		dims = []int64{int64(t.Rows), int64(t.Cols)}
	}
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	if n != int64(len(t.Data)) {
		return nil, fmt.Errorf("parameter %q has %d values, shape %v wants %d", param, len(t.Data), dims, n)
	}
	return rawFloatTensor(name, dims, t.Data), nil
}

func rawFloatTensor(name string, dims []int64, data []float64) *message {
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
	}

	t := &message{}
	for _, d := range dims {
		t.varint(fieldTensorDims, d)
	}
	t.varint(fieldTensorDataType, tensorFloat)
	t.str(fieldTensorName, name)
	t.bytes(fieldTensorRawData, raw)
	return t
}

func int64Scalar(name string, v int64) *message {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(v))

	t := &message{}
	t.varint(fieldTensorDataType, tensorInt64)
	t.str(fieldTensorName, name)
	t.bytes(fieldTensorRawData, raw)
	return t
}

func node(name, opType string, inputs, outputs []string, attrs ...*message) *message {
	n := &message{}
	for _, in := range inputs {
		n.str(fieldNodeInput, in)
	}
	for _, out := range outputs {
		n.str(fieldNodeOutput, out)
	}
	n.str(fieldNodeName, name)
	n.str(fieldNodeOpType, opType)
	for _, a := range attrs {
		n.msg(fieldNodeAttribute, a)
	}
	return n
}

func intAttr(name string, v int64) *message {
	a := &message{}
	a.str(fieldAttrName, name)
	a.varint(fieldAttrI, v)
	a.varint(fieldAttrType, attrTypeInt)
	return a
}

func intsAttr(name string, vs ...int64) *message {
	a := &message{}
	a.str(fieldAttrName, name)
	for _, v := range vs {
		a.varint(fieldAttrInts, v)
	}
	a.varint(fieldAttrType, attrTypeInts)
	return a
}

func valueInfo(name string, dims ...*message) *message {
	shape := &message{}
	for _, d := range dims {
		shape.msg(fieldShapeDim, d)
	}

	tensorType := &message{}
	tensorType.varint(fieldTensorTypeElemType, tensorFloat)
	tensorType.msg(fieldTensorTypeShape, shape)

	typ := &message{}
	typ.msg(fieldTypeTensorType, tensorType)

	vi := &message{}
	vi.str(fieldValueInfoName, name)
	vi.msg(fieldValueInfoType, typ)
	return vi
}

func dimValue(v int64) *message {
	d := &message{}
	d.varint(fieldDimValue, v)
	return d
}

func dimParam(p string) *message {
	d := &message{}
	d.str(fieldDimParam, p)
	return d
}
