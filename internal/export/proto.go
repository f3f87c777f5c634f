package export

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX protobuf field numbers, from onnx.proto. Only the subset this exporter
// emits is listed.
const (
	fieldModelIRVersion   = 1
	fieldModelProducer    = 2
	fieldModelGraph       = 7
	fieldModelOpsetImport = 8

	fieldOpsetDomain  = 1
	fieldOpsetVersion = 2

	fieldGraphNode        = 1
	fieldGraphName        = 2
	fieldGraphInitializer = 5
	fieldGraphInput       = 11
	fieldGraphOutput      = 12

	fieldNodeInput     = 1
	fieldNodeOutput    = 2
	fieldNodeName      = 3
	fieldNodeOpType    = 4
	fieldNodeAttribute = 5

	fieldAttrName = 1
	fieldAttrI    = 3
	fieldAttrInts = 8
	fieldAttrType = 20

	attrTypeInt  = 2
	attrTypeInts = 7

	fieldTensorDims     = 1
	fieldTensorDataType = 2
	fieldTensorName     = 8
	fieldTensorRawData  = 9

	tensorFloat = 1
	tensorInt64 = 7

	fieldValueInfoName = 1
	fieldValueInfoType = 2

	fieldTypeTensorType = 1

	fieldTensorTypeElemType = 1
	fieldTensorTypeShape    = 2

	fieldShapeDim = 1

	fieldDimValue = 1
	fieldDimParam = 2
)

// message accumulates protobuf wire bytes for one message.
type message struct {
	buf []byte
}

func (m *message) varint(num protowire.Number, v int64) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.VarintType)
	m.buf = protowire.AppendVarint(m.buf, uint64(v))
}

func (m *message) str(num protowire.Number, s string) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.BytesType)
	m.buf = protowire.AppendString(m.buf, s)
}

func (m *message) bytes(num protowire.Number, b []byte) {
	m.buf = protowire.AppendTag(m.buf, num, protowire.BytesType)
	m.buf = protowire.AppendBytes(m.buf, b)
}

func (m *message) msg(num protowire.Number, sub *message) {
	m.bytes(num, sub.buf)
}
