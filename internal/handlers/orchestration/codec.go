package orchestration

import (
	"encoding/json"

	grpcencoding "google.golang.org/grpc/encoding"

	"github.com/kevin07696/transaction-orchestrator/pkg/encoding"
)

// CodecName is the content subtype clients select with grpc.CallContentSubtype
const CodecName = "json"

// jsonCodec carries the domain request and result types as JSON over gRPC
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return CodecName
}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return encoding.EncodeJSON(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func init() {
	grpcencoding.RegisterCodec(jsonCodec{})
}
