package grpc

import (
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype of every RuntimeService call
const CodecName = "json"

type jsonCodec struct{}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Marshal implements encoding.Codec
func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec: %w", err)
	}
	return data, nil
}

// Unmarshal implements encoding.Codec
func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec: %w", err)
	}
	return nil
}

// Name implements encoding.Codec
func (jsonCodec) Name() string { return CodecName }
