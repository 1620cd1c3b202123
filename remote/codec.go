// SPDX-License-Identifier: MIT

package remote

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the worker protocol.
const CodecName = "phedge"

// codec encodes the package's messages in protobuf wire format without
// generated code.
type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("%w: cannot marshal %T", ErrMalformed, v)
	}

	return m.marshal(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("%w: cannot unmarshal into %T", ErrMalformed, v)
	}

	return m.unmarshal(data)
}

func init() {
	encoding.RegisterCodec(codec{})
}
