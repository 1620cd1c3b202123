package remote

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)

	in := &solveRequest{Scenario: 3, Target: []float64{1, 0, -2.5}, Mu: 0.5}
	b, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(solveRequest)
	require.NoError(t, c.Unmarshal(b, out))
	require.Equal(t, in, out)
	require.Nil(t, out.Dual)
}

func TestCodecRejectsForeignTypes(t *testing.T) {
	_, err := codec{}.Marshal(struct{}{})
	require.ErrorIs(t, err, ErrMalformed)
	require.ErrorIs(t, codec{}.Unmarshal(nil, new(int)), ErrMalformed)
}

func TestUnmarshalMalformed(t *testing.T) {
	tests := map[string][]byte{
		"truncated tag":   {0x80},
		"wrong wire type": protowire.AppendFixed64(protowire.AppendTag(nil, 1, protowire.Fixed64Type), 7),
		"ragged packed":   protowire.AppendBytes(protowire.AppendTag(nil, 2, protowire.BytesType), []byte{1, 2, 3}),
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, new(solveResponse).unmarshal(b), ErrMalformed)
		})
	}
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	b := (&infoResponse{WorkerID: "w", Dim: 4}).marshal()
	b = protowire.AppendTag(b, 42, protowire.VarintType)
	b = protowire.AppendVarint(b, 9)

	out := new(infoResponse)
	require.NoError(t, out.unmarshal(b))
	require.Equal(t, infoResponse{WorkerID: "w", Dim: 4}, *out)
}

func TestNegativeZeroSurvives(t *testing.T) {
	b := (&solveResponse{Objective: math.Copysign(0, -1)}).marshal()
	out := new(solveResponse)
	require.NoError(t, out.unmarshal(b))
	require.True(t, math.Signbit(out.Objective))
}
