// SPDX-License-Identifier: MIT

package remote

import (
	"fmt"
	"math"

	"github.com/katalvlaran/phedge/subproblem"
	"google.golang.org/protobuf/encoding/protowire"
)

// message is implemented by every type carried over the wire.
type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// solveRequest mirrors subproblem.Request.
//
//	1 scenario  varint
//	2 target    packed double
//	3 dual      packed double (absent: no dual term)
//	4 mu        double
type solveRequest struct {
	Scenario int
	Target   []float64
	Dual     []float64
	Mu       float64
}

// solveResponse mirrors subproblem.Result.
//
//	1 scenario   varint
//	2 y          packed double
//	3 status     varint
//	4 objective  double
//	5 iterations varint
type solveResponse struct {
	Scenario   int
	Y          []float64
	Status     int
	Objective  float64
	Iterations int
}

type infoRequest struct{}

// infoResponse describes a worker.
//
//	1 worker_id   string
//	2 nscenarios  varint
//	3 nstages     varint
//	4 dim         varint
//	5 solves      varint
type infoResponse struct {
	WorkerID   string
	NScenarios int
	NStages    int
	Dim        int
	Solves     int64
}

func newSolveRequest(req subproblem.Request) *solveRequest {
	return &solveRequest{Scenario: req.Scenario, Target: req.Target, Dual: req.Dual, Mu: req.Mu}
}

func (m *solveRequest) request() subproblem.Request {
	return subproblem.Request{Scenario: m.Scenario, Target: m.Target, Dual: m.Dual, Mu: m.Mu}
}

func newSolveResponse(res subproblem.Result) *solveResponse {
	return &solveResponse{
		Scenario:   res.Scenario,
		Y:          res.Y,
		Status:     int(res.Status),
		Objective:  res.Objective,
		Iterations: res.Iterations,
	}
}

func (m *solveResponse) result() subproblem.Result {
	return subproblem.Result{
		Scenario:   m.Scenario,
		Y:          m.Y,
		Status:     subproblem.Status(m.Status),
		Objective:  m.Objective,
		Iterations: m.Iterations,
	}
}

func (m *solveRequest) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Scenario))
	b = appendDoubles(b, 2, m.Target)
	b = appendDoubles(b, 3, m.Dual)
	b = appendDouble(b, 4, m.Mu)

	return b
}

func (m *solveRequest) unmarshal(b []byte) error {
	*m = solveRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		var n int
		switch num {
		case 1:
			var x uint64
			x, n = consumeVarint(typ, v)
			m.Scenario = int(x)
		case 2:
			m.Target, n = consumeDoubles(typ, v)
		case 3:
			m.Dual, n = consumeDoubles(typ, v)
		case 4:
			m.Mu, n = consumeDouble(typ, v)
		}
		return n
	})
}

func (m *solveResponse) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Scenario))
	b = appendDoubles(b, 2, m.Y)
	b = appendVarint(b, 3, uint64(m.Status))
	b = appendDouble(b, 4, m.Objective)
	b = appendVarint(b, 5, uint64(m.Iterations))

	return b
}

func (m *solveResponse) unmarshal(b []byte) error {
	*m = solveResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		var (
			x uint64
			n int
		)
		switch num {
		case 1:
			x, n = consumeVarint(typ, v)
			m.Scenario = int(x)
		case 2:
			m.Y, n = consumeDoubles(typ, v)
		case 3:
			x, n = consumeVarint(typ, v)
			m.Status = int(x)
		case 4:
			m.Objective, n = consumeDouble(typ, v)
		case 5:
			x, n = consumeVarint(typ, v)
			m.Iterations = int(x)
		}
		return n
	})
}

func (*infoRequest) marshal() []byte { return nil }

func (m *infoRequest) unmarshal(b []byte) error {
	return walk(b, func(protowire.Number, protowire.Type, []byte) int { return 0 })
}

func (m *infoResponse) marshal() []byte {
	var b []byte
	if m.WorkerID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.WorkerID)
	}
	b = appendVarint(b, 2, uint64(m.NScenarios))
	b = appendVarint(b, 3, uint64(m.NStages))
	b = appendVarint(b, 4, uint64(m.Dim))
	b = appendVarint(b, 5, uint64(m.Solves))

	return b
}

func (m *infoResponse) unmarshal(b []byte) error {
	*m = infoResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		var (
			x uint64
			n int
		)
		switch num {
		case 1:
			if typ != protowire.BytesType {
				return -1
			}
			m.WorkerID, n = protowire.ConsumeString(v)
		case 2:
			x, n = consumeVarint(typ, v)
			m.NScenarios = int(x)
		case 3:
			x, n = consumeVarint(typ, v)
			m.NStages = int(x)
		case 4:
			x, n = consumeVarint(typ, v)
			m.Dim = int(x)
		case 5:
			x, n = consumeVarint(typ, v)
			m.Solves = int64(x)
		}
		return n
	})
}

// Zero scalars are omitted, as in proto3.
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 && !math.Signbit(v) {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)

	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// appendDoubles writes v packed; a nil or empty slice is omitted.
func appendDoubles(b []byte, num protowire.Number, v []float64) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(v)))
	for _, f := range v {
		b = protowire.AppendFixed64(b, math.Float64bits(f))
	}

	return b
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int) {
	if typ != protowire.VarintType {
		return 0, -1
	}

	return protowire.ConsumeVarint(b)
}

func consumeDouble(typ protowire.Type, b []byte) (float64, int) {
	if typ != protowire.Fixed64Type {
		return 0, -1
	}
	v, n := protowire.ConsumeFixed64(b)

	return math.Float64frombits(v), n
}

func consumeDoubles(typ protowire.Type, b []byte) ([]float64, int) {
	if typ != protowire.BytesType {
		return nil, -1
	}
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 || len(raw)%8 != 0 {
		return nil, -1
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		v, _ := protowire.ConsumeFixed64(raw[8*i:])
		out[i] = math.Float64frombits(v)
	}

	return out, n
}

// walk iterates over the fields of b. fn returns the number of bytes it
// consumed, 0 to skip an unknown field, or a negative value on a type mismatch.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		n = fn(num, typ, b)
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d", ErrMalformed, num)
		}
		b = b[n:]
	}

	return nil
}
