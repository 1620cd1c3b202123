// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/subproblem"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// WorkerInfo is what a worker reports about itself.
type WorkerInfo struct {
	ID         string
	NScenarios int
	NStages    int
	Dim        int
	Solves     int64
}

// Client is a subproblem.Solver backed by a remote worker.
type Client struct {
	addr string
	conn *grpc.ClientConn
}

// Dial creates a client for the worker at addr. The connection is lazy:
// errors surface on the first call. Extra options are appended to the
// insecure-transport default.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}

	return &Client{addr: addr, conn: conn}, nil
}

// Addr returns the worker address.
func (c *Client) Addr() string { return c.addr }

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Solve implements subproblem.Solver.
func (c *Client) Solve(ctx context.Context, req subproblem.Request) (subproblem.Result, error) {
	out := new(solveResponse)
	if err := c.conn.Invoke(ctx, solveMethod, newSolveRequest(req), out); err != nil {
		return subproblem.Result{}, c.fromStatus(ctx, "solve", err)
	}

	return out.result(), nil
}

// Info asks the worker to describe itself.
func (c *Client) Info(ctx context.Context) (WorkerInfo, error) {
	out := new(infoResponse)
	if err := c.conn.Invoke(ctx, infoMethod, new(infoRequest), out); err != nil {
		return WorkerInfo{}, c.fromStatus(ctx, "info", err)
	}

	return WorkerInfo{
		ID:         out.WorkerID,
		NScenarios: out.NScenarios,
		NStages:    out.NStages,
		Dim:        out.Dim,
		Solves:     out.Solves,
	}, nil
}

func (c *Client) fromStatus(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch status.Code(err) {
	case codes.Unavailable:
		return fmt.Errorf("%s rpc to %s: %w: %w", op, c.addr, ErrWorkerUnavailable, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%s rpc to %s: %w: %w", op, c.addr, subproblem.ErrBadRequest, err)
	default:
		return fmt.Errorf("%s rpc to %s: %w", op, c.addr, err)
	}
}

// Connect dials every address and checks that each worker serves a problem
// of the same shape as pb. On any failure all clients are closed.
func Connect(ctx context.Context, addrs []string, pb *problem.Problem, opts ...grpc.DialOption) ([]*Client, error) {
	clients := make([]*Client, 0, len(addrs))
	fail := func(err error) ([]*Client, error) {
		for _, c := range clients {
			_ = c.Close()
		}
		return nil, err
	}
	for _, addr := range addrs {
		c, err := Dial(addr, opts...)
		if err != nil {
			return fail(err)
		}
		clients = append(clients, c)
		info, err := c.Info(ctx)
		if err != nil {
			if !errors.Is(err, ErrWorkerUnavailable) {
				err = fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
			}
			return fail(err)
		}
		if info.NScenarios != pb.NScenarios || info.NStages != pb.NStages || info.Dim != pb.Dim() {
			return fail(fmt.Errorf("%s serves %d scenarios, %d stages, dim %d; want %d, %d, %d: %w",
				addr, info.NScenarios, info.NStages, info.Dim, pb.NScenarios, pb.NStages, pb.Dim(), ErrIncompatibleWorker))
		}
	}

	return clients, nil
}

// Executors returns the clients as solvers for ph.WithExecutors.
func Executors(clients []*Client) []subproblem.Solver {
	out := make([]subproblem.Solver, len(clients))
	for i, c := range clients {
		out[i] = c
	}

	return out
}

var _ subproblem.Solver = (*Client)(nil)
