// SPDX-License-Identifier: MIT

// Package remote moves subproblem solves over gRPC. A worker process wraps a
// subproblem.Solver in a Server; the coordinator talks to it through a Client,
// which is itself a subproblem.Solver and can be handed to ph.WithExecutors.
//
// Messages use protobuf wire format through a codec registered under
// CodecName; no generated code is involved.
package remote

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/katalvlaran/phedge/problem"
	"github.com/katalvlaran/phedge/subproblem"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrWorkerUnavailable is returned when a worker cannot be reached.
	ErrWorkerUnavailable = errors.New("remote: worker unavailable")

	// ErrIncompatibleWorker is returned when a worker serves a different problem shape.
	ErrIncompatibleWorker = errors.New("remote: incompatible worker")

	// ErrMalformed is returned for undecodable messages.
	ErrMalformed = errors.New("remote: malformed message")
)

const (
	serviceName  = "phedge.remote.Worker"
	solveMethod  = "/" + serviceName + "/Solve"
	infoMethod   = "/" + serviceName + "/Info"
	metadataName = "phedge/remote/worker"
)

// workerService is the handler type registered with grpc.
type workerService interface {
	solve(ctx context.Context, in *solveRequest) (*solveResponse, error)
	info(ctx context.Context, in *infoRequest) (*infoResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*workerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Solve", Handler: solveHandler},
		{MethodName: "Info", Handler: infoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: metadataName,
}

func solveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(solveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerService).solve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: solveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(workerService).solve(ctx, req.(*solveRequest))
	}

	return interceptor(ctx, in, info, handler)
}

func infoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(infoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerService).info(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: infoMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(workerService).info(ctx, req.(*infoRequest))
	}

	return interceptor(ctx, in, info, handler)
}

// Server exposes a local solver to remote coordinators.
type Server struct {
	pb     *problem.Problem
	solver subproblem.Solver
	id     string
	logger *slog.Logger
	solves atomic.Int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithWorkerID overrides the random worker id reported by Info.
func WithWorkerID(id string) ServerOption {
	return func(s *Server) {
		if id != "" {
			s.id = id
		}
	}
}

// WithServerLogger sets the server logger; nil is ignored.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer returns a Server solving the scenarios of pb with solver.
func NewServer(pb *problem.Problem, solver subproblem.Solver, opts ...ServerOption) *Server {
	s := &Server{
		pb:     pb,
		solver: solver,
		id:     uuid.New().String(),
		logger: slog.Default().With("component", "remote"),
	}
	for _, o := range opts {
		o(s)
	}

	return s
}

// ID returns the worker id.
func (s *Server) ID() string { return s.id }

// Register attaches the worker service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// Serve runs a gRPC server on lis until ctx ends, then stops it gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	g := grpc.NewServer()
	s.Register(g)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.GracefulStop()
		case <-done:
		}
	}()
	defer close(done)
	s.logger.Info("worker listening", "addr", lis.Addr().String(), "worker", s.id)

	return g.Serve(lis)
}

func (s *Server) solve(ctx context.Context, in *solveRequest) (*solveResponse, error) {
	start := time.Now()
	res, err := s.solver.Solve(ctx, in.request())
	if err != nil {
		s.logger.Warn("solve failed", "scenario", in.Scenario, "error", err)
		return nil, toStatus(ctx, err)
	}
	s.solves.Add(1)
	s.logger.Debug("solved", "scenario", in.Scenario, "status", res.Status.String(), "took", time.Since(start))

	return newSolveResponse(res), nil
}

func (s *Server) info(context.Context, *infoRequest) (*infoResponse, error) {
	return &infoResponse{
		WorkerID:   s.id,
		NScenarios: s.pb.NScenarios,
		NStages:    s.pb.NStages,
		Dim:        s.pb.Dim(),
		Solves:     s.solves.Load(),
	}, nil
}

// toStatus maps solver errors to gRPC codes understood by Client.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, subproblem.ErrBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case ctx.Err() != nil:
		return status.FromContextError(ctx.Err()).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
