// Package grpcapi is the FluxFaaS control-plane gRPC service: the network
// binding over internal/scheduler's Register/Unregister/Invoke facade.
//
// The teacher generates its wire types from a .proto file via
// protoc-gen-go; that toolchain and the generated novapb package are not
// available here, so this package instead registers a JSON encoding/grpc
// codec (codec.go) and a hand-written grpc.ServiceDesc (service.go) that
// exercises the identical grpc.Server/grpc.ClientConn machinery the
// teacher uses, over plain JSON-tagged structs (messages.go) rather than
// protobuf-encoded ones.
package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/fluxfaas/fluxfaas/internal/domain"
	"github.com/fluxfaas/fluxfaas/internal/logging"
	"github.com/fluxfaas/fluxfaas/internal/scheduler"
)

// Server implements the FluxFaaS control-plane gRPC service.
type Server struct {
	scheduler *scheduler.Scheduler
	server    *grpc.Server
}

// NewServer creates a control-plane server bound to a Scheduler.
func NewServer(s *scheduler.Scheduler) *Server {
	return &Server{scheduler: s}
}

// Start listens on addr and serves the control-plane service until Stop is
// called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.server = grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(tracingInterceptor, loggingInterceptor, errorHandlingInterceptor),
	)
	s.server.RegisterService(&serviceDesc, s)

	logging.Op().Info("grpc control plane started", "addr", addr)

	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("grpc server stopped", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}

// Register adds a function to the scheduler's registry.
func (s *Server) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	spec, err := domain.NewFunctionSpec(req.Name, req.Source, domain.ScriptKind(req.ScriptKind), time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}

	var cfg *domain.PoolConfig
	if req.PoolConfig != nil {
		resolved := poolConfigFromMsg(req.PoolConfig)
		cfg = &resolved
	}

	if err := s.scheduler.Register(spec, cfg); err != nil {
		return nil, err
	}
	return &RegisterResponse{Id: spec.ID}, nil
}

// Unregister removes a function and stops its pool.
func (s *Server) Unregister(ctx context.Context, req *UnregisterRequest) (*UnregisterResponse, error) {
	if err := s.scheduler.Unregister(req.Name); err != nil {
		return nil, err
	}
	return &UnregisterResponse{}, nil
}

// Invoke executes one synchronous call against a registered function.
func (s *Server) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	input := req.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	resp, err := s.scheduler.Invoke(ctx, req.Name, input)
	if err != nil {
		return nil, err
	}

	return &InvokeResponse{
		RequestId:  resp.RequestID,
		Output:     resp.Output,
		Error:      resp.Error,
		DurationMs: resp.DurationMs,
		ColdStart:  resp.ColdStart,
	}, nil
}

// ListFunctions returns every registered function's metadata.
func (s *Server) ListFunctions(ctx context.Context, req *ListFunctionsRequest) (*ListFunctionsResponse, error) {
	specs := s.scheduler.List()
	resp := &ListFunctionsResponse{Functions: make([]FunctionInfo, 0, len(specs))}
	for _, spec := range specs {
		resp.Functions = append(resp.Functions, FunctionInfo{
			Id:         spec.ID,
			Name:       spec.Name,
			ScriptKind: string(spec.ScriptKind),
			TimeoutMs:  spec.TimeoutMs,
		})
	}
	return resp, nil
}

// HealthCheck reports the control plane as up; it does not probe any
// individual function pool.
func (s *Server) HealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	return &HealthCheckResponse{Status: "ok"}, nil
}

func poolConfigFromMsg(m *PoolConfigMsg) domain.PoolConfig {
	cfg := domain.DefaultPoolConfig()
	cfg.Min = m.Min
	cfg.Max = m.Max
	cfg.Target = m.Target
	cfg.ScaleUpThreshold = m.ScaleUpThreshold
	cfg.ScaleDownThreshold = m.ScaleDownThreshold
	cfg.ScaleUpCooldown = time.Duration(m.ScaleUpCooldownMs) * time.Millisecond
	cfg.ScaleDownCooldown = time.Duration(m.ScaleDownCooldownMs) * time.Millisecond
	if m.HealthCheckIntervalMs > 0 {
		cfg.HealthCheckInterval = time.Duration(m.HealthCheckIntervalMs) * time.Millisecond
	}
	if m.BalanceStrategy != "" {
		cfg.BalanceStrategy = domain.BalanceStrategy(m.BalanceStrategy)
	}
	if m.NominalConcurrency > 0 {
		cfg.NominalConcurrency = m.NominalConcurrency
	}
	return cfg
}
