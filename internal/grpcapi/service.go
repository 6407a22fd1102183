package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const serviceName = "fluxfaas.ControlPlane"

// controlPlaneServer is the interface grpc.ServiceDesc's HandlerType
// dispatches against; *Server implements it.
type controlPlaneServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Unregister(context.Context, *UnregisterRequest) (*UnregisterResponse, error)
	Invoke(context.Context, *InvokeRequest) (*InvokeResponse, error)
	ListFunctions(context.Context, *ListFunctionsRequest) (*ListFunctionsResponse, error)
	HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*controlPlaneServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: registerHandler},
		{MethodName: "Unregister", Handler: unregisterHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "ListFunctions", Handler: listFunctionsHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Metadata: "fluxfaas/grpcapi.proto",
}

func registerHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlPlaneServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(controlPlaneServer).Register(ctx, req.(*RegisterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func unregisterHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UnregisterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlPlaneServer).Unregister(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Unregister"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(controlPlaneServer).Unregister(ctx, req.(*UnregisterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func invokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlPlaneServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Invoke"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(controlPlaneServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listFunctionsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListFunctionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlPlaneServer).ListFunctions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ListFunctions"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(controlPlaneServer).ListFunctions(ctx, req.(*ListFunctionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlPlaneServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/HealthCheck"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(controlPlaneServer).HealthCheck(ctx, req.(*HealthCheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is a thin control-plane client stub, playing the role the
// teacher's protoc-generated NovaServiceClient plays, over a plain
// grpc.ClientConn and the json codec.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an established connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	out := new(RegisterResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/Register", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

func (c *Client) Unregister(ctx context.Context, req *UnregisterRequest) (*UnregisterResponse, error) {
	out := new(UnregisterResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/Unregister", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

func (c *Client) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	out := new(InvokeResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/Invoke", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

func (c *Client) ListFunctions(ctx context.Context, req *ListFunctionsRequest) (*ListFunctionsResponse, error) {
	out := new(ListFunctionsResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/ListFunctions", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}

func (c *Client) HealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	out := new(HealthCheckResponse)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/HealthCheck", req, out, grpc.CallContentSubtype(codecName))
	return out, err
}
