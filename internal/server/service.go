package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "toolbox.v1.ToolService"

const (
	ListToolsMethod = "/" + ServiceName + "/ListTools"
	InvokeMethod    = "/" + ServiceName + "/Invoke"
)

// ToolServiceServer is the server API for the tool service. Messages are
// the well-known Struct types so no generated code is needed: ListTools
// returns one Struct per tool descriptor, Invoke takes
// {"name", "arguments"} and returns {"result"}.
type ToolServiceServer interface {
	ListTools(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterToolServiceServer registers srv on s.
func RegisterToolServiceServer(s grpc.ServiceRegistrar, srv ToolServiceServer) {
	s.RegisterService(&ToolServiceDesc, srv)
}

// ToolServiceDesc describes the tool service for grpc.Server.
var ToolServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ToolServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListTools", Handler: listToolsHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "toolbox/v1/tools.proto",
}

func listToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolServiceServer).ListTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListToolsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ToolServiceServer).ListTools(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ToolServiceServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvokeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ToolServiceServer).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ToolServiceClient is the client API for the tool service.
type ToolServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewToolServiceClient wraps a client connection.
func NewToolServiceClient(cc grpc.ClientConnInterface) *ToolServiceClient {
	return &ToolServiceClient{cc: cc}
}

func (c *ToolServiceClient) ListTools(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, ListToolsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ToolServiceClient) Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InvokeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
