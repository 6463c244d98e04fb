package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/toolbox/internal/auth"
	"github.com/triage-ai/toolbox/internal/engine"
	"github.com/triage-ai/toolbox/internal/registry"
)

// ToolServer implements ToolServiceServer over the dispatcher.
type ToolServer struct {
	dispatcher *engine.Dispatcher
	auth       auth.Authenticator // nil leaves Invoke open
	logger     *zap.Logger
}

// NewToolServer creates a new ToolServer with the given dependencies.
func NewToolServer(d *engine.Dispatcher, authenticator auth.Authenticator, logger *zap.Logger) *ToolServer {
	return &ToolServer{
		dispatcher: d,
		auth:       authenticator,
		logger:     logger,
	}
}

// NewGRPCServer builds a grpc.Server carrying the tool service, the
// standard health service and reflection. The caller flips the health
// status to NOT_SERVING before stopping.
func NewGRPCServer(ts *ToolServer) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)

	RegisterToolServiceServer(grpcServer, ts)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	return grpcServer, healthServer
}

// ListTools returns every tool descriptor as a Struct.
func (s *ToolServer) ListTools(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	out := &structpb.ListValue{}
	if err := toProto(s.dispatcher.List(), out); err != nil {
		s.logger.Error("failed to encode tool list", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "encode tool list: %v", err)
	}
	return out, nil
}

// Invoke runs a tool. Domain errors come back inside "result"; faults are
// gRPC status errors.
func (s *ToolServer) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	meta := engine.Meta{
		RequestID: uuid.New().String(),
		Transport: "grpc",
	}

	if s.auth != nil {
		client, err := s.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		meta.ClientID = client.ID
	}

	name, args, err := decodeInvokeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	_ = grpc.SetHeader(ctx, metadata.Pairs("x-request-id", meta.RequestID))

	result, err := s.dispatcher.Invoke(ctx, name, args, meta)
	if err != nil {
		f := engine.AsFault(err)
		return nil, status.Error(faultCode(f), f.Message)
	}

	out := &structpb.Struct{}
	if err := toProto(map[string]any{"result": result}, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func (s *ToolServer) authenticate(ctx context.Context) (*auth.Client, error) {
	key, err := auth.FromMetadata(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "auth failed: %v", err)
	}
	client, err := s.auth.Authenticate(ctx, key)
	if err != nil {
		if errors.Is(err, auth.ErrAuthUnavailable) {
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		}
		s.logger.Warn("auth failed", zap.Error(err))
		return nil, status.Errorf(codes.Unauthenticated, "auth failed: %v", err)
	}
	return client, nil
}

func faultCode(f *engine.Fault) codes.Code {
	switch f.Kind {
	case engine.FaultNotFound:
		return codes.NotFound
	case engine.FaultInvalidArguments:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// decodeInvokeRequest extracts name and arguments. Arguments go through
// JSON so numbers arrive as json.Number, as they do over HTTP.
func decodeInvokeRequest(req *structpb.Struct) (string, registry.Arguments, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return "", nil, errors.New("name is required")
	}

	argsValue, ok := fields["arguments"]
	if !ok {
		return name, nil, nil
	}
	if _, isNull := argsValue.GetKind().(*structpb.Value_NullValue); isNull {
		return name, nil, nil
	}
	argsStruct := argsValue.GetStructValue()
	if argsStruct == nil {
		return "", nil, errors.New("arguments must be an object")
	}

	raw, err := protojson.Marshal(argsStruct)
	if err != nil {
		return "", nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args registry.Arguments
	if err := dec.Decode(&args); err != nil {
		return "", nil, err
	}
	return name, args, nil
}

// toProto converts a JSON-encodable Go value into a Struct or ListValue.
// Integers beyond 2^53 lose precision, as Struct numbers are doubles.
func toProto(v any, out proto.Message) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return protojson.Unmarshal(b, out)
}
