// Package remote serves a rollout policy over gRPC so that a Simulation Cell
// can query an action source running in another process.
package remote

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/mrm-sim/internal/mrm"
)

// #region service-desc
const (
	ServiceName   = "mrm.remote.v1.PolicyService"
	ActFullMethod = "/" + ServiceName + "/Act"
)

// PolicyServiceServer is the server side of the policy service.
type PolicyServiceServer interface {
	Act(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func actHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyServiceServer).Act(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ActFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PolicyServiceServer).Act(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the policy service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Act", Handler: actHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// #endregion service-desc

// #region server
// Server adapts an mrm.Policy to PolicyServiceServer. Calls are serialized
// because policies are not required to be safe for concurrent use.
type Server struct {
	mu     sync.Mutex
	policy mrm.Policy
	logger *slog.Logger
}

// NewServer wraps policy. A nil logger discards output.
func NewServer(policy mrm.Policy, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{policy: policy, logger: logger}
}

// Act decodes state and input, runs the policy and encodes the action.
func (s *Server) Act(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	state, err := DecodeTensors(fields[fieldState])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "state: %v", err)
	}
	input, err := DecodeTensor(fields[fieldInput])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "input: %v", err)
	}

	s.mu.Lock()
	action, err := s.policy.Act(state, input)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("policy act failed", "error", err)
		return nil, status.Errorf(codes.Internal, "act: %v", err)
	}
	s.logger.Debug("policy act", "batch", input.Batch(), "actions", len(action))

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldAction: EncodeTensors(action),
	}}, nil
}

// Register attaches s to a gRPC service registrar.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

// NewGRPCServer returns a gRPC server with tracing enabled and s registered.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	g := grpc.NewServer(opts...)
	s.Register(g)
	return g
}

// #endregion server
