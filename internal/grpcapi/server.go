// Package grpcapi exposes authorization decisions to other services over
// gRPC. Messages are google.protobuf.Struct values so no generated code is
// required on either side.
package grpcapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"adminkit.org/internal/auth"
	"adminkit.org/internal/authz"
	"adminkit.org/internal/obs"
)

// ServiceName is the fully qualified Authorizer service name.
const ServiceName = "adminkit.authz.v1.Authorizer"

// AuthorizerServer is implemented by Server.
type AuthorizerServer interface {
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Navigation(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AuthorizerServiceDesc describes the Authorizer service for grpc.Server.
var AuthorizerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthorizerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: unaryHandler("Check", AuthorizerServer.Check)},
		{MethodName: "Navigation", Handler: unaryHandler("Navigation", AuthorizerServer.Navigation)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminkit/authz/v1/authorizer.proto",
}

type unaryMethod func(AuthorizerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthorizerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthorizerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server answers authorization queries with the same Checker and Gate
// semantics as the REST API.
type Server struct {
	loader auth.UserLoader
	policy authz.Policy
	gate   authz.Gate
	health *health.Server
}

func NewServer(loader auth.UserLoader, policy authz.Policy, gate authz.Gate) *Server {
	if len(gate.Sections) == 0 {
		gate = authz.NewGate()
	}
	return &Server{loader: loader, policy: policy, gate: gate, health: health.NewServer()}
}

// Register attaches the Authorizer and the standard health service.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&AuthorizerServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
}

// SetServing flips the health status for the whole server and the Authorizer.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// WatchReadiness polls probe until ctx is done and mirrors it into health.
func (s *Server) WatchReadiness(ctx context.Context, probe func(context.Context) error, every time.Duration) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		s.SetServing(probe == nil || probe(pctx) == nil)
	}
	check()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// Check expects {user_id, permission} and returns {allowed, root}.
func (s *Server) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(in, "user_id")
	permission := stringField(in, "permission")
	if userID == "" || permission == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id and permission are required")
	}
	p, err := s.principal(ctx, userID)
	if err != nil {
		return nil, err
	}
	allowed := p.User.Active() && s.gate.PermissionAllowed(p.Access, permission)
	obs.RecordDecision("grpc_check", allowed)
	return structpb.NewStruct(map[string]any{
		"allowed": allowed,
		"root":    p.IsRoot(),
	})
}

// Navigation expects {user_id} and returns {sections: [...]}.
func (s *Server) Navigation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(in, "user_id")
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	p, err := s.principal(ctx, userID)
	if err != nil {
		return nil, err
	}
	access := p.Access
	if !p.User.Active() {
		// Disabled accounts get the anonymous view: every section hidden.
		access = authz.NewChecker(nil, s.policy)
	}
	entries := s.gate.Navigation(access)
	sections := make([]any, 0, len(entries))
	for _, e := range entries {
		actions := make(map[string]any, len(e.Actions))
		for k, v := range e.Actions {
			actions[k] = v
		}
		sections = append(sections, map[string]any{
			"key":     e.Key,
			"label":   e.Label,
			"path":    e.Path,
			"visible": e.Visible,
			"actions": actions,
		})
	}
	return structpb.NewStruct(map[string]any{"sections": sections})
}

func (s *Server) principal(ctx context.Context, userID string) (auth.Principal, error) {
	user, err := s.loader.LoadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.Principal{}, status.Error(codes.NotFound, "user not found")
		}
		return auth.Principal{}, status.Error(codes.Internal, "load user failed")
	}
	return auth.NewPrincipal(&user, s.policy), nil
}

// LoggingInterceptor logs each unary call with its status code.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	obs.Logger().InfoContext(ctx, "grpc_complete",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)
	return resp, err
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.GetFields()[key].GetStringValue())
}
