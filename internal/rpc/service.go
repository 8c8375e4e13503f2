package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/cloudonix/voicerouter/internal/routing"
)

// CacheInvalidator is the routing engine's mutable read cache.
type CacheInvalidator interface {
	Invalidate(tenantID string, kind routing.EntityKind, entityID string)
}

// Server implements the RoutingCacheInvalidation gRPC service.
type Server struct {
	cache CacheInvalidator
}

// NewServer constructs a Server over the routing engine's cache.
func NewServer(cache CacheInvalidator) *Server {
	return &Server{cache: cache}
}

// InvalidateRoutingCache drops the routing engine's cached copy of one
// entity (or an entire tenant's configuration, or everything).
func (s *Server) InvalidateRoutingCache(ctx context.Context, req *InvalidateRequest) (*InvalidateResponse, error) {
	s.cache.Invalidate(req.TenantID, routing.EntityKind(req.EntityKind), req.EntityID)
	return &InvalidateResponse{Accepted: true}, nil
}

func _RoutingCacheInvalidation_InvalidateRoutingCache_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InvalidateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).InvalidateRoutingCache(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/routing.RoutingCacheInvalidation/InvalidateRoutingCache",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).InvalidateRoutingCache(ctx, req.(*InvalidateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is the hand-written stand-in for codegen's grpc.ServiceDesc.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "routing.RoutingCacheInvalidation",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "InvalidateRoutingCache",
			Handler:    _RoutingCacheInvalidation_InvalidateRoutingCache_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "routing_cache_invalidation.proto",
}

// Register attaches the service to a grpc.Server.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}
