package memserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/docdb/internal/wire"
	"github.com/hanpama/docdb/internal/wirepb"
)

type gatewayServer interface {
	serveGateway(ctx context.Context, req *wire.Request) (*wire.Response, error)
}

// RegisterGateway registers s as the gateway service on r.
func (s *Server) RegisterGateway(r grpc.ServiceRegistrar) {
	r.RegisterService(&gatewayServiceDesc, s)
}

func (s *Server) serveGateway(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if s.closed.Load() {
		return nil, status.Error(codes.Unavailable, ErrClosed.Error())
	}
	return s.Handle(ctx, req), nil
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: wirepb.ServiceName,
	HandlerType: (*gatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: wirepb.MethodName, Handler: executeHandler},
	},
	Metadata: wirepb.FilePath,
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := dynamicpb.NewMessage(wirepb.Method().Input())
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(gatewayServer).serveGateway(ctx, wirepb.RequestFrom(req.(*dynamicpb.Message)))
		if err != nil {
			return nil, err
		}
		return wirepb.NewResponse(resp), nil
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: wirepb.FullMethod}
	return interceptor(ctx, in, info, handle)
}
