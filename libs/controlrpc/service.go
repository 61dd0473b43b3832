// Package controlrpc exposes subscription commands over gRPC. Messages are
// google.protobuf.Struct documents, so no generated code is involved:
//
//	request:  {"subscription": "accounts-view", "command": "PAUSE"}
//	response: {"subscriptionName": ..., "paused": ..., "busy": ..., ...}
package controlrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName  = "seqlog.subscription.v1.Control"
	SubmitMethod = "/" + ServiceName + "/Submit"
)

// ControlServer is the server API of the Control service.
type ControlServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seqlog/subscription/v1/control",
}

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
