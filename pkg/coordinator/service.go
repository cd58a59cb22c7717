package coordinator

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// CoordinatorServer is the admin RPC surface a worker process exposes
// on its loopback listener: list the jobs currently in flight, and
// cancel one by handle (SPEC_FULL.md §12.5). Request and response
// payloads use the well-known structpb.Struct message rather than a
// hand-maintained custom proto message, since there is no protoc
// invocation in this build pipeline to regenerate one from a .proto
// source.
type CoordinatorServer interface {
	ListActiveJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// coordinatorServiceName is the fully-qualified gRPC service name this
// package registers and dials.
const coordinatorServiceName = "orvdm.coordinator.Coordinator"

// ServiceDesc is the grpc.ServiceDesc protoc-gen-go-grpc would
// normally emit for a Coordinator service with ListActiveJobs and
// CancelJob unary RPCs. It is hand-written in the same shape that
// generator produces, rather than generated, for the reason given on
// CoordinatorServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: coordinatorServiceName,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListActiveJobs",
			Handler:    coordinatorListActiveJobsHandler,
		},
		{
			MethodName: "CancelJob",
			Handler:    coordinatorCancelJobHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/coordinator/coordinator.proto",
}

func coordinatorListActiveJobsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).ListActiveJobs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/ListActiveJobs"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoordinatorServer).ListActiveJobs(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func coordinatorCancelJobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).CancelJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + coordinatorServiceName + "/CancelJob"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CoordinatorServer).CancelJob(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// invokeListActiveJobs and invokeCancelJob are the client-side halves
// of the two RPCs, mirroring the *Invoke calls protoc-gen-go-grpc
// would generate onto a coordinatorClient.
func invokeListActiveJobs(ctx context.Context, cc grpc.ClientConnInterface, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+coordinatorServiceName+"/ListActiveJobs", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func invokeCancelJob(ctx context.Context, cc grpc.ClientConnInterface, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+coordinatorServiceName+"/CancelJob", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
