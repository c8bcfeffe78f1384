package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pricing.v1.PricingService"

// PricingServiceServer is the server API for the pricing service. Requests
// and replies are google.protobuf.Struct documents shaped like the JSON API.
type PricingServiceServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Join(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitChoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveConfiguration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartGame(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ResetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StreamEvents(*emptypb.Empty, EventStream) error
}

// EventStream is the server side of StreamEvents.
type EventStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req proto.Message](name string, newReq func() Req, call func(PricingServiceServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PricingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(PricingServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func streamEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PricingServiceServer).StreamEvents(in, &eventStream{stream})
}

// ServiceDesc describes the pricing service without a protoc step.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PricingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", newEmpty, PricingServiceServer.GetState),
		unary("Join", newStruct, PricingServiceServer.Join),
		unary("SubmitChoice", newStruct, PricingServiceServer.SubmitChoice),
		unary("SaveConfiguration", newStruct, PricingServiceServer.SaveConfiguration),
		unary("StartGame", newEmpty, PricingServiceServer.StartGame),
		unary("ResetSession", newEmpty, PricingServiceServer.ResetSession),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pricing/v1/pricing.proto",
}

// RegisterPricingServiceServer registers srv on s.
func RegisterPricingServiceServer(s grpc.ServiceRegistrar, srv PricingServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
