package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the pricing service over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetState(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetState", &emptypb.Empty{}, opts...)
}

func (c *Client) Join(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"name": name})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "Join", in, opts...)
}

func (c *Client) SubmitChoice(ctx context.Context, key, name, option string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"key": key, "name": name, "option": option})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "SubmitChoice", in, opts...)
}

// SaveConfiguration sends cfg, shaped like the JSON body of POST /api/config.
func (c *Client) SaveConfiguration(ctx context.Context, cfg map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(cfg)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "SaveConfiguration", in, opts...)
}

func (c *Client) StartGame(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "StartGame", &emptypb.Empty{}, opts...)
}

func (c *Client) ResetSession(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ResetSession", &emptypb.Empty{}, opts...)
}

// EventReceiver is the client side of StreamEvents.
type EventReceiver struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event.
func (r *EventReceiver) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := r.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// StreamEvents subscribes to game events. Cancel ctx to stop.
func (c *Client) StreamEvents(ctx context.Context, opts ...grpc.CallOption) (*EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("StreamEvents"), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventReceiver{stream: stream}, nil
}
