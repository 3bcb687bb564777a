package blitrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name (§6).
const ServiceName = "blit.Blit"

// PushServer is the stream interface a BlitServer implementation uses to
// receive ClientPushRequest messages and send ServerPushResponse messages,
// the hand-written analogue of what protoc-gen-go-grpc would generate for a
// bidirectional-streaming RPC.
type PushServer interface {
	Send(*ServerPushResponse) error
	Recv() (*ClientPushRequest, error)
	grpc.ServerStream
}

// PullServer is the stream interface for the server-streaming Pull RPC.
type PullServer interface {
	Send(*PullChunk) error
	grpc.ServerStream
}

// BlitServer is implemented by the daemon (internal/daemon).
type BlitServer interface {
	Push(PushServer) error
	Pull(*PullRequest, PullServer) error
}

type pushServerStream struct{ grpc.ServerStream }

func (s *pushServerStream) Send(m *ServerPushResponse) error { return s.ServerStream.SendMsg(m) }
func (s *pushServerStream) Recv() (*ClientPushRequest, error) {
	m := new(ClientPushRequest)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type pullServerStream struct{ grpc.ServerStream }

func (s *pullServerStream) Send(m *PullChunk) error { return s.ServerStream.SendMsg(m) }

func pushHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(BlitServer).Push(&pushServerStream{stream})
}

func pullHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(PullRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(BlitServer).Pull(req, &pullServerStream{stream})
}

// ServiceDesc is registered with grpc.Server via RegisterBlitServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BlitServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Push",
			Handler:       pushHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "Pull",
			Handler:       pullHandler,
			ServerStreams: true,
			ClientStreams: false,
		},
	},
	Metadata: "blit.proto",
}

// RegisterBlitServer registers impl on s, the idiomatic call site a
// protoc-generated _grpc.pb.go would otherwise provide.
func RegisterBlitServer(s grpc.ServiceRegistrar, impl BlitServer) {
	s.RegisterService(&ServiceDesc, impl)
}

// ServerOption forces the gob codec of codec.go for every RPC on s.
func ServerOption() grpc.ServerOption { return grpc.CustomCodec(Codec) } //nolint:staticcheck

// DialOption forces the gob codec for every call made by a client dialed
// with it.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallCustomCodec(Codec)) //nolint:staticcheck
}

// PushClient is the client-side stream handle for Push.
type PushClient interface {
	Send(*ClientPushRequest) error
	Recv() (*ServerPushResponse, error)
	CloseSend() error
	grpc.ClientStream
}

// PullClient is the client-side stream handle for Pull.
type PullClient interface {
	Recv() (*PullChunk, error)
	grpc.ClientStream
}

type pushClientStream struct{ grpc.ClientStream }

func (c *pushClientStream) Send(m *ClientPushRequest) error { return c.ClientStream.SendMsg(m) }
func (c *pushClientStream) Recv() (*ServerPushResponse, error) {
	m := new(ServerPushResponse)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type pullClientStream struct{ grpc.ClientStream }

func (c *pullClientStream) Recv() (*PullChunk, error) {
	m := new(PullChunk)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Client is a thin wrapper over a grpc.ClientConn exposing the two blit RPCs.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection. Callers must have dialed with
// DialOption() so the gob codec is in effect.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Push opens the bidirectional Push stream (§4.7).
func (c *Client) Push(ctx context.Context, opts ...grpc.CallOption) (PushClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Push", opts...)
	if err != nil {
		return nil, err
	}
	return &pushClientStream{stream}, nil
}

// Pull opens the server-streaming Pull call (§6).
func (c *Client) Pull(ctx context.Context, req *PullRequest, opts ...grpc.CallOption) (PullClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[1], "/"+ServiceName+"/Pull", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &pullClientStream{stream}, nil
}
