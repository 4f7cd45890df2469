package ipc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service the agent exposes on its socket.
const ServiceName = "vaportrade.Agent"

// Method names.
const (
	MethodStatus    = "Status"
	MethodPeers     = "Peers"
	MethodTrade     = "Trade"
	MethodSelect    = "Select"
	MethodMinimize  = "Minimize"
	MethodClose     = "Close"
	MethodOffer     = "Offer"
	MethodLockIn    = "LockIn"
	MethodAccept    = "Accept"
	MethodChat      = "Chat"
	MethodMorePeers = "MorePeers"
	MethodEvents    = "Events"
)

// AgentServer is the server side of the agent service. Requests and
// responses are google.protobuf.Struct values holding JSON objects.
type AgentServer interface {
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Peers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Trade(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Select(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Minimize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Offer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LockIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Accept(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Chat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MorePeers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Events(*structpb.Struct, grpc.ServerStream) error
}

type unaryMethod func(AgentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(AgentServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(AgentServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AgentServer).Events(in, stream)
}

// FullMethod returns the gRPC path of a method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// eventsStream describes the server-streaming Events method.
var eventsStream = grpc.StreamDesc{
	StreamName:    MethodEvents,
	Handler:       eventsHandler,
	ServerStreams: true,
}

// ServiceDesc describes the agent service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStatus, AgentServer.Status),
		unary(MethodPeers, AgentServer.Peers),
		unary(MethodTrade, AgentServer.Trade),
		unary(MethodSelect, AgentServer.Select),
		unary(MethodMinimize, AgentServer.Minimize),
		unary(MethodClose, AgentServer.Close),
		unary(MethodOffer, AgentServer.Offer),
		unary(MethodLockIn, AgentServer.LockIn),
		unary(MethodAccept, AgentServer.Accept),
		unary(MethodChat, AgentServer.Chat),
		unary(MethodMorePeers, AgentServer.MorePeers),
	},
	Streams:  []grpc.StreamDesc{eventsStream},
	Metadata: "vaportrade/agent",
}
