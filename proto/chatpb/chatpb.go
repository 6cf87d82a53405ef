// Package chatpb describes the seshat.chat.v1.ChatStore gRPC service.
// Requests and responses are google.protobuf.Struct values; codec.go maps
// them to and from the domain types.
//
// The descriptor is written by hand and no .proto file is registered, so
// server reflection lists ChatStore but cannot describe its methods.
//
// Struct numbers are doubles. Ids, user ids and limits round-trip exactly
// only up to MaxExactID (2^53).
package chatpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "seshat.chat.v1.ChatStore"

// MaxExactID is the largest integer a Struct number carries without loss.
const MaxExactID int64 = 1 << 53

const (
	MethodGetRoom            = "GetRoom"
	MethodGetOrCreateRoom    = "GetOrCreateRoom"
	MethodCreateGroupRoom    = "CreateGroupRoom"
	MethodCreatePrivateRoom  = "CreatePrivateRoom"
	MethodJoinRoom           = "JoinRoom"
	MethodLeaveRoom          = "LeaveRoom"
	MethodListRecentMessages = "ListRecentMessages"
	MethodCreateMessage      = "CreateMessage"
	MethodVerifyRoomAccess   = "VerifyRoomAccess"
)

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type ChatStoreServer interface {
	GetRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrCreateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateGroupRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreatePrivateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	JoinRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LeaveRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecentMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyRoomAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedChatStoreServer answers every method with codes.Unimplemented.
type UnimplementedChatStoreServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedChatStoreServer) GetRoom(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetRoom)
}
func (UnimplementedChatStoreServer) GetOrCreateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetOrCreateRoom)
}
func (UnimplementedChatStoreServer) CreateGroupRoom(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCreateGroupRoom)
}
func (UnimplementedChatStoreServer) CreatePrivateRoom(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCreatePrivateRoom)
}
func (UnimplementedChatStoreServer) JoinRoom(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodJoinRoom)
}
func (UnimplementedChatStoreServer) LeaveRoom(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodLeaveRoom)
}
func (UnimplementedChatStoreServer) ListRecentMessages(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListRecentMessages)
}
func (UnimplementedChatStoreServer) CreateMessage(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodCreateMessage)
}
func (UnimplementedChatStoreServer) VerifyRoomAccess(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodVerifyRoomAccess)
}

type unaryMethod func(ChatStoreServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatStoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatStoreServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ChatStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc(MethodGetRoom, ChatStoreServer.GetRoom),
		methodDesc(MethodGetOrCreateRoom, ChatStoreServer.GetOrCreateRoom),
		methodDesc(MethodCreateGroupRoom, ChatStoreServer.CreateGroupRoom),
		methodDesc(MethodCreatePrivateRoom, ChatStoreServer.CreatePrivateRoom),
		methodDesc(MethodJoinRoom, ChatStoreServer.JoinRoom),
		methodDesc(MethodLeaveRoom, ChatStoreServer.LeaveRoom),
		methodDesc(MethodListRecentMessages, ChatStoreServer.ListRecentMessages),
		methodDesc(MethodCreateMessage, ChatStoreServer.CreateMessage),
		methodDesc(MethodVerifyRoomAccess, ChatStoreServer.VerifyRoomAccess),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seshat/chat/v1/chat_store.proto",
}

func RegisterChatStoreServer(s grpc.ServiceRegistrar, srv ChatStoreServer) {
	s.RegisterService(&ChatStore_ServiceDesc, srv)
}

// ChatStoreClient calls one ChatStore method by name.
type ChatStoreClient interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type chatStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewChatStoreClient(cc grpc.ClientConnInterface) ChatStoreClient {
	return &chatStoreClient{cc: cc}
}

func (c *chatStoreClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
