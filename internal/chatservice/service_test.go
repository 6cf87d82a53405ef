package chatservice

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"Seshat/internal/models"
	"Seshat/internal/storage"
	"Seshat/proto/chatpb"
)

var alice = models.Identity{UserID: 1, Username: "alice"}

func startService(t *testing.T) (chatpb.ChatStoreClient, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewServer(store)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return chatpb.NewChatStoreClient(conn), store
}

func reason(t *testing.T, err error) (codes.Code, string) {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return st.Code(), info.Reason
		}
	}
	return st.Code(), ""
}

func TestCreateAndListMessages(t *testing.T) {
	client, store := startService(t)
	ctx := context.Background()
	room, err := store.GetOrCreateRoom(ctx, "general", alice)
	require.NoError(t, err)

	resp, err := client.Call(ctx, chatpb.MethodCreateMessage, chatpb.Fields(map[string]any{
		"room_id": room.ID,
		"author":  chatpb.EncodeIdentity(alice),
		"content": " hello ",
	}))
	require.NoError(t, err)
	msg, err := chatpb.DecodeMessage(resp)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "alice", msg.Username)

	resp, err = client.Call(ctx, chatpb.MethodListRecentMessages, chatpb.Fields(map[string]any{"room_id": room.ID, "limit": 10}))
	require.NoError(t, err)
	msgs, err := chatpb.DecodeMessages(resp)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
}

func TestDomainErrorsCarryReasons(t *testing.T) {
	client, store := startService(t)
	ctx := context.Background()
	_, err := store.CreateGroupRoom(ctx, "taken", alice)
	require.NoError(t, err)
	private, err := store.CreatePrivateRoom(ctx, alice, 2)
	require.NoError(t, err)

	cases := []struct {
		method string
		req    map[string]any
		code   codes.Code
		reason string
	}{
		{chatpb.MethodGetRoom, map[string]any{"room_id": int64(404)}, codes.NotFound, chatpb.ReasonRoomNotFound},
		{chatpb.MethodCreateGroupRoom, map[string]any{"name": "taken", "creator": chatpb.EncodeIdentity(alice)}, codes.AlreadyExists, chatpb.ReasonRoomNameTaken},
		{chatpb.MethodCreateGroupRoom, map[string]any{"name": "bad name", "creator": chatpb.EncodeIdentity(alice)}, codes.InvalidArgument, chatpb.ReasonInvalidRoomName},
		{chatpb.MethodCreatePrivateRoom, map[string]any{"creator": chatpb.EncodeIdentity(alice), "other_id": alice.UserID}, codes.InvalidArgument, chatpb.ReasonInvalidParticipants},
		{chatpb.MethodJoinRoom, map[string]any{"room_id": private.ID, "user_id": int64(3)}, codes.FailedPrecondition, chatpb.ReasonPrivateRoomImmutable},
		{chatpb.MethodCreateMessage, map[string]any{"room_id": private.ID, "author": chatpb.EncodeIdentity(alice), "content": "  "}, codes.InvalidArgument, chatpb.ReasonEmptyContent},
	}
	for _, tc := range cases {
		_, err := client.Call(ctx, tc.method, chatpb.Fields(tc.req))
		require.Error(t, err, tc.method)
		code, r := reason(t, err)
		assert.Equal(t, tc.code, code, tc.method)
		assert.Equal(t, tc.reason, r, tc.method)
	}
}

func TestVerifyRoomAccess(t *testing.T) {
	client, store := startService(t)
	ctx := context.Background()
	private, err := store.CreatePrivateRoom(ctx, alice, 2)
	require.NoError(t, err)

	resp, err := client.Call(ctx, chatpb.MethodVerifyRoomAccess, chatpb.Fields(map[string]any{"room_id": private.ID, "user_id": int64(3)}))
	require.NoError(t, err)
	assert.False(t, chatpb.Bool(resp, "allowed"))

	resp, err = client.Call(ctx, chatpb.MethodVerifyRoomAccess, chatpb.Fields(map[string]any{"room_id": private.ID, "user_id": int64(2)}))
	require.NoError(t, err)
	assert.True(t, chatpb.Bool(resp, "allowed"))
}

func TestUnknownMethodIsUnimplemented(t *testing.T) {
	client, _ := startService(t)
	_, err := client.Call(context.Background(), "DeleteEverything", chatpb.Fields(nil))
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
