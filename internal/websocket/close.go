package websocket

import "github.com/gorilla/websocket"

// Close codes sent by a session. The 4xxx codes are application codes
// clients can rely on to tell why the server hung up.
const (
	// CloseNormal: the peer closed, or the session ended normally.
	CloseNormal = websocket.CloseNormalClosure
	// CloseGoingAway: server shutdown or heartbeat timeout.
	CloseGoingAway = websocket.CloseGoingAway
	// CloseProtocolError: framing violation.
	CloseProtocolError = websocket.CloseProtocolError
	// CloseMessageTooBig: a frame exceeded the read limit.
	CloseMessageTooBig = websocket.CloseMessageTooBig
	// CloseInternalError: the store or bus failed while joining.
	CloseInternalError = websocket.CloseInternalServerErr

	CloseUnauthenticated = 4001
	CloseAccessDenied    = 4003
)

type closeReason struct {
	code int
	text string
}

var (
	reasonNormal          = closeReason{CloseNormal, "bye"}
	reasonShutdown        = closeReason{CloseGoingAway, "server shutting down"}
	reasonHeartbeat       = closeReason{CloseGoingAway, "heartbeat timeout"}
	reasonProtocol        = closeReason{CloseProtocolError, "protocol error"}
	reasonTooBig          = closeReason{CloseMessageTooBig, "message too big"}
	reasonInternal        = closeReason{CloseInternalError, "internal error"}
	reasonUnauthenticated = closeReason{CloseUnauthenticated, "unauthenticated"}
	reasonAccessDenied    = closeReason{CloseAccessDenied, "access denied"}
)
