package chatpb

// ErrorDomain and the reasons below travel in an errdetails.ErrorInfo
// attached to failed calls, so clients can tell domain errors apart.
const ErrorDomain = "seshat.chat"

const (
	ReasonRoomNotFound         = "ROOM_NOT_FOUND"
	ReasonRoomNameTaken        = "ROOM_NAME_TAKEN"
	ReasonInvalidRoomName      = "INVALID_ROOM_NAME"
	ReasonInvalidParticipants  = "INVALID_PARTICIPANTS"
	ReasonPrivateRoomImmutable = "PRIVATE_ROOM_IMMUTABLE"
	ReasonEmptyContent         = "EMPTY_CONTENT"
	ReasonInvalidUser          = "INVALID_USER"
)
