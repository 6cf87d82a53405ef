package storage

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomNameTaken        = errors.New("chat room with this name already exists")
	ErrInvalidRoomName      = errors.New("invalid room name")
	ErrInvalidParticipants  = errors.New("private chat needs two distinct users")
	ErrPrivateRoomImmutable = errors.New("private chat participants cannot change")
	ErrEmptyContent         = errors.New("message content cannot be empty")
	ErrInvalidUser          = errors.New("invalid user")
)
