package chatservice

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"Seshat/internal/storage"
	"Seshat/proto/chatpb"
)

type domainError struct {
	err    error
	code   codes.Code
	reason string
}

var domainErrors = []domainError{
	{storage.ErrRoomNotFound, codes.NotFound, chatpb.ReasonRoomNotFound},
	{storage.ErrRoomNameTaken, codes.AlreadyExists, chatpb.ReasonRoomNameTaken},
	{storage.ErrInvalidRoomName, codes.InvalidArgument, chatpb.ReasonInvalidRoomName},
	{storage.ErrInvalidParticipants, codes.InvalidArgument, chatpb.ReasonInvalidParticipants},
	{storage.ErrEmptyContent, codes.InvalidArgument, chatpb.ReasonEmptyContent},
	{storage.ErrInvalidUser, codes.InvalidArgument, chatpb.ReasonInvalidUser},
	{storage.ErrPrivateRoomImmutable, codes.FailedPrecondition, chatpb.ReasonPrivateRoomImmutable},
}

// fail converts a store error into a gRPC status. Domain errors carry an
// ErrorInfo reason; anything else is reported as Internal without detail.
func fail(method string, err error) error {
	for _, d := range domainErrors {
		if !errors.Is(err, d.err) {
			continue
		}
		serviceLogger.Warn("Request rejected", "method", method, "reason", d.reason, "error", err)
		st := status.New(d.code, d.err.Error())
		withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: d.reason, Domain: chatpb.ErrorDomain})
		if derr != nil {
			return st.Err()
		}
		return withInfo.Err()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "store deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}
	serviceLogger.Error("Store call failed", "method", method, "error", err)
	return status.Error(codes.Internal, "database error")
}
