package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "minesync/internal/platform/errors"
)

var codeBySentinel = []struct {
	sentinel error
	code     codes.Code
}{
	{apperrors.ErrConflict, codes.AlreadyExists},
	{apperrors.ErrNotFound, codes.NotFound},
	{apperrors.ErrNoActiveSession, codes.NotFound},
	{apperrors.ErrUnauthorized, codes.PermissionDenied},
	{apperrors.ErrInvalidState, codes.FailedPrecondition},
	{apperrors.ErrInvalidInput, codes.InvalidArgument},
	{apperrors.ErrStorageFailure, codes.Internal},
}

// ToStatus converts a usecase error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, item := range codeBySentinel {
		if errors.Is(err, item.sentinel) {
			return status.Error(item.code, err.Error())
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus maps a gRPC status error back onto the shared sentinels so callers
// can keep matching with errors.Is across the wire.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.AlreadyExists:
		sentinel = apperrors.ErrConflict
	case codes.NotFound:
		sentinel = apperrors.ErrNotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		sentinel = apperrors.ErrUnauthorized
	case codes.FailedPrecondition:
		sentinel = apperrors.ErrInvalidState
	case codes.InvalidArgument:
		sentinel = apperrors.ErrInvalidInput
	case codes.Internal:
		sentinel = apperrors.ErrStorageFailure
	default:
		return err
	}
	if st.Message() == sentinel.Error() {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
