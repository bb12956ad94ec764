package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/intakekeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeOf maps a service error onto a gRPC code. The client maps the code
// back to the same sentinel.
func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, common.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrArchived), errors.Is(err, common.ErrInvalidTransition):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrRateLimited):
		return codes.ResourceExhausted
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrUnavailable):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus converts err to a status error. Internal errors do not leak their
// text.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeOf(err)
	if code == codes.Internal {
		return status.Error(code, common.ErrorInternal.Error())
	}
	return status.Error(code, err.Error())
}
