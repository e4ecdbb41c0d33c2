package grpcapi

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/title-ratings/services/catalog/internal/query"
	"github.com/example/title-ratings/services/catalog/internal/store"
	"github.com/example/title-ratings/services/catalog/internal/tmdb"
)

const errorDomain = "catalog"

func errInvalidArgument(code, msg string, fields []query.FieldError) error {
	st := status.New(codes.InvalidArgument, msg)
	info := &errdetails.ErrorInfo{Reason: code, Domain: errorDomain}

	bad := &errdetails.BadRequest{}
	for _, f := range fields {
		bad.FieldViolations = append(bad.FieldViolations, &errdetails.BadRequest_FieldViolation{Field: f.Field, Description: f.Message})
	}

	st2, err := st.WithDetails(info, bad)
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errWithReason(c codes.Code, reason, msg string) error {
	st := status.New(c, msg)
	st2, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func toStatus(err error) error {
	var verr *query.ValidationError
	switch {
	case errors.As(err, &verr):
		return errInvalidArgument("VALIDATION_ERROR", verr.Error(), verr.Fields)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, tmdb.ErrNotFound):
		return errWithReason(codes.NotFound, "NOT_FOUND", "title not found")
	case errors.Is(err, tmdb.ErrRateLimited):
		return errWithReason(codes.ResourceExhausted, "UPSTREAM_RATE_LIMITED", "external catalog is rate limiting requests")
	case errors.Is(err, tmdb.ErrUnavailable), errors.Is(err, tmdb.ErrMalformed):
		return errWithReason(codes.Unavailable, "UPSTREAM_UNAVAILABLE", "external catalog unavailable")
	default:
		return errWithReason(codes.Internal, "INTERNAL", "internal error")
	}
}
