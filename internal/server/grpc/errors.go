package grpcserver

import (
	"errors"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/media"
)

// toStatus maps domain errors onto gRPC codes with machine-readable details.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var (
		verr *errs.ValidationError
		nye  *errs.NotYetEligibleError
		rl   *errs.RateLimitedError
	)
	switch {
	case errors.As(err, &verr):
		br := &errdetails.BadRequest{}
		for _, f := range verr.Fields {
			br.FieldViolations = append(br.FieldViolations,
				&errdetails.BadRequest_FieldViolation{Field: f.Field, Description: f.Reason})
		}
		return withDetails(codes.InvalidArgument, err.Error(), br)
	case errors.As(err, &nye):
		return withDetails(codes.FailedPrecondition, nye.Error(), retryInfo(nye.Remaining))
	case errors.As(err, &rl):
		return withDetails(codes.ResourceExhausted, rl.Error(), retryInfo(rl.RetryAfter))
	case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrTooLarge):
		return withDetails(codes.InvalidArgument, err.Error(), &errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{{Field: "data", Description: err.Error()}},
		})
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrRepository):
		return status.Error(codes.Unavailable, "storage unavailable")
	default:
		return status.Error(codes.Internal, "internal")
	}
}

func retryInfo(d time.Duration) *errdetails.RetryInfo {
	return &errdetails.RetryInfo{RetryDelay: durationpb.New(d)}
}

func withDetails(c codes.Code, msg string, detail protoadapt.MessageV1) error {
	st := status.New(c, msg)
	if ds, err := st.WithDetails(detail); err == nil {
		st = ds
	}
	return st.Err()
}
