package grpcserver

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/time-capsule/internal/errs"
	"github.com/and161185/time-capsule/internal/media"
)

func TestToStatus_Codes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("wrap: %w", errs.ErrNotFound), codes.NotFound},
		{errs.ErrAlreadyExists, codes.AlreadyExists},
		{errs.ErrUnauthorized, codes.Unauthenticated},
		{errs.Repo("get capsule", errors.New("conn reset")), codes.Unavailable},
		{fmt.Errorf("%w: big", media.ErrTooLarge), codes.InvalidArgument},
		{errors.New("??"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(toStatus(tc.err)); got != tc.want {
			t.Fatalf("%v: want %s, got %s", tc.err, tc.want, got)
		}
	}
	if toStatus(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestToStatus_ValidationCarriesEveryField(t *testing.T) {
	t.Parallel()

	var verr errs.ValidationError
	verr.Add("title", "must not be empty")
	verr.Add("recipients[2]", `invalid email address "bad-email"`)

	st := status.Convert(toStatus(&verr))
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("code: %s", st.Code())
	}
	details := st.Details()
	if len(details) != 1 {
		t.Fatalf("details: %v", details)
	}
	br, ok := details[0].(*errdetails.BadRequest)
	if !ok || len(br.GetFieldViolations()) != 2 {
		t.Fatalf("bad request detail: %#v", details[0])
	}
	if br.GetFieldViolations()[1].GetField() != "recipients[2]" {
		t.Fatalf("field: %s", br.GetFieldViolations()[1].GetField())
	}
}

func TestToStatus_RetryInfo(t *testing.T) {
	t.Parallel()

	st := status.Convert(toStatus(&errs.NotYetEligibleError{Remaining: 59*time.Minute + 30*time.Second}))
	if st.Code() != codes.FailedPrecondition || st.Message() != "capsule opens in 59 minutes" {
		t.Fatalf("status: %s %q", st.Code(), st.Message())
	}
	ri, ok := st.Details()[0].(*errdetails.RetryInfo)
	if !ok || ri.GetRetryDelay().AsDuration() != 59*time.Minute+30*time.Second {
		t.Fatalf("retry info: %#v", st.Details())
	}

	st = status.Convert(toStatus(&errs.RateLimitedError{RetryAfter: time.Minute}))
	if st.Code() != codes.ResourceExhausted {
		t.Fatalf("code: %s", st.Code())
	}
}
