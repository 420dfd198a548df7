package catalog

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errDomain = "catalog"

// Reasons attached to source errors as errdetails.ErrorInfo.
const (
	ReasonUnavailable = "CATALOG_UNAVAILABLE"
	ReasonCorrupt     = "CATALOG_CORRUPT"
)

func errUnavailable(msg string) error {
	return withReason(codes.Unavailable, ReasonUnavailable, msg)
}

func errInternal(reason, msg string) error {
	return withReason(codes.Internal, reason, msg)
}

func withReason(code codes.Code, reason, msg string) error {
	st := status.New(code, msg)
	st2, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errDomain})
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}
