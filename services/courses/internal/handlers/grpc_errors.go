package handlers

import (
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/course-platform/internal/platform/api"
)

// writeGRPCError maps a catalog source error to the JSON error envelope.
func writeGRPCError(w http.ResponseWriter, requestID string, err error) {
	st, ok := status.FromError(err)
	if !ok {
		api.Internal(w, requestID)
		return
	}

	code := "INTERNAL"
	var details map[string]any
	for _, d := range st.Details() {
		if v, ok := d.(*errdetails.ErrorInfo); ok && v.GetReason() != "" {
			code = v.GetReason()
			if v.GetDomain() != "" {
				details = map[string]any{"domain": v.GetDomain()}
			}
		}
	}

	switch st.Code() {
	case codes.InvalidArgument:
		api.BadRequest(w, code, st.Message(), requestID, details)
	case codes.NotFound:
		api.NotFound(w, code, st.Message(), requestID)
	case codes.AlreadyExists:
		api.Conflict(w, code, st.Message(), requestID, details)
	case codes.Unavailable, codes.DeadlineExceeded:
		api.Unavailable(w, code, st.Message(), requestID)
	default:
		api.Internal(w, requestID)
	}
}
