package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// HTTPStatus maps an error to an HTTP response status via the canonical gRPC
// code vocabulary. It returns fallback for non-domain errors and unmapped
// codes.
func HTTPStatus(err error, fallback int) int {
	if err == nil {
		return http.StatusOK
	}
	switch CodeOf(err).GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return fallback
	}
}
