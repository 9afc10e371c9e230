// Package errors provides structured domain error handling for the
// verification backend.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeUIDEmpty         Code = "UID_EMPTY"
	CodeContestNameEmpty Code = "CONTEST_NAME_EMPTY"
	CodeActionInvalid    Code = "ACTION_INVALID"
	CodeStatusInvalid    Code = "STATUS_INVALID"

	// Lookup errors
	CodeParticipantNotFound Code = "PARTICIPANT_NOT_FOUND"
	CodeContestNotFound     Code = "CONTEST_NOT_FOUND"
	CodeSubmissionNotFound  Code = "SUBMISSION_NOT_FOUND"

	// Credential errors
	CodeTokenMismatch Code = "TOKEN_MISMATCH"
	CodeUnauthorized  Code = "UNAUTHORIZED"

	// State errors
	CodeContestNameTaken Code = "CONTEST_NAME_TAKEN"
	CodeNoActiveContest  Code = "NO_ACTIVE_CONTEST"

	// Collaborator errors
	CodeGeoLookupFailed Code = "GEO_LOOKUP_FAILED"

	// Storage errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes onto the canonical gRPC code vocabulary. The
// HTTP boundary derives response statuses from this mapping so both surfaces
// stay in agreement about each failure class.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeUIDEmpty,
		CodeContestNameEmpty,
		CodeActionInvalid,
		CodeStatusInvalid,
		CodeGeoLookupFailed:
		return codes.InvalidArgument

	// NotFound - resource doesn't exist
	case CodeParticipantNotFound,
		CodeContestNotFound,
		CodeSubmissionNotFound:
		return codes.NotFound

	// PermissionDenied - credential does not grant the operation
	case CodeTokenMismatch:
		return codes.PermissionDenied

	// Unauthenticated - caller identity missing or unverifiable
	case CodeUnauthorized:
		return codes.Unauthenticated

	// AlreadyExists - uniqueness conflicts
	case CodeContestNameTaken:
		return codes.AlreadyExists

	// FailedPrecondition - state doesn't allow operation
	case CodeNoActiveContest:
		return codes.FailedPrecondition

	// Unavailable - store unreachable or lock wait exceeded; safe to retry
	case CodeStoreUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
