package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"
	// CodeInvalidRequest represents a malformed request payload.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Evaluation errors
	CodeEvaluationNotFound      Code = "EVALUATION_NOT_FOUND"
	CodeEvaluationNumberEmpty   Code = "EVALUATION_NUMBER_EMPTY"
	CodeEvaluationStatusTerminal Code = "EVALUATION_STATUS_TERMINAL"

	// Section errors
	CodeSectionUnknown           Code = "SECTION_UNKNOWN"
	CodeSectionInvalidTransition Code = "SECTION_INVALID_TRANSITION"
	CodeSectionContentRequired   Code = "SECTION_CONTENT_REQUIRED"
	CodeSectionNotesRequired     Code = "SECTION_NOTES_REQUIRED"

	// Capability errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeUnauthorized    Code = "UNAUTHORIZED"

	// Assignment errors
	CodeAssignmentNotFound         Code = "ASSIGNMENT_NOT_FOUND"
	CodeAssignmentSectionsRequired Code = "ASSIGNMENT_SECTIONS_REQUIRED"
	CodeAssignmentUsersRequired    Code = "ASSIGNMENT_USERS_REQUIRED"
	CodeAssignmentOverlap          Code = "ASSIGNMENT_OVERLAP"
	CodeAssignmentCompleted        Code = "ASSIGNMENT_COMPLETED"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeInvalidRequest,
		CodeEvaluationNumberEmpty,
		CodeSectionUnknown,
		CodeSectionContentRequired,
		CodeSectionNotesRequired,
		CodeAssignmentSectionsRequired,
		CodeAssignmentUsersRequired:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeSectionInvalidTransition,
		CodeEvaluationStatusTerminal,
		CodeAssignmentOverlap,
		CodeAssignmentCompleted:
		return codes.FailedPrecondition

	// Unauthenticated - caller identity is missing or invalid
	case CodeUnauthenticated:
		return codes.Unauthenticated

	// PermissionDenied - capability resolver denied the action
	case CodeUnauthorized:
		return codes.PermissionDenied

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeEvaluationNotFound,
		CodeAssignmentNotFound:
		return codes.NotFound

	// Aborted - concurrent mutation detected on commit
	case CodeVersionConflict:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
