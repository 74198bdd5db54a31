package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeInvalidRequest           = "INVALID_REQUEST"
	CodeEvaluationNotFound       = "EVALUATION_NOT_FOUND"
	CodeEvaluationNumberEmpty    = "EVALUATION_NUMBER_EMPTY"
	CodeEvaluationStatusTerminal = "EVALUATION_STATUS_TERMINAL"
	CodeSectionUnknown           = "SECTION_UNKNOWN"
	CodeSectionInvalidTransition = "SECTION_INVALID_TRANSITION"
	CodeSectionContentRequired   = "SECTION_CONTENT_REQUIRED"
	CodeSectionNotesRequired     = "SECTION_NOTES_REQUIRED"
	CodeUnauthenticated          = "UNAUTHENTICATED"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeAssignmentNotFound       = "ASSIGNMENT_NOT_FOUND"
	CodeAssignmentSectionsRequired = "ASSIGNMENT_SECTIONS_REQUIRED"
	CodeAssignmentUsersRequired  = "ASSIGNMENT_USERS_REQUIRED"
	CodeAssignmentOverlap        = "ASSIGNMENT_OVERLAP"
	CodeAssignmentCompleted      = "ASSIGNMENT_COMPLETED"
	CodeNotFound                 = "NOT_FOUND"
	CodeVersionConflict          = "VERSION_CONFLICT"
)

func init() {
	RegisterCatalog(BaseLocale, NewCatalog(BaseLocale, map[Code]string{
		CodeInvalidRequest:           "The request could not be understood.",
		CodeEvaluationNotFound:       "Evaluation report not found.",
		CodeEvaluationNumberEmpty:    "An evaluation number is required.",
		CodeEvaluationStatusTerminal: "The evaluation has been finalized and can no longer change.",
		CodeSectionUnknown:           "Section {{.Section}} is not part of this evaluation.",
		CodeSectionInvalidTransition: "Section {{.Section}} cannot move from {{.FromStatus}} to {{.ToStatus}}.",
		CodeSectionContentRequired:   "Section content is required before submitting.",
		CodeSectionNotesRequired:     "Reviewer notes are required when returning a section.",
		CodeUnauthenticated:          "Sign in to continue.",
		CodeUnauthorized:             "You are not allowed to perform this action.",
		CodeAssignmentNotFound:       "Assignment not found.",
		CodeAssignmentSectionsRequired: "At least one section must be selected.",
		CodeAssignmentUsersRequired:  "At least one evaluator must be selected.",
		CodeAssignmentOverlap:        "Section {{.Section}} is already assigned to another evaluator.",
		CodeAssignmentCompleted:      "The assignment has already been completed.",
		CodeNotFound:                 "The requested record was not found.",
		CodeVersionConflict:          "The evaluation changed while you were editing. Please retry.",
	}))
}
