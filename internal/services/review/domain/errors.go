package domain

import apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"

var (
	// ErrEvaluationNotFound indicates the evaluation id resolves to nothing.
	ErrEvaluationNotFound = apperrors.New(apperrors.CodeEvaluationNotFound, "evaluation not found")
	// ErrEvaluationTerminal indicates a mutation on a finalized evaluation.
	ErrEvaluationTerminal = apperrors.New(apperrors.CodeEvaluationStatusTerminal, "evaluation has been finalized")
	// ErrNotesRequired indicates a return was attempted without reviewer notes.
	ErrNotesRequired = apperrors.New(apperrors.CodeSectionNotesRequired, "reviewer notes are required")
	// ErrContentRequired indicates a save or submit without section content.
	ErrContentRequired = apperrors.New(apperrors.CodeSectionContentRequired, "section content is required")
	// ErrAssignmentNotFound indicates the assignment id resolves to nothing.
	ErrAssignmentNotFound = apperrors.New(apperrors.CodeAssignmentNotFound, "assignment not found")
	// ErrAssignmentCompleted indicates a mutation on a completed assignment.
	ErrAssignmentCompleted = apperrors.New(apperrors.CodeAssignmentCompleted, "assignment is already completed")
	// ErrAssignmentOverlap indicates two users would own the same section.
	ErrAssignmentOverlap = apperrors.New(apperrors.CodeAssignmentOverlap, "section is already assigned to another user")
	// ErrSectionsRequired indicates an assignment without sections.
	ErrSectionsRequired = apperrors.New(apperrors.CodeAssignmentSectionsRequired, "at least one section is required")
	// ErrUsersRequired indicates an assignment without users.
	ErrUsersRequired = apperrors.New(apperrors.CodeAssignmentUsersRequired, "at least one user is required")
	// ErrVersionConflict indicates a concurrent mutation was detected on commit.
	ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "evaluation was modified concurrently")
)
