package domain

import (
	"fmt"
	"time"

	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
)

// Assignment grants one user edit rights over a subset of sections for one
// evaluation. An assignment stays active until its assignee completes it or
// the coordinator removes it.
type Assignment struct {
	ID           string
	EvaluationID string
	UserID       string
	Sections     []SectionID
	Completed    bool
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Active reports whether the assignment still grants edit rights.
func (a Assignment) Active() bool {
	return !a.Completed
}

// Covers reports whether the assignment includes the section.
func (a Assignment) Covers(section SectionID) bool {
	for _, assigned := range a.Sections {
		if assigned == section {
			return true
		}
	}
	return false
}

// ActiveAssignmentFor returns the user's active assignment on the
// evaluation, if any.
func ActiveAssignmentFor(assignments []Assignment, userID string) (Assignment, bool) {
	for _, assignment := range assignments {
		if assignment.Active() && assignment.UserID == userID {
			return assignment, true
		}
	}
	return Assignment{}, false
}

// ActiveAssigneesFor returns the user ids of active assignments covering the
// section.
func ActiveAssigneesFor(assignments []Assignment, section SectionID) []string {
	var users []string
	for _, assignment := range assignments {
		if assignment.Active() && assignment.Covers(section) {
			users = append(users, assignment.UserID)
		}
	}
	return users
}

// checkAssignmentOverlap rejects granting a section to a user when another
// user already holds an active assignment covering it. Section C is exempt:
// multiple evaluators each own an independent per-user entry there.
func checkAssignmentOverlap(assignments []Assignment, userID string, section SectionID) error {
	if section == SectionC {
		return nil
	}
	for _, assignee := range ActiveAssigneesFor(assignments, section) {
		if assignee != userID {
			return apperrors.WithMetadata(
				apperrors.CodeAssignmentOverlap,
				fmt.Sprintf("section %s is already assigned to user %s", section, assignee),
				map[string]string{"Section": string(section), "AssignedTo": assignee},
			)
		}
	}
	return nil
}
