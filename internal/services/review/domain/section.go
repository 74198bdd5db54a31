package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
)

// SectionID names one of the five evaluation report sections.
type SectionID string

const (
	SectionA SectionID = "A"
	SectionB SectionID = "B"
	SectionC SectionID = "C"
	SectionD SectionID = "D"
	SectionE SectionID = "E"
)

// SectionOrder lists the sections in their fixed review order.
var SectionOrder = []SectionID{SectionA, SectionB, SectionC, SectionD, SectionE}

// ParseSectionID validates a section identifier.
func ParseSectionID(value string) (SectionID, error) {
	candidate := SectionID(strings.ToUpper(strings.TrimSpace(value)))
	for _, section := range SectionOrder {
		if candidate == section {
			return section, nil
		}
	}
	return "", apperrors.WithMetadata(
		apperrors.CodeSectionUnknown,
		fmt.Sprintf("unknown section %q", value),
		map[string]string{"Section": value},
	)
}

// Predecessor returns the section immediately before this one in review
// order, or false for section A.
func (s SectionID) Predecessor() (SectionID, bool) {
	for i, section := range SectionOrder {
		if section == s && i > 0 {
			return SectionOrder[i-1], true
		}
	}
	return "", false
}

// SectionStatus describes the lifecycle of one report section.
type SectionStatus int

const (
	// SectionStatusUnspecified represents an invalid section status value.
	SectionStatusUnspecified SectionStatus = iota
	// SectionStatusNotStarted indicates no content has been written yet.
	SectionStatusNotStarted
	// SectionStatusInProgress indicates the section is being drafted.
	SectionStatusInProgress
	// SectionStatusSubmitted indicates the section awaits committee review.
	SectionStatusSubmitted
	// SectionStatusVerified indicates the committee approved the section.
	SectionStatusVerified
	// SectionStatusReturned indicates the committee sent the section back.
	SectionStatusReturned
)

// sectionStatusLabels maps statuses to their wire/display names.
var sectionStatusLabels = map[SectionStatus]string{
	SectionStatusNotStarted: "NOT_STARTED",
	SectionStatusInProgress: "IN_PROGRESS",
	SectionStatusSubmitted:  "SUBMITTED",
	SectionStatusVerified:   "VERIFIED",
	SectionStatusReturned:   "RETURNED",
}

// String returns the display label for the status.
func (s SectionStatus) String() string {
	if label, ok := sectionStatusLabels[s]; ok {
		return label
	}
	return "UNSPECIFIED"
}

// ParseSectionStatus maps a stored label back to a status.
func ParseSectionStatus(value string) (SectionStatus, error) {
	for status, label := range sectionStatusLabels {
		if label == value {
			return status, nil
		}
	}
	return SectionStatusUnspecified, fmt.Errorf("unknown section status %q", value)
}

// SectionRecord tracks the workflow state of one section.
type SectionRecord struct {
	Status SectionStatus
	// Notes holds reviewer feedback, set on return and optionally on verify.
	Notes string
	// VerifierID references the committee member who verified or returned
	// the section.
	VerifierID  string
	SubmittedAt *time.Time
	VerifiedAt  *time.Time
	UpdatedAt   time.Time
}

// SectionEvent names a section lifecycle transition trigger.
type SectionEvent string

const (
	SectionEventEdit   SectionEvent = "edit"
	SectionEventSubmit SectionEvent = "submit"
	SectionEventVerify SectionEvent = "verify"
	SectionEventReturn SectionEvent = "return"
)

// sectionTransitionTarget is the single source of truth for the section
// state machine. Every call site transitions through it.
func sectionTransitionTarget(from SectionStatus, event SectionEvent) (SectionStatus, bool) {
	switch event {
	case SectionEventEdit:
		if from == SectionStatusNotStarted || from == SectionStatusReturned {
			return SectionStatusInProgress, true
		}
	case SectionEventSubmit:
		if from == SectionStatusInProgress || from == SectionStatusReturned {
			return SectionStatusSubmitted, true
		}
	case SectionEventVerify:
		if from == SectionStatusSubmitted {
			return SectionStatusVerified, true
		}
	case SectionEventReturn:
		if from == SectionStatusSubmitted {
			return SectionStatusReturned, true
		}
	}
	return SectionStatusUnspecified, false
}

// invalidTransitionError builds the failure for a disallowed section transition.
func invalidTransitionError(section SectionID, from SectionStatus, event SectionEvent) error {
	target := "-"
	if to, ok := sectionTransitionTarget(from, event); ok {
		target = to.String()
	}
	return apperrors.WithMetadata(
		apperrors.CodeSectionInvalidTransition,
		fmt.Sprintf("section %s cannot %s from %s", section, event, from),
		map[string]string{
			"Section":    string(section),
			"FromStatus": from.String(),
			"ToStatus":   target,
			"Event":      string(event),
		},
	)
}

// gatedTransitionError builds the failure for a section blocked by its
// unverified predecessor.
func gatedTransitionError(section SectionID, predecessor SectionID, from SectionStatus) error {
	return apperrors.WithMetadata(
		apperrors.CodeSectionInvalidTransition,
		fmt.Sprintf("section %s is locked until section %s is verified", section, predecessor),
		map[string]string{
			"Section":     string(section),
			"FromStatus":  from.String(),
			"ToStatus":    "-",
			"Reason":      "gated",
			"Predecessor": string(predecessor),
		},
	)
}

// EditSection moves a section into drafting. Records already in progress are
// returned unchanged so repeated saves do not churn state.
func EditSection(section SectionID, record SectionRecord, now time.Time) (SectionRecord, error) {
	if record.Status == SectionStatusInProgress {
		record.UpdatedAt = now.UTC()
		return record, nil
	}
	target, ok := sectionTransitionTarget(record.Status, SectionEventEdit)
	if !ok {
		return record, invalidTransitionError(section, record.Status, SectionEventEdit)
	}
	record.Status = target
	record.UpdatedAt = now.UTC()
	return record, nil
}

// SubmitSection hands a drafted or returned section to the committee.
func SubmitSection(section SectionID, record SectionRecord, now time.Time) (SectionRecord, error) {
	target, ok := sectionTransitionTarget(record.Status, SectionEventSubmit)
	if !ok {
		return record, invalidTransitionError(section, record.Status, SectionEventSubmit)
	}
	submittedAt := now.UTC()
	record.Status = target
	record.SubmittedAt = &submittedAt
	record.UpdatedAt = submittedAt
	return record, nil
}

// VerifySection approves a submitted section. Notes are optional.
// Verifying an already verified section fails; bulk callers pre-filter by
// status instead of relying on a silent no-op.
func VerifySection(section SectionID, record SectionRecord, verifierID string, notes string, now time.Time) (SectionRecord, error) {
	target, ok := sectionTransitionTarget(record.Status, SectionEventVerify)
	if !ok {
		return record, invalidTransitionError(section, record.Status, SectionEventVerify)
	}
	verifiedAt := now.UTC()
	record.Status = target
	record.Notes = strings.TrimSpace(notes)
	record.VerifierID = verifierID
	record.VerifiedAt = &verifiedAt
	record.UpdatedAt = verifiedAt
	return record, nil
}

// ReturnSection sends a submitted section back to its authors with feedback.
// Notes are mandatory.
func ReturnSection(section SectionID, record SectionRecord, verifierID string, notes string, now time.Time) (SectionRecord, error) {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return record, apperrors.WithMetadata(
			apperrors.CodeSectionNotesRequired,
			fmt.Sprintf("notes are required to return section %s", section),
			map[string]string{"Section": string(section)},
		)
	}
	target, ok := sectionTransitionTarget(record.Status, SectionEventReturn)
	if !ok {
		return record, invalidTransitionError(section, record.Status, SectionEventReturn)
	}
	returnedAt := now.UTC()
	record.Status = target
	record.Notes = trimmed
	record.VerifierID = verifierID
	record.UpdatedAt = returnedAt
	return record, nil
}

// forceReturnSection applies the return outcome to any section that is not
// yet verified and not untouched. Bulk return uses it so drafted and
// previously returned sections also pick up the committee's feedback.
func forceReturnSection(section SectionID, record SectionRecord, verifierID string, notes string, now time.Time) (SectionRecord, error) {
	if record.Status == SectionStatusSubmitted {
		return ReturnSection(section, record, verifierID, notes, now)
	}
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return record, apperrors.WithMetadata(
			apperrors.CodeSectionNotesRequired,
			fmt.Sprintf("notes are required to return section %s", section),
			map[string]string{"Section": string(section)},
		)
	}
	if record.Status != SectionStatusInProgress && record.Status != SectionStatusReturned {
		return record, invalidTransitionError(section, record.Status, SectionEventReturn)
	}
	returnedAt := now.UTC()
	record.Status = SectionStatusReturned
	record.Notes = trimmed
	record.VerifierID = verifierID
	record.UpdatedAt = returnedAt
	return record, nil
}
