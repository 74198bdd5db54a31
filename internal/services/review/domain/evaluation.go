package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
	"github.com/standardsja/pms-sub000/internal/platform/id"
)

// EvaluationStatus describes the overall lifecycle of an evaluation report.
// It is derived from the five section statuses except for the terminal
// validated/rejected outcomes, which an external validation step sets.
type EvaluationStatus int

const (
	// EvaluationStatusUnspecified represents an invalid evaluation status value.
	EvaluationStatusUnspecified EvaluationStatus = iota
	// EvaluationStatusPending indicates no section has been started.
	EvaluationStatusPending
	// EvaluationStatusInProgress indicates drafting is underway.
	EvaluationStatusInProgress
	// EvaluationStatusCommitteeReview indicates at least one section awaits review.
	EvaluationStatusCommitteeReview
	// EvaluationStatusCompleted indicates all five sections are verified.
	EvaluationStatusCompleted
	// EvaluationStatusValidated indicates the report passed final validation.
	EvaluationStatusValidated
	// EvaluationStatusRejected indicates the report failed final validation.
	EvaluationStatusRejected
)

var evaluationStatusLabels = map[EvaluationStatus]string{
	EvaluationStatusPending:         "PENDING",
	EvaluationStatusInProgress:      "IN_PROGRESS",
	EvaluationStatusCommitteeReview: "COMMITTEE_REVIEW",
	EvaluationStatusCompleted:       "COMPLETED",
	EvaluationStatusValidated:       "VALIDATED",
	EvaluationStatusRejected:        "REJECTED",
}

// String returns the display label for the status.
func (s EvaluationStatus) String() string {
	if label, ok := evaluationStatusLabels[s]; ok {
		return label
	}
	return "UNSPECIFIED"
}

// ParseEvaluationStatus maps a stored label back to a status.
func ParseEvaluationStatus(value string) (EvaluationStatus, error) {
	for status, label := range evaluationStatusLabels {
		if label == value {
			return status, nil
		}
	}
	return EvaluationStatusUnspecified, fmt.Errorf("unknown evaluation status %q", value)
}

// Terminal reports whether the status is set by the external validation step
// and must never be overwritten by the section-driven recompute.
func (s EvaluationStatus) Terminal() bool {
	return s == EvaluationStatusValidated || s == EvaluationStatusRejected
}

// EvaluatorEntry is one evaluator's independent assessment inside section C.
type EvaluatorEntry struct {
	Comments            string
	RecommendedAction   string
	RecommendedSupplier string
	UpdatedAt           time.Time
}

// SectionContent holds the captured data for one section.
// Fields carries the free-form section form values. Entries is used by
// section C only and keys each evaluator's assessment by user id.
type SectionContent struct {
	Fields  map[string]string
	Entries map[string]EvaluatorEntry
}

// Empty reports whether no content has been captured for the section.
func (c SectionContent) Empty() bool {
	return len(c.Fields) == 0 && len(c.Entries) == 0
}

// Evaluation is the aggregate for one procurement evaluation report: five
// section records with their content, the assignment set, and the derived
// overall status. It is the unit of mutual exclusion and of persistence.
type Evaluation struct {
	ID     string
	Number string
	// RFQNumber and RFQTitle link the report to the originating request.
	RFQNumber string
	RFQTitle  string
	Status    EvaluationStatus
	// CreatedBy is the drafting owner and assignment coordinator.
	CreatedBy   string
	Sections    map[SectionID]SectionRecord
	Contents    map[SectionID]SectionContent
	Assignments []Assignment
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Version guards the read-modify-write commit of the whole aggregate.
	Version int64
}

// CreateEvaluationInput describes the metadata needed to open an evaluation.
type CreateEvaluationInput struct {
	Number    string
	RFQNumber string
	RFQTitle  string
	CreatedBy string
}

// CreateEvaluation creates a new evaluation with all five sections untouched.
func CreateEvaluation(input CreateEvaluationInput, now func() time.Time, idGenerator func() (string, error)) (Evaluation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	number := strings.TrimSpace(input.Number)
	if number == "" {
		return Evaluation{}, apperrors.New(apperrors.CodeEvaluationNumberEmpty, "evaluation number is required")
	}

	evaluationID, err := idGenerator()
	if err != nil {
		return Evaluation{}, fmt.Errorf("generate evaluation id: %w", err)
	}

	createdAt := now().UTC()
	sections := make(map[SectionID]SectionRecord, len(SectionOrder))
	contents := make(map[SectionID]SectionContent, len(SectionOrder))
	for _, section := range SectionOrder {
		sections[section] = SectionRecord{
			Status:    SectionStatusNotStarted,
			UpdatedAt: createdAt,
		}
		contents[section] = SectionContent{}
	}

	return Evaluation{
		ID:        evaluationID,
		Number:    number,
		RFQNumber: strings.TrimSpace(input.RFQNumber),
		RFQTitle:  strings.TrimSpace(input.RFQTitle),
		Status:    EvaluationStatusPending,
		CreatedBy: strings.TrimSpace(input.CreatedBy),
		Sections:  sections,
		Contents:  contents,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// Section returns the record for a section.
func (e Evaluation) Section(section SectionID) (SectionRecord, error) {
	record, ok := e.Sections[section]
	if !ok {
		return SectionRecord{}, apperrors.WithMetadata(
			apperrors.CodeSectionUnknown,
			fmt.Sprintf("evaluation %s has no section %s", e.ID, section),
			map[string]string{"Section": string(section)},
		)
	}
	return record, nil
}

// Content returns the captured content for a section.
func (e Evaluation) Content(section SectionID) SectionContent {
	return e.Contents[section]
}

// SectionUnlocked reports whether the sequential gating rule permits work on
// the section: its predecessor must be verified, and section A has none.
// Gating applies to edit and submit only; committee verify/return is exempt.
func (e Evaluation) SectionUnlocked(section SectionID) bool {
	predecessor, ok := section.Predecessor()
	if !ok {
		return true
	}
	return e.Sections[predecessor].Status == SectionStatusVerified
}

// setSection stores a section record and touches the aggregate timestamp.
func (e *Evaluation) setSection(section SectionID, record SectionRecord, now time.Time) {
	e.Sections[section] = record
	e.UpdatedAt = now.UTC()
}

// Recompute derives the overall status from the five section statuses.
// Terminal validated/rejected statuses are never overwritten.
func (e *Evaluation) Recompute() {
	if e.Status.Terminal() {
		return
	}

	verified := 0
	submitted := 0
	active := 0
	for _, section := range SectionOrder {
		switch e.Sections[section].Status {
		case SectionStatusVerified:
			verified++
		case SectionStatusSubmitted:
			submitted++
		case SectionStatusInProgress, SectionStatusReturned:
			active++
		}
	}

	switch {
	case verified == len(SectionOrder):
		e.Status = EvaluationStatusCompleted
	case submitted > 0:
		e.Status = EvaluationStatusCommitteeReview
	case active > 0 || verified > 0:
		// A partially verified report is still in progress even when the
		// remaining sections are untouched.
		e.Status = EvaluationStatusInProgress
	default:
		e.Status = EvaluationStatusPending
	}
}

// Clone returns a deep copy of the aggregate so callers can mutate a working
// copy without touching the loaded snapshot.
func (e Evaluation) Clone() Evaluation {
	cloned := e
	cloned.Sections = make(map[SectionID]SectionRecord, len(e.Sections))
	for section, record := range e.Sections {
		cloned.Sections[section] = record
	}
	cloned.Contents = make(map[SectionID]SectionContent, len(e.Contents))
	for section, content := range e.Contents {
		clonedContent := SectionContent{}
		if content.Fields != nil {
			clonedContent.Fields = make(map[string]string, len(content.Fields))
			for key, value := range content.Fields {
				clonedContent.Fields[key] = value
			}
		}
		if content.Entries != nil {
			clonedContent.Entries = make(map[string]EvaluatorEntry, len(content.Entries))
			for userID, entry := range content.Entries {
				clonedContent.Entries[userID] = entry
			}
		}
		cloned.Contents[section] = clonedContent
	}
	cloned.Assignments = make([]Assignment, len(e.Assignments))
	for i, assignment := range e.Assignments {
		copied := assignment
		copied.Sections = append([]SectionID(nil), assignment.Sections...)
		cloned.Assignments[i] = copied
	}
	return cloned
}
