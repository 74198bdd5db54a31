package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
	"github.com/standardsja/pms-sub000/internal/platform/id"
)

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("evaluation store is not configured")
	// ErrIDGeneratorNotConfigured indicates an ID generator is required.
	ErrIDGeneratorNotConfigured = errors.New("evaluation id generator is not configured")
)

// Store is the persistence boundary for the workflow engine. GetEvaluation
// loads the full aggregate or fails with ErrEvaluationNotFound.
// PutEvaluation persists the whole aggregate atomically and fails with
// ErrVersionConflict when the stored version no longer matches.
type Store interface {
	GetEvaluation(ctx context.Context, evaluationID string) (Evaluation, error)
	PutEvaluation(ctx context.Context, evaluation Evaluation) error
}

// Notifier receives fire-and-forget workflow signals. Failures are logged by
// the service and never roll back a committed transition.
type Notifier interface {
	EvaluationCompleted(ctx context.Context, evaluation Evaluation) error
	SectionReturned(ctx context.Context, evaluation Evaluation, section SectionID, notes string) error
	AssignmentCompleted(ctx context.Context, evaluation Evaluation, assignment Assignment) error
}

// Service exposes the section workflow operations. Operations against the
// same evaluation are serialized by a per-evaluation lock; operations
// against different evaluations proceed in parallel.
type Service struct {
	store    Store
	notifier Notifier
	clock    func() time.Time
	newID    func() (string, error)

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewService constructs the workflow operations service.
func NewService(store Store, notifier Notifier, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		newID:    newID,
		locks:    map[string]*sync.Mutex{},
	}
}

// evaluationLock returns the mutex serializing work on one evaluation id.
func (s *Service) evaluationLock(evaluationID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[evaluationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[evaluationID] = lock
	}
	return lock
}

// mutate runs apply against a working copy of the aggregate and commits it.
// Finalized (validated or rejected) evaluations reject every mutation.
// A version conflict on commit is retried once against a fresh read; a
// second conflict is surfaced to the caller. The apply function must be
// re-runnable: it is invoked again on retry with a fresh working copy.
func (s *Service) mutate(ctx context.Context, evaluationID string, apply func(*Evaluation) error) (Evaluation, error) {
	if s == nil || s.store == nil {
		return Evaluation{}, ErrStoreNotConfigured
	}

	lock := s.evaluationLock(evaluationID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; ; attempt++ {
		snapshot, err := s.store.GetEvaluation(ctx, evaluationID)
		if err != nil {
			return Evaluation{}, err
		}

		if snapshot.Status.Terminal() {
			return Evaluation{}, ErrEvaluationTerminal
		}

		working := snapshot.Clone()
		if err := apply(&working); err != nil {
			return Evaluation{}, err
		}

		err = s.store.PutEvaluation(ctx, working)
		if err == nil {
			working.Version++
			return working, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt > 0 {
			return Evaluation{}, err
		}
	}
}

// notify dispatches a workflow signal and logs failures without affecting
// the committed transition.
func (s *Service) notify(what string, err error) {
	if err != nil {
		log.Printf("review notification failed kind=%s error=%v", what, err)
	}
}

// GetEvaluation loads the full aggregate.
func (s *Service) GetEvaluation(ctx context.Context, evaluationID string) (Evaluation, error) {
	if s == nil || s.store == nil {
		return Evaluation{}, ErrStoreNotConfigured
	}
	return s.store.GetEvaluation(ctx, evaluationID)
}

// OpenEvaluationInput describes a new evaluation report.
type OpenEvaluationInput struct {
	Actor     Actor
	Number    string
	RFQNumber string
	RFQTitle  string
}

// OpenEvaluation creates and persists a new evaluation with all sections
// untouched. The caller becomes the drafting owner.
func (s *Service) OpenEvaluation(ctx context.Context, input OpenEvaluationInput) (Evaluation, error) {
	if s == nil || s.store == nil {
		return Evaluation{}, ErrStoreNotConfigured
	}
	if !input.Actor.Drafting {
		return Evaluation{}, unauthorized("open evaluation")
	}

	evaluation, err := CreateEvaluation(CreateEvaluationInput{
		Number:    input.Number,
		RFQNumber: input.RFQNumber,
		RFQTitle:  input.RFQTitle,
		CreatedBy: input.Actor.UserID,
	}, s.clock, s.newID)
	if err != nil {
		return Evaluation{}, err
	}

	if err := s.store.PutEvaluation(ctx, evaluation); err != nil {
		return Evaluation{}, err
	}
	evaluation.Version++
	return evaluation, nil
}

// SaveSectionInput captures a drafting write to one section.
type SaveSectionInput struct {
	Actor        Actor
	EvaluationID string
	Section      SectionID
	// Fields merges into the section's form values.
	Fields map[string]string
	// Entry records the actor's own evaluator assessment (section C).
	Entry *EvaluatorEntry
	// StructureEdit marks a table-shape edit backed by a transient grant.
	StructureEdit bool
}

// SaveSection persists section content, moving an untouched or returned
// section into drafting on first write.
func (s *Service) SaveSection(ctx context.Context, input SaveSectionInput) (Evaluation, error) {
	return s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		record, err := working.Section(input.Section)
		if err != nil {
			return err
		}

		caps := ResolveSectionCapabilities(input.Actor, *working, input.Section)
		allowed := caps.CanEdit
		if input.StructureEdit {
			allowed = allowed || caps.CanEditStructure
		}
		if !allowed {
			return unauthorized(fmt.Sprintf("edit section %s", input.Section))
		}

		if len(input.Fields) == 0 && input.Entry == nil {
			return ErrContentRequired
		}

		if record.Status == SectionStatusNotStarted && !working.SectionUnlocked(input.Section) {
			predecessor, _ := input.Section.Predecessor()
			return gatedTransitionError(input.Section, predecessor, record.Status)
		}

		now := s.clock()
		content := working.Content(input.Section)

		if caps.OwnEntryOnly {
			// Multiple evaluators share section C: each writes only
			// their own entry.
			if input.Entry == nil || len(input.Fields) > 0 {
				return unauthorized("edit own evaluator entry only")
			}
		}
		if len(input.Fields) > 0 {
			if content.Fields == nil {
				content.Fields = map[string]string{}
			}
			for key, value := range input.Fields {
				content.Fields[key] = value
			}
		}
		if input.Entry != nil {
			if content.Entries == nil {
				content.Entries = map[string]EvaluatorEntry{}
			}
			entry := *input.Entry
			entry.UpdatedAt = now.UTC()
			content.Entries[input.Actor.UserID] = entry
		}

		record, err = EditSection(input.Section, record, now)
		if err != nil {
			return err
		}

		working.Contents[input.Section] = content
		working.setSection(input.Section, record, now)
		working.Recompute()
		return nil
	})
}

// SubmitSectionInput hands one section to the committee.
type SubmitSectionInput struct {
	Actor        Actor
	EvaluationID string
	Section      SectionID
}

// SubmitSection submits a drafted or returned section for committee review.
// The section's predecessor must already be verified.
func (s *Service) SubmitSection(ctx context.Context, input SubmitSectionInput) (Evaluation, error) {
	return s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		record, err := working.Section(input.Section)
		if err != nil {
			return err
		}

		caps := ResolveSectionCapabilities(input.Actor, *working, input.Section)
		if !caps.CanSubmit {
			return unauthorized(fmt.Sprintf("submit section %s", input.Section))
		}

		if !working.SectionUnlocked(input.Section) {
			predecessor, _ := input.Section.Predecessor()
			return gatedTransitionError(input.Section, predecessor, record.Status)
		}

		if working.Content(input.Section).Empty() {
			return ErrContentRequired
		}

		record, err = SubmitSection(input.Section, record, s.clock())
		if err != nil {
			return err
		}

		working.setSection(input.Section, record, s.clock())
		working.Recompute()
		return nil
	})
}

// VerifySectionInput approves one submitted section.
type VerifySectionInput struct {
	Actor        Actor
	EvaluationID string
	Section      SectionID
	Notes        string
}

// VerifySection marks a submitted section as verified. Notes are optional.
func (s *Service) VerifySection(ctx context.Context, input VerifySectionInput) (Evaluation, error) {
	wasCompleted := false
	updated, err := s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		wasCompleted = false

		record, err := working.Section(input.Section)
		if err != nil {
			return err
		}

		caps := ResolveSectionCapabilities(input.Actor, *working, input.Section)
		if !caps.CanVerify {
			return unauthorized(fmt.Sprintf("verify section %s", input.Section))
		}

		priorStatus := working.Status
		record, err = VerifySection(input.Section, record, input.Actor.UserID, input.Notes, s.clock())
		if err != nil {
			return err
		}

		working.setSection(input.Section, record, s.clock())
		working.Recompute()
		wasCompleted = priorStatus != EvaluationStatusCompleted && working.Status == EvaluationStatusCompleted
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}

	if wasCompleted && s.notifier != nil {
		s.notify("evaluation-completed", s.notifier.EvaluationCompleted(ctx, updated))
	}
	return updated, nil
}

// ReturnSectionInput sends one submitted section back with feedback.
type ReturnSectionInput struct {
	Actor        Actor
	EvaluationID string
	Section      SectionID
	Notes        string
}

// ReturnSection sends a submitted section back to its authors. Notes are
// mandatory regardless of the caller's role.
func (s *Service) ReturnSection(ctx context.Context, input ReturnSectionInput) (Evaluation, error) {
	if strings.TrimSpace(input.Notes) == "" {
		return Evaluation{}, ErrNotesRequired
	}

	updated, err := s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		record, err := working.Section(input.Section)
		if err != nil {
			return err
		}

		caps := ResolveSectionCapabilities(input.Actor, *working, input.Section)
		if !caps.CanReturn {
			return unauthorized(fmt.Sprintf("return section %s", input.Section))
		}

		record, err = ReturnSection(input.Section, record, input.Actor.UserID, input.Notes, s.clock())
		if err != nil {
			return err
		}

		working.setSection(input.Section, record, s.clock())
		working.Recompute()
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}

	if s.notifier != nil {
		s.notify("section-returned", s.notifier.SectionReturned(ctx, updated, input.Section, strings.TrimSpace(input.Notes)))
	}
	return updated, nil
}

// BulkResult reports which sections a bulk operation touched and which it
// skipped because their status already resolved them.
type BulkResult struct {
	Applied []SectionID
	Skipped []SectionID
}

// VerifyAllInput approves every currently submitted section.
type VerifyAllInput struct {
	Actor        Actor
	EvaluationID string
	Notes        string
}

// VerifyAll verifies every submitted section in fixed A-to-E order and
// reports the sections it applied versus skipped. Sections that are not
// submitted are skipped, never failed: the caller computes its target set
// before calling and races with other reviewers are expected.
func (s *Service) VerifyAll(ctx context.Context, input VerifyAllInput) (Evaluation, BulkResult, error) {
	var result BulkResult
	wasCompleted := false

	updated, err := s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		result = BulkResult{}
		wasCompleted = false

		caps := ResolveSectionCapabilities(input.Actor, *working, SectionA)
		if !caps.CanVerify {
			return unauthorized("bulk verify sections")
		}

		priorStatus := working.Status
		now := s.clock()
		for _, section := range SectionOrder {
			record := working.Sections[section]
			if record.Status != SectionStatusSubmitted {
				result.Skipped = append(result.Skipped, section)
				continue
			}
			record, err := VerifySection(section, record, input.Actor.UserID, input.Notes, now)
			if err != nil {
				result.Skipped = append(result.Skipped, section)
				continue
			}
			working.setSection(section, record, now)
			result.Applied = append(result.Applied, section)
		}

		working.Recompute()
		wasCompleted = priorStatus != EvaluationStatusCompleted && working.Status == EvaluationStatusCompleted
		return nil
	})
	if err != nil {
		return Evaluation{}, BulkResult{}, err
	}

	if wasCompleted && s.notifier != nil {
		s.notify("evaluation-completed", s.notifier.EvaluationCompleted(ctx, updated))
	}
	return updated, result, nil
}

// ReturnAllInput sends every unresolved section back with shared feedback.
type ReturnAllInput struct {
	Actor        Actor
	EvaluationID string
	Notes        string
}

// ReturnAll returns every section that is not yet verified and not untouched
// (submitted, in progress, or previously returned), in fixed A-to-E order.
// Notes are mandatory and shared across the batch.
func (s *Service) ReturnAll(ctx context.Context, input ReturnAllInput) (Evaluation, BulkResult, error) {
	if strings.TrimSpace(input.Notes) == "" {
		return Evaluation{}, BulkResult{}, ErrNotesRequired
	}

	var result BulkResult
	updated, err := s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		result = BulkResult{}

		caps := ResolveSectionCapabilities(input.Actor, *working, SectionA)
		if !caps.CanReturn {
			return unauthorized("bulk return sections")
		}

		now := s.clock()
		for _, section := range SectionOrder {
			record := working.Sections[section]
			switch record.Status {
			case SectionStatusSubmitted, SectionStatusInProgress, SectionStatusReturned:
				record, err := forceReturnSection(section, record, input.Actor.UserID, input.Notes, now)
				if err != nil {
					result.Skipped = append(result.Skipped, section)
					continue
				}
				working.setSection(section, record, now)
				result.Applied = append(result.Applied, section)
			default:
				result.Skipped = append(result.Skipped, section)
			}
		}

		working.Recompute()
		return nil
	})
	if err != nil {
		return Evaluation{}, BulkResult{}, err
	}

	if s.notifier != nil {
		for _, section := range result.Applied {
			s.notify("section-returned", s.notifier.SectionReturned(ctx, updated, section, strings.TrimSpace(input.Notes)))
		}
	}
	return updated, result, nil
}

// AssignEvaluatorsInput grants section edit rights to users.
type AssignEvaluatorsInput struct {
	Actor        Actor
	EvaluationID string
	UserIDs      []string
	Sections     []SectionID
}

// AssignEvaluators creates or merges assignments granting each user edit
// rights over the listed sections. Granting a section other than C to a
// second user while another user's active assignment covers it is rejected.
func (s *Service) AssignEvaluators(ctx context.Context, input AssignEvaluatorsInput) (Evaluation, error) {
	if s != nil && s.newID == nil {
		return Evaluation{}, ErrIDGeneratorNotConfigured
	}

	return s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		if !CanManageAssignments(input.Actor, *working) {
			return unauthorized("assign evaluators")
		}

		userIDs := normalizeUserIDs(input.UserIDs)
		if len(userIDs) == 0 {
			return ErrUsersRequired
		}
		sections, err := normalizeSections(input.Sections)
		if err != nil {
			return err
		}
		if len(sections) == 0 {
			return ErrSectionsRequired
		}

		now := s.clock().UTC()
		for _, userID := range userIDs {
			for _, section := range sections {
				if err := checkAssignmentOverlap(working.Assignments, userID, section); err != nil {
					return err
				}
			}

			if existing, ok := ActiveAssignmentFor(working.Assignments, userID); ok {
				merged := existing
				for _, section := range sections {
					if !merged.Covers(section) {
						merged.Sections = append(merged.Sections, section)
					}
				}
				replaceAssignment(working, merged)
				continue
			}

			assignmentID, err := s.newID()
			if err != nil {
				return fmt.Errorf("generate assignment id: %w", err)
			}
			working.Assignments = append(working.Assignments, Assignment{
				ID:           assignmentID,
				EvaluationID: working.ID,
				UserID:       userID,
				Sections:     append([]SectionID(nil), sections...),
				CreatedAt:    now,
			})
		}

		working.UpdatedAt = now
		return nil
	})
}

// RemoveAssignmentInput revokes one assignment.
type RemoveAssignmentInput struct {
	Actor        Actor
	EvaluationID string
	AssignmentID string
}

// RemoveAssignment hard-removes an active assignment. Completed assignments
// stay for the audit trail.
func (s *Service) RemoveAssignment(ctx context.Context, input RemoveAssignmentInput) (Evaluation, error) {
	return s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		if !CanManageAssignments(input.Actor, *working) {
			return unauthorized("remove assignment")
		}

		for i, assignment := range working.Assignments {
			if assignment.ID != input.AssignmentID {
				continue
			}
			if assignment.Completed {
				return ErrAssignmentCompleted
			}
			working.Assignments = append(working.Assignments[:i], working.Assignments[i+1:]...)
			working.UpdatedAt = s.clock().UTC()
			return nil
		}
		return ErrAssignmentNotFound
	})
}

// CompleteAssignmentInput marks the caller's own assignment finished.
type CompleteAssignmentInput struct {
	Actor        Actor
	EvaluationID string
}

// CompleteAssignment flags the caller's active assignment as completed and
// signals the drafting owner. Section statuses are not touched; they advance
// independently through save and submit.
func (s *Service) CompleteAssignment(ctx context.Context, input CompleteAssignmentInput) (Evaluation, error) {
	var completed Assignment
	updated, err := s.mutate(ctx, input.EvaluationID, func(working *Evaluation) error {
		assignment, ok := ActiveAssignmentFor(working.Assignments, input.Actor.UserID)
		if !ok {
			return ErrAssignmentNotFound
		}

		completedAt := s.clock().UTC()
		assignment.Completed = true
		assignment.CompletedAt = &completedAt
		replaceAssignment(working, assignment)
		working.UpdatedAt = completedAt
		completed = assignment
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}

	if s.notifier != nil {
		s.notify("assignment-completed", s.notifier.AssignmentCompleted(ctx, updated, completed))
	}
	return updated, nil
}

// unauthorized builds a capability denial with the attempted action attached.
func unauthorized(action string) error {
	return apperrors.WithMetadata(
		apperrors.CodeUnauthorized,
		fmt.Sprintf("caller is not allowed to %s", action),
		map[string]string{"Action": action},
	)
}

// replaceAssignment swaps an assignment in place by id.
func replaceAssignment(working *Evaluation, assignment Assignment) {
	for i := range working.Assignments {
		if working.Assignments[i].ID == assignment.ID {
			working.Assignments[i] = assignment
			return
		}
	}
}

// normalizeUserIDs trims, drops empties, and de-duplicates user ids while
// preserving order.
func normalizeUserIDs(userIDs []string) []string {
	seen := map[string]struct{}{}
	var normalized []string
	for _, userID := range userIDs {
		trimmed := strings.TrimSpace(userID)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// normalizeSections validates and de-duplicates section ids in review order.
func normalizeSections(sections []SectionID) ([]SectionID, error) {
	requested := map[SectionID]struct{}{}
	for _, section := range sections {
		parsed, err := ParseSectionID(string(section))
		if err != nil {
			return nil, err
		}
		requested[parsed] = struct{}{}
	}
	var normalized []SectionID
	for _, section := range SectionOrder {
		if _, ok := requested[section]; ok {
			normalized = append(normalized, section)
		}
	}
	return normalized, nil
}
