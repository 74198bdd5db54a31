package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
)

type fakeStore struct {
	mu          sync.Mutex
	evaluations map[string]Evaluation
	// conflicts fails the next N commits with a version conflict.
	conflicts int
	putCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{evaluations: map[string]Evaluation{}}
}

func (s *fakeStore) GetEvaluation(_ context.Context, evaluationID string) (Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evaluation, ok := s.evaluations[evaluationID]
	if !ok {
		return Evaluation{}, ErrEvaluationNotFound
	}
	return evaluation.Clone(), nil
}

func (s *fakeStore) PutEvaluation(_ context.Context, evaluation Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.conflicts > 0 {
		s.conflicts--
		return ErrVersionConflict
	}
	if stored, ok := s.evaluations[evaluation.ID]; ok && stored.Version != evaluation.Version {
		return ErrVersionConflict
	}
	committed := evaluation.Clone()
	committed.Version++
	s.evaluations[evaluation.ID] = committed
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	completed []string
	returned  []string
	finished  []string
	err       error
}

func (n *fakeNotifier) EvaluationCompleted(_ context.Context, evaluation Evaluation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, evaluation.ID)
	return n.err
}

func (n *fakeNotifier) SectionReturned(_ context.Context, evaluation Evaluation, section SectionID, notes string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.returned = append(n.returned, fmt.Sprintf("%s:%s:%s", evaluation.ID, section, notes))
	return n.err
}

func (n *fakeNotifier) AssignmentCompleted(_ context.Context, evaluation Evaluation, assignment Assignment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, assignment.ID)
	return n.err
}

func sequentialIDs(prefix string) func() (string, error) {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("%s-%d", prefix, next), nil
	}
}

var (
	officer   = Actor{UserID: "officer-1", Drafting: true}
	reviewer  = Actor{UserID: "reviewer-1", Committee: true}
	bystander = Actor{UserID: "nobody-1"}
)

func newServiceFixture(t *testing.T) (*Service, *fakeStore, *fakeNotifier, Evaluation) {
	t.Helper()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	service := NewService(store, notifier, fixedClock(testTime), sequentialIDs("id"))

	evaluation, err := service.OpenEvaluation(context.Background(), OpenEvaluationInput{
		Actor:     officer,
		Number:    "EVL-2026-001",
		RFQNumber: "RFQ-083",
		RFQTitle:  "Network switches",
	})
	if err != nil {
		t.Fatalf("OpenEvaluation returned error: %v", err)
	}
	return service, store, notifier, evaluation
}

// saveAndSubmit drives one section from untouched to submitted.
func saveAndSubmit(t *testing.T, service *Service, evaluationID string, section SectionID, actor Actor) Evaluation {
	t.Helper()
	ctx := context.Background()
	_, err := service.SaveSection(ctx, SaveSectionInput{
		Actor:        actor,
		EvaluationID: evaluationID,
		Section:      section,
		Fields:       map[string]string{"summary": "content for " + string(section)},
	})
	if err != nil {
		t.Fatalf("SaveSection(%s) returned error: %v", section, err)
	}
	evaluation, err := service.SubmitSection(ctx, SubmitSectionInput{
		Actor:        actor,
		EvaluationID: evaluationID,
		Section:      section,
	})
	if err != nil {
		t.Fatalf("SubmitSection(%s) returned error: %v", section, err)
	}
	return evaluation
}

// verify approves one submitted section as the committee reviewer.
func verify(t *testing.T, service *Service, evaluationID string, section SectionID) Evaluation {
	t.Helper()
	evaluation, err := service.VerifySection(context.Background(), VerifySectionInput{
		Actor:        reviewer,
		EvaluationID: evaluationID,
		Section:      section,
	})
	if err != nil {
		t.Fatalf("VerifySection(%s) returned error: %v", section, err)
	}
	return evaluation
}

func TestOpenEvaluation(t *testing.T) {
	_, store, _, evaluation := newServiceFixture(t)

	if evaluation.Status != EvaluationStatusPending {
		t.Fatalf("Status = %s, want PENDING", evaluation.Status)
	}
	if evaluation.Version != 1 {
		t.Fatalf("Version = %d, want 1 after the initial commit", evaluation.Version)
	}
	if _, ok := store.evaluations[evaluation.ID]; !ok {
		t.Fatal("evaluation was not persisted")
	}
}

func TestOpenEvaluationRequiresDraftingRole(t *testing.T) {
	service := NewService(newFakeStore(), nil, fixedClock(testTime), sequentialIDs("id"))
	_, err := service.OpenEvaluation(context.Background(), OpenEvaluationInput{
		Actor:  bystander,
		Number: "EVL-2026-002",
	})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}

func TestSaveSectionStartsDrafting(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)

	updated, err := service.SaveSection(context.Background(), SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
		Fields:       map[string]string{"summary": "background"},
	})
	if err != nil {
		t.Fatalf("SaveSection returned error: %v", err)
	}

	if updated.Sections[SectionA].Status != SectionStatusInProgress {
		t.Fatalf("section A = %s, want IN_PROGRESS", updated.Sections[SectionA].Status)
	}
	if updated.Status != EvaluationStatusInProgress {
		t.Fatalf("evaluation status = %s, want IN_PROGRESS", updated.Status)
	}
	if updated.Contents[SectionA].Fields["summary"] != "background" {
		t.Fatalf("content = %v", updated.Contents[SectionA])
	}
}

func TestSaveSectionGatedByPredecessor(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)

	_, err := service.SaveSection(context.Background(), SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionB,
		Fields:       map[string]string{"summary": "too early"},
	})
	if !apperrors.IsCode(err, apperrors.CodeSectionInvalidTransition) {
		t.Fatalf("got %v, want gated invalid transition", err)
	}
	if metadata := apperrors.GetMetadata(err); metadata["Reason"] != "gated" {
		t.Fatalf("metadata = %v, want gated reason", metadata)
	}

	// Verifying A unlocks B.
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)
	verify(t, service, evaluation.ID, SectionA)

	if _, err := service.SaveSection(context.Background(), SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionB,
		Fields:       map[string]string{"summary": "now allowed"},
	}); err != nil {
		t.Fatalf("SaveSection(B) after verify(A): %v", err)
	}
}

func TestSaveSectionRequiresContent(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)

	_, err := service.SaveSection(context.Background(), SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
	})
	if !apperrors.IsCode(err, apperrors.CodeSectionContentRequired) {
		t.Fatalf("got %v, want SECTION_CONTENT_REQUIRED", err)
	}
}

func TestSaveSectionUnauthorizedOutsideAssignment(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	_, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionC},
	})
	if err != nil {
		t.Fatalf("AssignEvaluators returned error: %v", err)
	}

	// The assignment covers C only: section A stays off limits.
	assignee := Actor{UserID: "user-1", Drafting: true}
	_, err = service.SaveSection(ctx, SaveSectionInput{
		Actor:        assignee,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
		Fields:       map[string]string{"summary": "not mine"},
	})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}

func TestSaveSectionOwnEntryOnly(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	// Walk A and B through verification so C unlocks.
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)
	verify(t, service, evaluation.ID, SectionA)
	saveAndSubmit(t, service, evaluation.ID, SectionB, officer)
	verify(t, service, evaluation.ID, SectionB)

	if _, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"eval-1", "eval-2"},
		Sections:     []SectionID{SectionC},
	}); err != nil {
		t.Fatalf("AssignEvaluators returned error: %v", err)
	}

	first := Actor{UserID: "eval-1", Drafting: true}
	second := Actor{UserID: "eval-2", Drafting: true}

	// Whole-payload writes are rejected when the section is shared.
	_, err := service.SaveSection(ctx, SaveSectionInput{
		Actor:        first,
		EvaluationID: evaluation.ID,
		Section:      SectionC,
		Fields:       map[string]string{"summary": "mine"},
	})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED for whole-payload write", err)
	}

	updated, err := service.SaveSection(ctx, SaveSectionInput{
		Actor:        first,
		EvaluationID: evaluation.ID,
		Section:      SectionC,
		Entry:        &EvaluatorEntry{Comments: "supplier one is strongest", RecommendedAction: "award", RecommendedSupplier: "supplier-1"},
	})
	if err != nil {
		t.Fatalf("SaveSection entry for eval-1: %v", err)
	}
	updated, err = service.SaveSection(ctx, SaveSectionInput{
		Actor:        second,
		EvaluationID: evaluation.ID,
		Section:      SectionC,
		Entry:        &EvaluatorEntry{Comments: "request best and final offers", RecommendedAction: "rebid", RecommendedSupplier: "supplier-2"},
	})
	if err != nil {
		t.Fatalf("SaveSection entry for eval-2: %v", err)
	}

	entries := updated.Contents[SectionC].Entries
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want one per evaluator", entries)
	}
	if entries["eval-1"].RecommendedSupplier != "supplier-1" || entries["eval-2"].RecommendedSupplier != "supplier-2" {
		t.Fatalf("entries lost per-user isolation: %v", entries)
	}
}

func TestSubmitSectionGatedAndContentChecked(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	// Submitting an untouched gated section fails on the gate.
	_, err := service.SubmitSection(ctx, SubmitSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionB,
	})
	if !apperrors.IsCode(err, apperrors.CodeSectionInvalidTransition) {
		t.Fatalf("got %v, want gated invalid transition", err)
	}

	// Submitting section A without content fails before the transition.
	_, err = service.SubmitSection(ctx, SubmitSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
	})
	if !apperrors.IsCode(err, apperrors.CodeSectionContentRequired) {
		t.Fatalf("got %v, want SECTION_CONTENT_REQUIRED", err)
	}
}

func TestSubmitSectionMovesToCommitteeReview(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)

	updated := saveAndSubmit(t, service, evaluation.ID, SectionA, officer)
	if updated.Sections[SectionA].Status != SectionStatusSubmitted {
		t.Fatalf("section A = %s, want SUBMITTED", updated.Sections[SectionA].Status)
	}
	if updated.Status != EvaluationStatusCommitteeReview {
		t.Fatalf("evaluation status = %s, want COMMITTEE_REVIEW", updated.Status)
	}
}

func TestVerifySectionUnauthorizedForDrafting(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)

	_, err := service.VerifySection(context.Background(), VerifySectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
	})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}

func TestReturnSectionRequiresNotesRegardlessOfRole(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)

	for _, actor := range []Actor{reviewer, officer, bystander} {
		_, err := service.ReturnSection(context.Background(), ReturnSectionInput{
			Actor:        actor,
			EvaluationID: evaluation.ID,
			Section:      SectionA,
			Notes:        "   ",
		})
		if !apperrors.IsCode(err, apperrors.CodeSectionNotesRequired) {
			t.Fatalf("actor %s: got %v, want SECTION_NOTES_REQUIRED", actor.UserID, err)
		}
	}
}

func TestReturnSectionNotifies(t *testing.T) {
	service, _, notifier, evaluation := newServiceFixture(t)
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)

	updated, err := service.ReturnSection(context.Background(), ReturnSectionInput{
		Actor:        reviewer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
		Notes:        "totals do not add up",
	})
	if err != nil {
		t.Fatalf("ReturnSection returned error: %v", err)
	}

	if updated.Sections[SectionA].Status != SectionStatusReturned {
		t.Fatalf("section A = %s, want RETURNED", updated.Sections[SectionA].Status)
	}
	if updated.Status != EvaluationStatusInProgress {
		t.Fatalf("evaluation status = %s, want IN_PROGRESS", updated.Status)
	}
	if len(notifier.returned) != 1 {
		t.Fatalf("returned notifications = %v, want one", notifier.returned)
	}
}

func TestFullRoundTripCompletesEvaluation(t *testing.T) {
	service, _, notifier, evaluation := newServiceFixture(t)

	for _, section := range SectionOrder {
		saveAndSubmit(t, service, evaluation.ID, section, officer)
		updated := verify(t, service, evaluation.ID, section)
		if section != SectionE && updated.Status == EvaluationStatusCompleted {
			t.Fatalf("completed too early after section %s", section)
		}
	}

	final, err := service.GetEvaluation(context.Background(), evaluation.ID)
	if err != nil {
		t.Fatalf("GetEvaluation returned error: %v", err)
	}
	if final.Status != EvaluationStatusCompleted {
		t.Fatalf("final status = %s, want COMPLETED", final.Status)
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("completed notifications = %v, want exactly one", notifier.completed)
	}
}

func TestVerifyAllAppliesOnlySubmitted(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	// A verified, B submitted, C in progress via a committee return path is
	// hard to stage without C being gated, so stage A verified and B
	// submitted and leave the rest untouched.
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)
	verify(t, service, evaluation.ID, SectionA)
	saveAndSubmit(t, service, evaluation.ID, SectionB, officer)

	updated, result, err := service.VerifyAll(ctx, VerifyAllInput{
		Actor:        reviewer,
		EvaluationID: evaluation.ID,
	})
	if err != nil {
		t.Fatalf("VerifyAll returned error: %v", err)
	}

	if len(result.Applied) != 1 || result.Applied[0] != SectionB {
		t.Fatalf("Applied = %v, want [B]", result.Applied)
	}
	if len(result.Skipped) != 4 {
		t.Fatalf("Skipped = %v, want A C D E", result.Skipped)
	}
	if updated.Sections[SectionB].Status != SectionStatusVerified {
		t.Fatalf("section B = %s, want VERIFIED", updated.Sections[SectionB].Status)
	}
	if updated.Sections[SectionC].Status != SectionStatusNotStarted {
		t.Fatalf("section C = %s, want untouched", updated.Sections[SectionC].Status)
	}
	if updated.Status != EvaluationStatusInProgress {
		t.Fatalf("evaluation status = %s, want IN_PROGRESS", updated.Status)
	}
}

func TestVerifyAllCompletesAndNotifiesOnce(t *testing.T) {
	service, _, notifier, evaluation := newServiceFixture(t)

	// Verify A through D individually, submit E, then bulk verify.
	for _, section := range []SectionID{SectionA, SectionB, SectionC, SectionD} {
		saveAndSubmit(t, service, evaluation.ID, section, officer)
		verify(t, service, evaluation.ID, section)
	}
	saveAndSubmit(t, service, evaluation.ID, SectionE, officer)

	updated, result, err := service.VerifyAll(context.Background(), VerifyAllInput{
		Actor:        reviewer,
		EvaluationID: evaluation.ID,
	})
	if err != nil {
		t.Fatalf("VerifyAll returned error: %v", err)
	}

	if len(result.Applied) != 1 || result.Applied[0] != SectionE {
		t.Fatalf("Applied = %v, want [E]", result.Applied)
	}
	if updated.Status != EvaluationStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", updated.Status)
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("completed notifications = %v, want one", notifier.completed)
	}
}

func TestVerifyAllUnauthorized(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)

	_, _, err := service.VerifyAll(context.Background(), VerifyAllInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
	})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED", err)
	}
}

func TestReturnAll(t *testing.T) {
	service, _, notifier, evaluation := newServiceFixture(t)
	ctx := context.Background()

	// A verified, B submitted, the rest untouched.
	saveAndSubmit(t, service, evaluation.ID, SectionA, officer)
	verify(t, service, evaluation.ID, SectionA)
	saveAndSubmit(t, service, evaluation.ID, SectionB, officer)

	_, _, err := service.ReturnAll(ctx, ReturnAllInput{
		Actor:        reviewer,
		EvaluationID: evaluation.ID,
		Notes:        " ",
	})
	if !apperrors.IsCode(err, apperrors.CodeSectionNotesRequired) {
		t.Fatalf("got %v, want SECTION_NOTES_REQUIRED", err)
	}

	updated, result, err := service.ReturnAll(ctx, ReturnAllInput{
		Actor:        reviewer,
		EvaluationID: evaluation.ID,
		Notes:        "rework the scoring",
	})
	if err != nil {
		t.Fatalf("ReturnAll returned error: %v", err)
	}

	if len(result.Applied) != 1 || result.Applied[0] != SectionB {
		t.Fatalf("Applied = %v, want [B]", result.Applied)
	}
	if updated.Sections[SectionA].Status != SectionStatusVerified {
		t.Fatal("verified section A must not be returned")
	}
	if updated.Sections[SectionB].Status != SectionStatusReturned {
		t.Fatalf("section B = %s, want RETURNED", updated.Sections[SectionB].Status)
	}
	if len(notifier.returned) != 1 {
		t.Fatalf("returned notifications = %v, want one", notifier.returned)
	}
}

func TestAssignEvaluators(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	updated, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1", " user-1 ", "user-2"},
		Sections:     []SectionID{SectionC},
	})
	if err != nil {
		t.Fatalf("AssignEvaluators returned error: %v", err)
	}
	if len(updated.Assignments) != 2 {
		t.Fatalf("assignments = %d, want duplicates collapsed to 2", len(updated.Assignments))
	}

	// Merging new sections into an existing active assignment.
	updated, err = service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionB},
	})
	if err != nil {
		t.Fatalf("merge AssignEvaluators returned error: %v", err)
	}
	assignment, ok := ActiveAssignmentFor(updated.Assignments, "user-1")
	if !ok || !assignment.Covers(SectionB) || !assignment.Covers(SectionC) {
		t.Fatalf("assignment = %+v, want B and C covered", assignment)
	}
}

func TestAssignEvaluatorsOverlapRejected(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	if _, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionB},
	}); err != nil {
		t.Fatalf("first AssignEvaluators returned error: %v", err)
	}

	_, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-2"},
		Sections:     []SectionID{SectionB},
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentOverlap) {
		t.Fatalf("got %v, want ASSIGNMENT_OVERLAP", err)
	}

	// One call granting the same non-C section to two users collides too.
	_, err = service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-3", "user-4"},
		Sections:     []SectionID{SectionD},
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentOverlap) {
		t.Fatalf("got %v, want intra-batch ASSIGNMENT_OVERLAP", err)
	}

	// Section C welcomes multiple evaluators in one call.
	if _, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-5", "user-6"},
		Sections:     []SectionID{SectionC},
	}); err != nil {
		t.Fatalf("section C multi-assign returned error: %v", err)
	}
}

func TestAssignEvaluatorsValidation(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	_, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"  "},
		Sections:     []SectionID{SectionA},
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentUsersRequired) {
		t.Fatalf("got %v, want ASSIGNMENT_USERS_REQUIRED", err)
	}

	_, err = service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentSectionsRequired) {
		t.Fatalf("got %v, want ASSIGNMENT_SECTIONS_REQUIRED", err)
	}

	_, err = service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        Actor{UserID: "officer-2", Drafting: true},
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionA},
	})
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("got %v, want UNAUTHORIZED for non-creator", err)
	}
}

func TestRemoveAssignment(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	updated, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionB},
	})
	if err != nil {
		t.Fatalf("AssignEvaluators returned error: %v", err)
	}
	assignmentID := updated.Assignments[0].ID

	updated, err = service.RemoveAssignment(ctx, RemoveAssignmentInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		AssignmentID: assignmentID,
	})
	if err != nil {
		t.Fatalf("RemoveAssignment returned error: %v", err)
	}
	if len(updated.Assignments) != 0 {
		t.Fatalf("assignments = %v, want removed", updated.Assignments)
	}

	_, err = service.RemoveAssignment(ctx, RemoveAssignmentInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		AssignmentID: assignmentID,
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentNotFound) {
		t.Fatalf("got %v, want ASSIGNMENT_NOT_FOUND", err)
	}
}

func TestRemoveCompletedAssignmentRejected(t *testing.T) {
	service, _, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	updated, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionB},
	})
	if err != nil {
		t.Fatalf("AssignEvaluators returned error: %v", err)
	}
	assignmentID := updated.Assignments[0].ID

	if _, err := service.CompleteAssignment(ctx, CompleteAssignmentInput{
		Actor:        Actor{UserID: "user-1", Drafting: true},
		EvaluationID: evaluation.ID,
	}); err != nil {
		t.Fatalf("CompleteAssignment returned error: %v", err)
	}

	_, err = service.RemoveAssignment(ctx, RemoveAssignmentInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		AssignmentID: assignmentID,
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentCompleted) {
		t.Fatalf("got %v, want ASSIGNMENT_COMPLETED", err)
	}
}

func TestCompleteAssignment(t *testing.T) {
	service, _, notifier, evaluation := newServiceFixture(t)
	ctx := context.Background()

	if _, err := service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionB},
	}); err != nil {
		t.Fatalf("AssignEvaluators returned error: %v", err)
	}

	updated, err := service.CompleteAssignment(ctx, CompleteAssignmentInput{
		Actor:        Actor{UserID: "user-1", Drafting: true},
		EvaluationID: evaluation.ID,
	})
	if err != nil {
		t.Fatalf("CompleteAssignment returned error: %v", err)
	}

	if !updated.Assignments[0].Completed || updated.Assignments[0].CompletedAt == nil {
		t.Fatalf("assignment = %+v, want completed with timestamp", updated.Assignments[0])
	}
	if len(notifier.finished) != 1 {
		t.Fatalf("finished notifications = %v, want one", notifier.finished)
	}

	_, err = service.CompleteAssignment(ctx, CompleteAssignmentInput{
		Actor:        Actor{UserID: "user-1", Drafting: true},
		EvaluationID: evaluation.ID,
	})
	if !apperrors.IsCode(err, apperrors.CodeAssignmentNotFound) {
		t.Fatalf("second completion: got %v, want ASSIGNMENT_NOT_FOUND", err)
	}
}

func TestMutateRetriesOnceOnConflict(t *testing.T) {
	service, store, _, evaluation := newServiceFixture(t)

	store.conflicts = 1
	updated, err := service.SaveSection(context.Background(), SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
		Fields:       map[string]string{"summary": "retry me"},
	})
	if err != nil {
		t.Fatalf("SaveSection should retry past one conflict: %v", err)
	}
	if updated.Sections[SectionA].Status != SectionStatusInProgress {
		t.Fatalf("section A = %s after retry", updated.Sections[SectionA].Status)
	}

	store.conflicts = 2
	_, err = service.SaveSection(context.Background(), SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
		Fields:       map[string]string{"summary": "still racing"},
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("got %v, want version conflict after exhausted retry", err)
	}
}

func TestMutationsRejectedOnFinalizedEvaluation(t *testing.T) {
	service, store, _, evaluation := newServiceFixture(t)
	ctx := context.Background()

	// The external validation step finalizes the report.
	store.mu.Lock()
	finalized := store.evaluations[evaluation.ID]
	finalized.Status = EvaluationStatusRejected
	store.evaluations[evaluation.ID] = finalized
	store.mu.Unlock()

	_, err := service.SaveSection(ctx, SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      SectionA,
		Fields:       map[string]string{"summary": "too late"},
	})
	if !apperrors.IsCode(err, apperrors.CodeEvaluationStatusTerminal) {
		t.Fatalf("save: got %v, want EVALUATION_STATUS_TERMINAL", err)
	}

	_, err = service.AssignEvaluators(ctx, AssignEvaluatorsInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		UserIDs:      []string{"user-1"},
		Sections:     []SectionID{SectionA},
	})
	if !apperrors.IsCode(err, apperrors.CodeEvaluationStatusTerminal) {
		t.Fatalf("assign: got %v, want EVALUATION_STATUS_TERMINAL", err)
	}
}

func TestOperationsOnMissingEvaluation(t *testing.T) {
	service := NewService(newFakeStore(), nil, fixedClock(testTime), sequentialIDs("id"))

	_, err := service.SubmitSection(context.Background(), SubmitSectionInput{
		Actor:        officer,
		EvaluationID: "missing",
		Section:      SectionA,
	})
	if !errors.Is(err, ErrEvaluationNotFound) {
		t.Fatalf("got %v, want ErrEvaluationNotFound", err)
	}
}
