package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/standardsja/pms-sub000/internal/services/review/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/review.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvaluation(t *testing.T) domain.Evaluation {
	t.Helper()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	evaluation, err := domain.CreateEvaluation(domain.CreateEvaluationInput{
		Number:    "EVL-2026-001",
		RFQNumber: "RFQ-083",
		RFQTitle:  "Network switches",
		CreatedBy: "officer-1",
	}, func() time.Time { return now }, func() (string, error) { return "eval-1", nil })
	if err != nil {
		t.Fatalf("create evaluation: %v", err)
	}
	return evaluation
}

func TestEvaluationRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	evaluation := testEvaluation(t)
	submittedAt := now.Add(time.Hour)
	record := evaluation.Sections[domain.SectionA]
	record.Status = domain.SectionStatusSubmitted
	record.SubmittedAt = &submittedAt
	record.UpdatedAt = submittedAt
	evaluation.Sections[domain.SectionA] = record

	evaluation.Contents[domain.SectionA] = domain.SectionContent{
		Fields: map[string]string{"summary": "background", "method": "open tender"},
	}
	evaluation.Contents[domain.SectionC] = domain.SectionContent{
		Entries: map[string]domain.EvaluatorEntry{
			"eval-1": {Comments: "award to supplier one", RecommendedAction: "award", RecommendedSupplier: "supplier-1", UpdatedAt: now},
		},
	}
	completedAt := now.Add(2 * time.Hour)
	evaluation.Assignments = []domain.Assignment{
		{ID: "asg-1", EvaluationID: "eval-1", UserID: "user-1", Sections: []domain.SectionID{domain.SectionB, domain.SectionC}, CreatedAt: now},
		{ID: "asg-2", EvaluationID: "eval-1", UserID: "user-2", Sections: []domain.SectionID{domain.SectionC}, Completed: true, CreatedAt: now, CompletedAt: &completedAt},
	}
	evaluation.Status = domain.EvaluationStatusCommitteeReview

	if err := store.PutEvaluation(ctx, evaluation); err != nil {
		t.Fatalf("put evaluation: %v", err)
	}

	loaded, err := store.GetEvaluation(ctx, "eval-1")
	if err != nil {
		t.Fatalf("get evaluation: %v", err)
	}

	if loaded.Number != "EVL-2026-001" || loaded.Status != domain.EvaluationStatusCommitteeReview {
		t.Fatalf("loaded header = %q %s", loaded.Number, loaded.Status)
	}
	if loaded.Version != 1 {
		t.Fatalf("Version = %d, want 1 after first commit", loaded.Version)
	}
	sectionA := loaded.Sections[domain.SectionA]
	if sectionA.Status != domain.SectionStatusSubmitted {
		t.Fatalf("section A = %s, want SUBMITTED", sectionA.Status)
	}
	if sectionA.SubmittedAt == nil || !sectionA.SubmittedAt.Equal(submittedAt) {
		t.Fatalf("SubmittedAt = %v, want %v", sectionA.SubmittedAt, submittedAt)
	}
	if loaded.Sections[domain.SectionB].Status != domain.SectionStatusNotStarted {
		t.Fatalf("section B = %s, want NOT_STARTED", loaded.Sections[domain.SectionB].Status)
	}
	if loaded.Contents[domain.SectionA].Fields["method"] != "open tender" {
		t.Fatalf("fields = %v", loaded.Contents[domain.SectionA].Fields)
	}
	entry := loaded.Contents[domain.SectionC].Entries["eval-1"]
	if entry.RecommendedSupplier != "supplier-1" || !entry.UpdatedAt.Equal(now) {
		t.Fatalf("entry = %+v", entry)
	}
	if len(loaded.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(loaded.Assignments))
	}
	second := loaded.Assignments[1]
	if !second.Completed || second.CompletedAt == nil || !second.CompletedAt.Equal(completedAt) {
		t.Fatalf("assignment 2 = %+v", second)
	}
	if !second.Covers(domain.SectionC) {
		t.Fatalf("assignment 2 sections = %v", second.Sections)
	}
}

func TestGetEvaluationNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetEvaluation(context.Background(), "missing")
	if !errors.Is(err, domain.ErrEvaluationNotFound) {
		t.Fatalf("got %v, want ErrEvaluationNotFound", err)
	}
}

func TestPutEvaluationVersionConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	evaluation := testEvaluation(t)
	if err := store.PutEvaluation(ctx, evaluation); err != nil {
		t.Fatalf("initial put: %v", err)
	}

	// A stale writer still holding version 0 must be rejected.
	stale := evaluation.Clone()
	if err := store.PutEvaluation(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("stale put: got %v, want ErrVersionConflict", err)
	}

	// The current version commits and bumps again.
	current, err := store.GetEvaluation(ctx, evaluation.ID)
	if err != nil {
		t.Fatalf("get evaluation: %v", err)
	}
	record := current.Sections[domain.SectionA]
	record.Status = domain.SectionStatusInProgress
	current.Sections[domain.SectionA] = record
	if err := store.PutEvaluation(ctx, current); err != nil {
		t.Fatalf("second put: %v", err)
	}

	reloaded, err := store.GetEvaluation(ctx, evaluation.ID)
	if err != nil {
		t.Fatalf("reload evaluation: %v", err)
	}
	if reloaded.Version != 2 {
		t.Fatalf("Version = %d, want 2", reloaded.Version)
	}
	if reloaded.Sections[domain.SectionA].Status != domain.SectionStatusInProgress {
		t.Fatalf("section A = %s, want IN_PROGRESS", reloaded.Sections[domain.SectionA].Status)
	}
}

func TestStoreBacksDomainService(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	ids := 0
	service := domain.NewService(store, nil, func() time.Time { return now }, func() (string, error) {
		ids++
		return "id-" + string(rune('a'+ids)), nil
	})

	officer := domain.Actor{UserID: "officer-1", Drafting: true}
	evaluation, err := service.OpenEvaluation(ctx, domain.OpenEvaluationInput{
		Actor:  officer,
		Number: "EVL-2026-002",
	})
	if err != nil {
		t.Fatalf("open evaluation: %v", err)
	}

	if _, err := service.SaveSection(ctx, domain.SaveSectionInput{
		Actor:        officer,
		EvaluationID: evaluation.ID,
		Section:      domain.SectionA,
		Fields:       map[string]string{"summary": "persisted"},
	}); err != nil {
		t.Fatalf("save section: %v", err)
	}

	loaded, err := store.GetEvaluation(ctx, evaluation.ID)
	if err != nil {
		t.Fatalf("get evaluation: %v", err)
	}
	if loaded.Sections[domain.SectionA].Status != domain.SectionStatusInProgress {
		t.Fatalf("section A = %s, want IN_PROGRESS", loaded.Sections[domain.SectionA].Status)
	}
	if loaded.Status != domain.EvaluationStatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", loaded.Status)
	}
}
