package app

import (
	"context"
	"log"

	"github.com/standardsja/pms-sub000/internal/services/review/domain"
)

// logNotifier records workflow signals in the process log. It stands in for
// the notification fan-out until a downstream consumer exists.
type logNotifier struct{}

func (logNotifier) EvaluationCompleted(_ context.Context, evaluation domain.Evaluation) error {
	log.Printf("review evaluation completed id=%s number=%s", evaluation.ID, evaluation.Number)
	return nil
}

func (logNotifier) SectionReturned(_ context.Context, evaluation domain.Evaluation, section domain.SectionID, notes string) error {
	log.Printf("review section returned id=%s section=%s notes=%q", evaluation.ID, section, notes)
	return nil
}

func (logNotifier) AssignmentCompleted(_ context.Context, evaluation domain.Evaluation, assignment domain.Assignment) error {
	log.Printf("review assignment completed id=%s assignment=%s user=%s", evaluation.ID, assignment.ID, assignment.UserID)
	return nil
}

var _ domain.Notifier = logNotifier{}
