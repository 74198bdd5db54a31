// Package sqlite provides a SQLite-backed review storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/standardsja/pms-sub000/internal/platform/storage/sqlitemigrate"
	"github.com/standardsja/pms-sub000/internal/services/review/domain"
	"github.com/standardsja/pms-sub000/internal/services/review/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists evaluation aggregates in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	at := fromMillis(value.Int64)
	return &at
}

// Open opens a SQLite review store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetEvaluation loads the full evaluation aggregate.
func (s *Store) GetEvaluation(ctx context.Context, evaluationID string) (domain.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Evaluation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Evaluation{}, fmt.Errorf("storage is not configured")
	}
	evaluationID = strings.TrimSpace(evaluationID)
	if evaluationID == "" {
		return domain.Evaluation{}, fmt.Errorf("evaluation id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, number, rfq_number, rfq_title, status, created_by, created_at, updated_at, version
		 FROM evaluations
		 WHERE id = ?`,
		evaluationID,
	)
	var (
		evaluation  domain.Evaluation
		statusLabel string
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&evaluation.ID,
		&evaluation.Number,
		&evaluation.RFQNumber,
		&evaluation.RFQTitle,
		&statusLabel,
		&evaluation.CreatedBy,
		&createdAt,
		&updatedAt,
		&evaluation.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Evaluation{}, domain.ErrEvaluationNotFound
		}
		return domain.Evaluation{}, fmt.Errorf("get evaluation: %w", err)
	}
	evaluation.Status, err = domain.ParseEvaluationStatus(statusLabel)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("get evaluation: %w", err)
	}
	evaluation.CreatedAt = fromMillis(createdAt)
	evaluation.UpdatedAt = fromMillis(updatedAt)

	if evaluation.Sections, err = s.loadSections(ctx, evaluationID); err != nil {
		return domain.Evaluation{}, err
	}
	if evaluation.Contents, err = s.loadContents(ctx, evaluationID); err != nil {
		return domain.Evaluation{}, err
	}
	if evaluation.Assignments, err = s.loadAssignments(ctx, evaluationID); err != nil {
		return domain.Evaluation{}, err
	}
	return evaluation, nil
}

func (s *Store) loadSections(ctx context.Context, evaluationID string) (map[domain.SectionID]domain.SectionRecord, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT section_id, status, notes, verifier_id, submitted_at, verified_at, updated_at
		 FROM evaluation_sections
		 WHERE evaluation_id = ?`,
		evaluationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	defer rows.Close()

	sections := make(map[domain.SectionID]domain.SectionRecord, len(domain.SectionOrder))
	for rows.Next() {
		var (
			sectionLabel string
			statusLabel  string
			record       domain.SectionRecord
			submittedAt  sql.NullInt64
			verifiedAt   sql.NullInt64
			updatedAt    int64
		)
		if err := rows.Scan(&sectionLabel, &statusLabel, &record.Notes, &record.VerifierID, &submittedAt, &verifiedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("load sections: %w", err)
		}
		section, err := domain.ParseSectionID(sectionLabel)
		if err != nil {
			return nil, fmt.Errorf("load sections: %w", err)
		}
		if record.Status, err = domain.ParseSectionStatus(statusLabel); err != nil {
			return nil, fmt.Errorf("load sections: %w", err)
		}
		record.SubmittedAt = fromNullMillis(submittedAt)
		record.VerifiedAt = fromNullMillis(verifiedAt)
		record.UpdatedAt = fromMillis(updatedAt)
		sections[section] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	return sections, nil
}

func (s *Store) loadContents(ctx context.Context, evaluationID string) (map[domain.SectionID]domain.SectionContent, error) {
	contents := make(map[domain.SectionID]domain.SectionContent, len(domain.SectionOrder))
	for _, section := range domain.SectionOrder {
		contents[section] = domain.SectionContent{}
	}

	fieldRows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT section_id, field_key, field_value
		 FROM evaluation_section_fields
		 WHERE evaluation_id = ?`,
		evaluationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load section fields: %w", err)
	}
	defer fieldRows.Close()

	for fieldRows.Next() {
		var sectionLabel, key, value string
		if err := fieldRows.Scan(&sectionLabel, &key, &value); err != nil {
			return nil, fmt.Errorf("load section fields: %w", err)
		}
		section, err := domain.ParseSectionID(sectionLabel)
		if err != nil {
			return nil, fmt.Errorf("load section fields: %w", err)
		}
		content := contents[section]
		if content.Fields == nil {
			content.Fields = map[string]string{}
		}
		content.Fields[key] = value
		contents[section] = content
	}
	if err := fieldRows.Err(); err != nil {
		return nil, fmt.Errorf("load section fields: %w", err)
	}

	entryRows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT section_id, user_id, comments, recommended_action, recommended_supplier, updated_at
		 FROM evaluation_evaluator_entries
		 WHERE evaluation_id = ?`,
		evaluationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load evaluator entries: %w", err)
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var (
			sectionLabel string
			userID       string
			entry        domain.EvaluatorEntry
			updatedAt    int64
		)
		if err := entryRows.Scan(&sectionLabel, &userID, &entry.Comments, &entry.RecommendedAction, &entry.RecommendedSupplier, &updatedAt); err != nil {
			return nil, fmt.Errorf("load evaluator entries: %w", err)
		}
		section, err := domain.ParseSectionID(sectionLabel)
		if err != nil {
			return nil, fmt.Errorf("load evaluator entries: %w", err)
		}
		entry.UpdatedAt = fromMillis(updatedAt)
		content := contents[section]
		if content.Entries == nil {
			content.Entries = map[string]domain.EvaluatorEntry{}
		}
		content.Entries[userID] = entry
		contents[section] = content
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("load evaluator entries: %w", err)
	}
	return contents, nil
}

func (s *Store) loadAssignments(ctx context.Context, evaluationID string) ([]domain.Assignment, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, user_id, sections, completed, created_at, completed_at
		 FROM evaluation_assignments
		 WHERE evaluation_id = ?
		 ORDER BY created_at ASC, id ASC`,
		evaluationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.Assignment
	for rows.Next() {
		var (
			assignment  domain.Assignment
			sections    string
			completed   int
			createdAt   int64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(&assignment.ID, &assignment.UserID, &sections, &completed, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("load assignments: %w", err)
		}
		assignment.EvaluationID = evaluationID
		assignment.Sections, err = splitSections(sections)
		if err != nil {
			return nil, fmt.Errorf("load assignments: %w", err)
		}
		assignment.Completed = completed != 0
		assignment.CreatedAt = fromMillis(createdAt)
		assignment.CompletedAt = fromNullMillis(completedAt)
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	return assignments, nil
}

// PutEvaluation persists the whole aggregate in one transaction. The stored
// version must match the aggregate's version; on mismatch the commit fails
// with domain.ErrVersionConflict and nothing is written.
func (s *Store) PutEvaluation(ctx context.Context, evaluation domain.Evaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(evaluation.ID) == "" {
		return fmt.Errorf("evaluation id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put evaluation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(
		ctx,
		`UPDATE evaluations SET
		   number = ?, rfq_number = ?, rfq_title = ?, status = ?, created_by = ?,
		   created_at = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		evaluation.Number,
		evaluation.RFQNumber,
		evaluation.RFQTitle,
		evaluation.Status.String(),
		evaluation.CreatedBy,
		toMillis(evaluation.CreatedAt),
		toMillis(evaluation.UpdatedAt),
		evaluation.ID,
		evaluation.Version,
	)
	if err != nil {
		return fmt.Errorf("put evaluation: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put evaluation: %w", err)
	}
	if updated == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM evaluations WHERE id = ?`, evaluation.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("put evaluation: %w", err)
		}
		if exists > 0 {
			return domain.ErrVersionConflict
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO evaluations (id, number, rfq_number, rfq_title, status, created_by, created_at, updated_at, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evaluation.ID,
			evaluation.Number,
			evaluation.RFQNumber,
			evaluation.RFQTitle,
			evaluation.Status.String(),
			evaluation.CreatedBy,
			toMillis(evaluation.CreatedAt),
			toMillis(evaluation.UpdatedAt),
			evaluation.Version+1,
		)
		if err != nil {
			return fmt.Errorf("put evaluation: %w", err)
		}
	}

	if err := replaceChildren(ctx, tx, evaluation); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put evaluation: %w", err)
	}
	return nil
}

// replaceChildren rewrites the aggregate's child rows inside the transaction.
func replaceChildren(ctx context.Context, tx *sql.Tx, evaluation domain.Evaluation) error {
	for _, table := range []string{"evaluation_sections", "evaluation_section_fields", "evaluation_evaluator_entries", "evaluation_assignments"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE evaluation_id = ?`, evaluation.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, section := range domain.SectionOrder {
		record, ok := evaluation.Sections[section]
		if !ok {
			continue
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO evaluation_sections (evaluation_id, section_id, status, notes, verifier_id, submitted_at, verified_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			evaluation.ID,
			string(section),
			record.Status.String(),
			record.Notes,
			record.VerifierID,
			toNullMillis(record.SubmittedAt),
			toNullMillis(record.VerifiedAt),
			toMillis(record.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("put section %s: %w", section, err)
		}

		content := evaluation.Contents[section]
		for key, value := range content.Fields {
			_, err := tx.ExecContext(
				ctx,
				`INSERT INTO evaluation_section_fields (evaluation_id, section_id, field_key, field_value)
				 VALUES (?, ?, ?, ?)`,
				evaluation.ID,
				string(section),
				key,
				value,
			)
			if err != nil {
				return fmt.Errorf("put section field %s.%s: %w", section, key, err)
			}
		}
		for userID, entry := range content.Entries {
			_, err := tx.ExecContext(
				ctx,
				`INSERT INTO evaluation_evaluator_entries (evaluation_id, section_id, user_id, comments, recommended_action, recommended_supplier, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				evaluation.ID,
				string(section),
				userID,
				entry.Comments,
				entry.RecommendedAction,
				entry.RecommendedSupplier,
				toMillis(entry.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("put evaluator entry %s: %w", userID, err)
			}
		}
	}

	for _, assignment := range evaluation.Assignments {
		completed := 0
		if assignment.Completed {
			completed = 1
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO evaluation_assignments (id, evaluation_id, user_id, sections, completed, created_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			assignment.ID,
			evaluation.ID,
			assignment.UserID,
			joinSections(assignment.Sections),
			completed,
			toMillis(assignment.CreatedAt),
			toNullMillis(assignment.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("put assignment %s: %w", assignment.ID, err)
		}
	}
	return nil
}

func joinSections(sections []domain.SectionID) string {
	labels := make([]string, len(sections))
	for i, section := range sections {
		labels[i] = string(section)
	}
	return strings.Join(labels, ",")
}

func splitSections(value string) ([]domain.SectionID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	sections := make([]domain.SectionID, 0, len(parts))
	for _, part := range parts {
		section, err := domain.ParseSectionID(part)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, nil
}

var _ domain.Store = (*Store)(nil)
