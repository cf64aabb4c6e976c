package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// DocumentRepository implements the conditional-update contract: every
// transition guards the expected current state inside the UPDATE, so
// racing callers lose cleanly instead of clobbering each other.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, original_filename, normalized_key, scan_type, status, assigned_staff_id, assigned_at,
similarity_report_path, ai_report_path, similarity_percentage, ai_percentage, needs_review, remarks, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, original_filename, normalized_key, scan_type, status, assigned_staff_id, assigned_at,
	similarity_report_path, ai_report_path, similarity_percentage, ai_percentage, needs_review, remarks, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		doc.ID, doc.OriginalFilename, doc.NormalizedKey, string(doc.ScanType), string(doc.Status),
		nullString(doc.AssignedStaffID), doc.AssignedAt,
		nullString(doc.SimilarityReportPath), nullString(doc.AIReportPath),
		doc.SimilarityPercentage, doc.AIPercentage, doc.NeedsReview, nullString(doc.Remarks),
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "fetch document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListEligible(ctx context.Context, missing domain.ReportType) ([]domain.Document, error) {
	query := `
SELECT ` + documentColumns + `
FROM documents
WHERE status IN ('pending', 'in_progress')`
	switch missing {
	case domain.ReportSimilarity:
		query += ` AND similarity_report_path IS NULL`
	case domain.ReportAI:
		query += ` AND ai_report_path IS NULL`
	}
	query += `
ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list eligible documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListAssigned(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE status = 'in_progress' AND assigned_staff_id IS NOT NULL
ORDER BY assigned_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list assigned documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (r *DocumentRepository) CountInProgress(ctx context.Context, staffID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM documents
WHERE assigned_staff_id = $1 AND status = 'in_progress'
`, staffID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count in-progress documents: %w", err)
	}
	return count, nil
}

// AssignToStaff is the pick write: conditioned on status still being
// pending so two racing staff members cannot both win the document.
func (r *DocumentRepository) AssignToStaff(ctx context.Context, id, staffID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = 'in_progress', assigned_staff_id = $2, assigned_at = $3, updated_at = $4
WHERE id = $1 AND status = 'pending'
`, id, staffID, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign document: %w", err)
	}
	return requireRow(result, "assign document")
}

func (r *DocumentRepository) Release(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = 'pending', assigned_staff_id = NULL, assigned_at = NULL, updated_at = $2
WHERE id = $1 AND status = 'in_progress'
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release document: %w", err)
	}
	return requireRow(result, "release document")
}

func (r *DocumentRepository) Cancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = 'cancelled', assigned_staff_id = NULL, assigned_at = NULL, updated_at = $2
WHERE id = $1 AND status IN ('pending', 'in_progress')
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel document: %w", err)
	}
	return requireRow(result, "cancel document")
}

// AttachReport fills one report slot first-writer-wins: the update is
// conditioned on the slot still being empty, and percentages merge
// without touching the sibling slot so concurrent batches resolving
// different report types both land.
func (r *DocumentRepository) AttachReport(ctx context.Context, id string, t domain.ReportType, path string, percentage *float64) error {
	var query string
	switch t {
	case domain.ReportSimilarity:
		query = `
UPDATE documents
SET similarity_report_path = $2, similarity_percentage = COALESCE($3, similarity_percentage), updated_at = $4
WHERE id = $1 AND similarity_report_path IS NULL AND status IN ('pending', 'in_progress')
`
	case domain.ReportAI:
		query = `
UPDATE documents
SET ai_report_path = $2, ai_percentage = COALESCE($3, ai_percentage), updated_at = $4
WHERE id = $1 AND ai_report_path IS NULL AND status IN ('pending', 'in_progress')
`
	default:
		return domain.WrapError(domain.ErrInvalidInput, "attach report", fmt.Errorf("unknown report type %q", t))
	}

	result, err := r.db.ExecContext(ctx, query, id, path, percentage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("attach %s report: %w", t, err)
	}
	return requireRow(result, fmt.Sprintf("attach %s report", t))
}

// CompleteIfReady transitions to completed only when every slot the
// scan type requires is filled; checking and transitioning in one
// statement keeps the invariant under concurrent applies.
func (r *DocumentRepository) CompleteIfReady(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = 'completed', assigned_at = NULL, updated_at = $2
WHERE id = $1
  AND status IN ('pending', 'in_progress')
  AND similarity_report_path IS NOT NULL
  AND (scan_type = 'similarity_only' OR ai_report_path IS NOT NULL)
`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete document rows: %w", err)
	}
	return affected > 0, nil
}

func (r *DocumentRepository) SubmitCompletion(ctx context.Context, id string, sub domain.CompletionUpdate) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET similarity_report_path = NULLIF($2, ''),
    ai_report_path = NULLIF($3, ''),
    similarity_percentage = $4,
    ai_percentage = $5,
    remarks = NULLIF($6, ''),
    status = 'completed',
    assigned_at = NULL,
    updated_at = $7
WHERE id = $1 AND status IN ('pending', 'in_progress')
`, id, sub.SimilarityReportPath, sub.AIReportPath, sub.SimilarityPercentage, sub.AIPercentage, sub.Remarks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("submit completion: %w", err)
	}
	return requireRow(result, "submit completion")
}

func (r *DocumentRepository) SetNeedsReview(ctx context.Context, id string, flag bool) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET needs_review = $2, updated_at = $3
WHERE id = $1
`, id, flag, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set needs review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set needs review rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "set needs review", fmt.Errorf("id %s", id))
	}
	return nil
}

// requireRow turns a zero-row conditional update into ErrConflict: the
// document was not in the state the transition requires.
func requireRow(result sql.Result, operation string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrConflict, operation, errors.New("document missing or not in required state"))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var scanType, status string
	var staffID, simPath, aiPath, remarks sql.NullString
	var assignedAt sql.NullTime
	var simPct, aiPct sql.NullFloat64

	err := row.Scan(
		&doc.ID, &doc.OriginalFilename, &doc.NormalizedKey, &scanType, &status, &staffID, &assignedAt,
		&simPath, &aiPath, &simPct, &aiPct, &doc.NeedsReview, &remarks, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.ScanType = domain.ScanType(scanType)
	doc.Status = domain.DocumentStatus(status)
	doc.AssignedStaffID = staffID.String
	if assignedAt.Valid {
		at := assignedAt.Time
		doc.AssignedAt = &at
	}
	doc.SimilarityReportPath = simPath.String
	doc.AIReportPath = aiPath.String
	if simPct.Valid {
		v := simPct.Float64
		doc.SimilarityPercentage = &v
	}
	if aiPct.Valid {
		v := aiPct.Float64
		doc.AIPercentage = &v
	}
	doc.Remarks = remarks.String
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
