package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// UnmatchedReportRepository retains reports the pipeline could not
// reconcile so an operator can assign them out-of-band.
type UnmatchedReportRepository struct {
	db *sql.DB
}

func NewUnmatchedReportRepository(db *sql.DB) *UnmatchedReportRepository {
	return &UnmatchedReportRepository{db: db}
}

func (r *UnmatchedReportRepository) Create(ctx context.Context, rep *domain.UnmatchedReport) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO unmatched_reports (id, batch_id, file_name, storage_path, detected_type, detected_percentage, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		rep.ID, rep.BatchID, rep.FileName, rep.StoragePath,
		nullString(string(rep.DetectedType)), rep.Percentage, rep.Reason, rep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert unmatched report: %w", err)
	}
	return nil
}

func (r *UnmatchedReportRepository) List(ctx context.Context) ([]domain.UnmatchedReport, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, batch_id, file_name, storage_path, detected_type, detected_percentage, reason, created_at
FROM unmatched_reports
ORDER BY created_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list unmatched reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.UnmatchedReport
	for rows.Next() {
		var rep domain.UnmatchedReport
		var detectedType sql.NullString
		var pct sql.NullFloat64
		if err := rows.Scan(
			&rep.ID, &rep.BatchID, &rep.FileName, &rep.StoragePath,
			&detectedType, &pct, &rep.Reason, &rep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan unmatched report: %w", err)
		}
		rep.DetectedType = domain.ReportType(detectedType.String)
		if pct.Valid {
			v := pct.Float64
			rep.Percentage = &v
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unmatched reports: %w", err)
	}
	return reports, nil
}
