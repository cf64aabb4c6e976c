package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.ReportBatch) error {
	filesJSON, err := json.Marshal(batch.Files)
	if err != nil {
		return fmt.Errorf("marshal batch files: %w", err)
	}
	var assignmentsJSON any
	if len(batch.Assignments) > 0 {
		raw, err := json.Marshal(batch.Assignments)
		if err != nil {
			return fmt.Errorf("marshal batch assignments: %w", err)
		}
		assignmentsJSON = raw
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO report_batches (id, submitted_by, status, files, assignments, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		batch.ID, batch.SubmittedBy, string(batch.Status), filesJSON, assignmentsJSON,
		batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.ReportBatch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, submitted_by, status, files, assignments, result, error_message, created_at, updated_at
FROM report_batches
WHERE id = $1
`, id)

	var batch domain.ReportBatch
	var status string
	var filesRaw []byte
	var assignmentsRaw, resultRaw []byte
	var errMessage sql.NullString

	err := row.Scan(
		&batch.ID, &batch.SubmittedBy, &status, &filesRaw, &assignmentsRaw,
		&resultRaw, &errMessage, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrBatchNotFound, "fetch batch", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	batch.Status = domain.BatchStatus(status)
	if err := json.Unmarshal(filesRaw, &batch.Files); err != nil {
		return nil, fmt.Errorf("unmarshal batch files: %w", err)
	}
	if len(assignmentsRaw) > 0 {
		if err := json.Unmarshal(assignmentsRaw, &batch.Assignments); err != nil {
			return nil, fmt.Errorf("unmarshal batch assignments: %w", err)
		}
	}
	if len(resultRaw) > 0 {
		batch.Result = &domain.IngestionResult{}
		if err := json.Unmarshal(resultRaw, batch.Result); err != nil {
			return nil, fmt.Errorf("unmarshal batch result: %w", err)
		}
	}
	batch.Error = errMessage.String
	return &batch, nil
}

// MarkProcessing is the worker's claim: conditioned on the batch still
// being accepted so only one worker runs it.
func (r *BatchRepository) MarkProcessing(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE report_batches
SET status = 'processing', updated_at = $2
WHERE id = $1 AND status = 'accepted'
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark batch processing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark batch processing rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrConflict, "mark batch processing", errors.New("batch missing or already claimed"))
	}
	return nil
}

func (r *BatchRepository) SaveResult(ctx context.Context, id string, result *domain.IngestionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal batch result: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE report_batches
SET status = 'done', result = $2, updated_at = $3
WHERE id = $1
`, id, resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save batch result: %w", err)
	}
	return nil
}

func (r *BatchRepository) MarkFailed(ctx context.Context, id, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE report_batches
SET status = 'failed', error_message = $2, updated_at = $3
WHERE id = $1
`, id, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark batch failed: %w", err)
	}
	return nil
}
