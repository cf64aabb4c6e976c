package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/core/ports"
)

// SubmitBatchUseCase accepts a set of report files, persists the raw
// uploads and hands the batch id to the worker over the queue.
type SubmitBatchUseCase struct {
	batches ports.BatchRepository
	storage ports.ObjectStorage
	queue   ports.BatchQueue
}

func NewSubmitBatchUseCase(
	batches ports.BatchRepository,
	storage ports.ObjectStorage,
	queue ports.BatchQueue,
) *SubmitBatchUseCase {
	return &SubmitBatchUseCase{
		batches: batches,
		storage: storage,
		queue:   queue,
	}
}

func (uc *SubmitBatchUseCase) SubmitBatch(
	ctx context.Context,
	actor domain.Actor,
	files []domain.UploadedFile,
	assignments map[string]string,
) (*domain.ReportBatch, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", errors.New("batch has no files"))
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	batch := &domain.ReportBatch{
		ID:          id,
		SubmittedBy: actor.ID,
		Status:      domain.BatchAccepted,
		Assignments: assignments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, file := range files {
		key := fmt.Sprintf("uploads/%s/%s", id, sanitizeFilename(file.Name))
		if err := uc.storage.Save(ctx, key, bytes.NewReader(file.Data)); err != nil {
			return nil, fmt.Errorf("persist raw upload %s: %w", file.Name, err)
		}
		batch.Files = append(batch.Files, domain.BatchFile{
			FileName:    file.Name,
			StoragePath: key,
			ContentType: file.ContentType,
		})
	}

	if err := uc.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch record: %w", err)
	}
	if err := uc.queue.PublishBatchSubmitted(ctx, batch.ID); err != nil {
		return nil, fmt.Errorf("publish batch event: %w", err)
	}
	return batch, nil
}

func (uc *SubmitBatchUseCase) GetBatch(ctx context.Context, id string) (*domain.ReportBatch, error) {
	return uc.batches.GetByID(ctx, id)
}

// ProcessBatchUseCase is the worker side: claim the batch, reload the
// raw uploads, run the ingestion pipeline and persist the result.
type ProcessBatchUseCase struct {
	batches  ports.BatchRepository
	storage  ports.ObjectStorage
	pipeline *IngestPipeline
	logger   *slog.Logger
}

func NewProcessBatchUseCase(
	batches ports.BatchRepository,
	storage ports.ObjectStorage,
	pipeline *IngestPipeline,
	logger *slog.Logger,
) *ProcessBatchUseCase {
	return &ProcessBatchUseCase{
		batches:  batches,
		storage:  storage,
		pipeline: pipeline,
		logger:   logger,
	}
}

func (uc *ProcessBatchUseCase) ProcessByID(ctx context.Context, batchID string) error {
	batch, err := uc.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchDone || batch.Status == domain.BatchFailed {
		return nil
	}

	if err := uc.batches.MarkProcessing(ctx, batchID); err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			// Another worker claimed it.
			return nil
		}
		return fmt.Errorf("claim batch: %w", err)
	}

	files, err := uc.loadFiles(ctx, batch)
	if err != nil {
		return uc.fail(ctx, batchID, err)
	}

	result, err := uc.pipeline.Run(ctx, batchID, files, batch.Assignments)
	if err != nil {
		return uc.fail(ctx, batchID, err)
	}

	if err := uc.batches.SaveResult(ctx, batchID, result); err != nil {
		return fmt.Errorf("save batch result: %w", err)
	}

	uc.cleanupRawUploads(ctx, batch)
	return nil
}

func (uc *ProcessBatchUseCase) loadFiles(ctx context.Context, batch *domain.ReportBatch) ([]domain.UploadedFile, error) {
	files := make([]domain.UploadedFile, 0, len(batch.Files))
	for _, ref := range batch.Files {
		reader, err := uc.storage.Open(ctx, ref.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open raw upload %s: %w", ref.FileName, err)
		}
		data, err := io.ReadAll(reader)
		closeErr := reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read raw upload %s: %w", ref.FileName, err)
		}
		if closeErr != nil {
			uc.logger.Warn("raw_upload_close_failed", "file", ref.FileName, "error", closeErr)
		}
		files = append(files, domain.UploadedFile{
			Name:        ref.FileName,
			ContentType: ref.ContentType,
			Data:        data,
		})
	}
	return files, nil
}

// cleanupRawUploads consumes the raw batch files once the flattened
// reports have been re-persisted under their own keys.
func (uc *ProcessBatchUseCase) cleanupRawUploads(ctx context.Context, batch *domain.ReportBatch) {
	for _, ref := range batch.Files {
		if err := uc.storage.Delete(ctx, ref.StoragePath); err != nil {
			uc.logger.Warn("raw_upload_cleanup_failed", "path", ref.StoragePath, "error", err)
		}
	}
}

func (uc *ProcessBatchUseCase) fail(ctx context.Context, batchID string, cause error) error {
	if err := uc.batches.MarkFailed(ctx, batchID, cause.Error()); err != nil {
		return fmt.Errorf("%w; mark batch failed: %v", cause, err)
	}
	return cause
}
