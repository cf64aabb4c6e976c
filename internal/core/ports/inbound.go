package ports

import (
	"context"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// MatchPreviewer is the inbound contract for the confirm-before-commit
// preview step.
type MatchPreviewer interface {
	Preview(ctx context.Context, filenames []string) ([]domain.MatchPreview, error)
}

// BatchIngestor is the inbound contract for submitting report batches.
type BatchIngestor interface {
	SubmitBatch(ctx context.Context, actor domain.Actor, files []domain.UploadedFile, assignments map[string]string) (*domain.ReportBatch, error)
	GetBatch(ctx context.Context, id string) (*domain.ReportBatch, error)
}

// BatchProcessor is the inbound contract for asynchronous batch
// processing.
type BatchProcessor interface {
	ProcessByID(ctx context.Context, batchID string) error
}

// QueueController governs the document lifecycle.
type QueueController interface {
	Pick(ctx context.Context, documentID string, actor domain.Actor) (*domain.Document, error)
	Submit(ctx context.Context, documentID string, actor domain.Actor, sub domain.Submission) (*domain.Document, error)
	Release(ctx context.Context, documentID string, actor domain.Actor) error
	Cancel(ctx context.Context, documentID string, actor domain.Actor) error
	ListOverdue(ctx context.Context, actor domain.Actor) ([]domain.OverdueDocument, error)
}
