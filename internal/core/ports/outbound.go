package ports

import (
	"context"
	"io"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// DocumentRepository persists document state. Every transition is a
// conditional update: implementations must guard the expected current
// state in the write itself, not check-then-write.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)

	// ListEligible returns pending/in_progress documents still lacking
	// the given report slot. ReportUnknown means no slot filter.
	ListEligible(ctx context.Context, missing domain.ReportType) ([]domain.Document, error)
	ListAssigned(ctx context.Context) ([]domain.Document, error)
	CountInProgress(ctx context.Context, staffID string) (int, error)

	// AssignToStaff succeeds only while the document is still pending;
	// a lost race surfaces as domain.ErrConflict.
	AssignToStaff(ctx context.Context, id, staffID string, at time.Time) error
	Release(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error

	// AttachReport fills one report slot only when it is still empty
	// (first-writer-wins) and merges percentages without touching the
	// other slot.
	AttachReport(ctx context.Context, id string, t domain.ReportType, path string, percentage *float64) error

	// CompleteIfReady transitions to completed only when every slot
	// required by the document's scan type is filled. Returns whether
	// the transition happened.
	CompleteIfReady(ctx context.Context, id string) (bool, error)

	// SubmitCompletion atomically writes both report slots, percentages
	// and remarks and completes the document.
	SubmitCompletion(ctx context.Context, id string, sub domain.CompletionUpdate) error

	SetNeedsReview(ctx context.Context, id string, flag bool) error
}

// UnmatchedReportStore retains reports that could not be reconciled.
type UnmatchedReportStore interface {
	Create(ctx context.Context, rep *domain.UnmatchedReport) error
	List(ctx context.Context) ([]domain.UnmatchedReport, error)
}

// BatchRepository tracks report batches through the async pipeline.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.ReportBatch) error
	GetByID(ctx context.Context, id string) (*domain.ReportBatch, error)
	MarkProcessing(ctx context.Context, id string) error
	SaveResult(ctx context.Context, id string, result *domain.IngestionResult) error
	MarkFailed(ctx context.Context, id, errMessage string) error
}

// StaffSettingsStore reads per-staff queue configuration. A nil result
// without error means the staff member has no explicit settings and
// global defaults apply.
type StaffSettingsStore interface {
	Get(ctx context.Context, staffID string) (*domain.StaffSettings, error)
}

// ObjectStorage stores raw report files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ReportAnalyzer classifies a report PDF into a type and percentage.
type ReportAnalyzer interface {
	Analyze(ctx context.Context, data []byte) (domain.AnalysisResult, error)
}

// ArchiveExpander flattens a ZIP upload into its PDF entries.
type ArchiveExpander interface {
	Expand(data []byte) ([]domain.UploadedFile, error)
}

// SimilarityScorer scores two normalized keys on a 0..100 scale.
type SimilarityScorer interface {
	Score(a, b string) int
}

// BatchQueue carries submitted batch ids from the API to the worker.
type BatchQueue interface {
	PublishBatchSubmitted(ctx context.Context, batchID string) error
	SubscribeBatchSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// Notifier receives completion and needs-review events. Failures here
// never roll anything back; callers log and move on.
type Notifier interface {
	DocumentCompleted(ctx context.Context, doc *domain.Document) error
	ReportNeedsReview(ctx context.Context, rep *domain.UnmatchedReport) error
}

// UnmatchedExporter renders unmatched reports for operator handling.
type UnmatchedExporter interface {
	Export(reports []domain.UnmatchedReport) ([]byte, error)
}
