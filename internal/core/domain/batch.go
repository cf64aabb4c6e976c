package domain

import "time"

type BatchStatus string

const (
	BatchAccepted   BatchStatus = "accepted"
	BatchProcessing BatchStatus = "processing"
	BatchDone       BatchStatus = "done"
	BatchFailed     BatchStatus = "failed"
)

// BatchFile is one raw upload belonging to a batch, persisted before
// the worker picks the batch up.
type BatchFile struct {
	FileName    string `json:"file_name"`
	StoragePath string `json:"storage_path"`
	ContentType string `json:"content_type"`
}

// ReportBatch tracks one submitted set of report files through the
// asynchronous ingestion pipeline.
type ReportBatch struct {
	ID          string            `json:"id"`
	SubmittedBy string            `json:"submitted_by"`
	Status      BatchStatus       `json:"status"`
	Files       []BatchFile       `json:"files"`
	Assignments map[string]string `json:"assignments,omitempty"` // file name -> document id, from a confirmed preview
	Result      *IngestionResult  `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
