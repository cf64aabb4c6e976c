package domain

import "time"

type ReportType string

const (
	ReportSimilarity ReportType = "similarity"
	ReportAI         ReportType = "ai"
	ReportUnknown    ReportType = ""
)

// AnalysisResult is what the PDF analyzer extracts from a report file.
type AnalysisResult struct {
	Type       ReportType `json:"type"`
	Percentage *float64   `json:"percentage,omitempty"`
}

// IncomingReport is a single file discovered during ingestion, either a
// direct upload or a ZIP entry.
type IncomingReport struct {
	FileName      string     `json:"file_name"`
	NormalizedKey string     `json:"normalized_key"`
	StoragePath   string     `json:"storage_path"`
	DetectedType  ReportType `json:"detected_type,omitempty"`
	Percentage    *float64   `json:"detected_percentage,omitempty"`
}

// UnmatchedReport is an IncomingReport that could not be mapped to any
// document and is retained for out-of-band operator assignment.
type UnmatchedReport struct {
	ID           string     `json:"id"`
	BatchID      string     `json:"batch_id"`
	FileName     string     `json:"file_name"`
	StoragePath  string     `json:"storage_path"`
	DetectedType ReportType `json:"detected_type,omitempty"`
	Percentage   *float64   `json:"detected_percentage,omitempty"`
	Reason       string     `json:"reason"`
	CreatedAt    time.Time  `json:"created_at"`
}

// FileOutcome is the per-file detail line of an ingestion result.
type FileOutcome struct {
	FileName   string     `json:"file_name"`
	Outcome    string     `json:"outcome"` // mapped | unmatched | error
	DocumentID string     `json:"document_id,omitempty"`
	ReportType ReportType `json:"report_type,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// IngestionResult aggregates one batch run. Every input file appears in
// exactly one of the detail lists, so no failure is silent.
type IngestionResult struct {
	Total       int           `json:"total"`
	Mapped      int           `json:"mapped"`
	Unmatched   int           `json:"unmatched"`
	Completed   int           `json:"completed"`
	NeedsReview int           `json:"needs_review"`
	Errors      int           `json:"errors"`
	Files       []FileOutcome `json:"files"`
}
