package domain

import "time"

// UploadedFile is an in-memory file moving through the ingestion
// pipeline: a direct upload, a submit attachment, or a ZIP entry.
type UploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Submission carries a staff member's completed work for one document.
type Submission struct {
	SimilarityFile       *UploadedFile
	AIFile               *UploadedFile
	SimilarityPercentage *float64
	AIPercentage         *float64
	Remarks              string
}

// CompletionUpdate is the atomic write applied by a successful submit.
type CompletionUpdate struct {
	SimilarityReportPath string
	AIReportPath         string
	SimilarityPercentage *float64
	AIPercentage         *float64
	Remarks              string
}

// OverdueDocument flags an assignment that exceeded its advisory time
// limit and awaits manual admin release.
type OverdueDocument struct {
	Document  Document      `json:"document"`
	StaffID   string        `json:"staff_id"`
	Elapsed   time.Duration `json:"elapsed"`
	TimeLimit time.Duration `json:"time_limit"`
}
