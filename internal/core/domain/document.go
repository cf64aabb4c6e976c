package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusInProgress DocumentStatus = "in_progress"
	StatusCompleted  DocumentStatus = "completed"
	StatusCancelled  DocumentStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type ScanType string

const (
	ScanFull           ScanType = "full"
	ScanSimilarityOnly ScanType = "similarity_only"
)

// RequiredReports lists the report types a document of this scan type
// must carry before it may be completed.
func (t ScanType) RequiredReports() []ReportType {
	if t == ScanSimilarityOnly {
		return []ReportType{ReportSimilarity}
	}
	return []ReportType{ReportSimilarity, ReportAI}
}

type Document struct {
	ID                   string         `json:"id"`
	OriginalFilename     string         `json:"original_filename"`
	NormalizedKey        string         `json:"normalized_key"`
	ScanType             ScanType       `json:"scan_type"`
	Status               DocumentStatus `json:"status"`
	AssignedStaffID      string         `json:"assigned_staff_id,omitempty"`
	AssignedAt           *time.Time     `json:"assigned_at,omitempty"`
	SimilarityReportPath string         `json:"similarity_report_path,omitempty"`
	AIReportPath         string         `json:"ai_report_path,omitempty"`
	SimilarityPercentage *float64       `json:"similarity_percentage,omitempty"`
	AIPercentage         *float64       `json:"ai_percentage,omitempty"`
	NeedsReview          bool           `json:"needs_review"`
	Remarks              string         `json:"remarks,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// ReportPath returns the stored path for the given report type, empty
// when that slot has not been filled yet.
func (d *Document) ReportPath(t ReportType) string {
	if t == ReportAI {
		return d.AIReportPath
	}
	return d.SimilarityReportPath
}

// ReportsComplete reports whether every report slot required by the
// document's scan type holds a non-empty path.
func (d *Document) ReportsComplete() bool {
	for _, t := range d.ScanType.RequiredReports() {
		if d.ReportPath(t) == "" {
			return false
		}
	}
	return true
}

// Overdue derives the advisory timeout flag: a document is overdue when
// it has been assigned longer than the effective time limit. Overdue
// documents stay workable by their assignee; release is a manual admin
// action, never automatic.
func (d *Document) Overdue(now time.Time, timeLimit time.Duration) bool {
	if d.Status != StatusInProgress || d.AssignedAt == nil || timeLimit <= 0 {
		return false
	}
	return now.Sub(*d.AssignedAt) >= timeLimit
}
