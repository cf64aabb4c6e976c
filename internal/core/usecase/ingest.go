package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/core/ports"
)

const (
	reportContentType  = "application/pdf"
	archiveContentType = "application/zip"
)

// IngestPipeline runs one report batch through flatten, persist,
// classify, reconcile and apply. Files are processed sequentially
// within a batch; batches may run concurrently because every apply is a
// conditional write against live document state.
type IngestPipeline struct {
	docs      ports.DocumentRepository
	unmatched ports.UnmatchedReportStore
	storage   ports.ObjectStorage
	analyzer  ports.ReportAnalyzer
	expander  ports.ArchiveExpander
	matcher   *MatchEngine
	notifier  ports.Notifier
	logger    *slog.Logger
}

func NewIngestPipeline(
	docs ports.DocumentRepository,
	unmatched ports.UnmatchedReportStore,
	storage ports.ObjectStorage,
	analyzer ports.ReportAnalyzer,
	expander ports.ArchiveExpander,
	matcher *MatchEngine,
	notifier ports.Notifier,
	logger *slog.Logger,
) *IngestPipeline {
	return &IngestPipeline{
		docs:      docs,
		unmatched: unmatched,
		storage:   storage,
		analyzer:  analyzer,
		expander:  expander,
		matcher:   matcher,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run processes the batch files. Manual assignments (file name to
// document id, from a confirmed preview) take precedence over automatic
// matching; without one, only an exact match auto-applies. The returned
// result lists every input file exactly once.
func (p *IngestPipeline) Run(
	ctx context.Context,
	batchID string,
	files []domain.UploadedFile,
	assignments map[string]string,
) (*domain.IngestionResult, error) {
	result := &domain.IngestionResult{Files: []domain.FileOutcome{}}

	flattened := p.flatten(files, result)
	result.Total = len(result.Files) + len(flattened)

	for _, file := range flattened {
		outcome := p.processFile(ctx, batchID, file, assignments, result)
		result.Files = append(result.Files, outcome)
		switch outcome.Outcome {
		case "mapped":
			result.Mapped++
		case "unmatched":
			result.Unmatched++
		case "error":
			result.Errors++
		}
	}

	return result, nil
}

// flatten expands ZIP inputs into their PDF entries. A corrupt archive
// fails only that batch item; siblings continue.
func (p *IngestPipeline) flatten(files []domain.UploadedFile, result *domain.IngestionResult) []domain.UploadedFile {
	var flattened []domain.UploadedFile
	for _, file := range files {
		if !isArchive(file) {
			flattened = append(flattened, file)
			continue
		}
		entries, err := p.expander.Expand(file.Data)
		if err != nil {
			p.logger.Warn("archive_expand_failed", "file", file.Name, "error", err)
			result.Files = append(result.Files, domain.FileOutcome{
				FileName: file.Name,
				Outcome:  "error",
				Reason:   fmt.Sprintf("corrupt or unreadable archive: %v", err),
			})
			result.Errors++
			continue
		}
		flattened = append(flattened, entries...)
	}
	return flattened
}

func (p *IngestPipeline) processFile(
	ctx context.Context,
	batchID string,
	file domain.UploadedFile,
	assignments map[string]string,
	result *domain.IngestionResult,
) domain.FileOutcome {
	if !isPDF(file.Name) {
		return domain.FileOutcome{
			FileName: file.Name,
			Outcome:  "error",
			Reason:   "unsupported file type, expected pdf",
		}
	}

	storageKey := fmt.Sprintf("batches/%s/%s_%s", batchID, uuid.NewString(), sanitizeFilename(file.Name))
	if err := p.storage.Save(ctx, storageKey, bytes.NewReader(file.Data)); err != nil {
		p.logger.Error("report_persist_failed", "file", file.Name, "error", err)
		return domain.FileOutcome{
			FileName: file.Name,
			Outcome:  "error",
			Reason:   fmt.Sprintf("persist report file: %v", err),
		}
	}

	report := domain.IncomingReport{
		FileName:      file.Name,
		NormalizedKey: domain.NormalizeFilename(file.Name),
		StoragePath:   storageKey,
	}

	analysis, err := p.analyzer.Analyze(ctx, file.Data)
	if err != nil {
		// Classification failure is never fatal to the batch; the file
		// is retained for a human.
		result.NeedsReview++
		return p.fileUnmatched(ctx, batchID, report, fmt.Sprintf("analyzer could not classify file: %v", err))
	}
	report.DetectedType = analysis.Type
	report.Percentage = analysis.Percentage

	docID, reason, err := p.reconcile(ctx, report, assignments)
	if err != nil {
		return domain.FileOutcome{
			FileName: file.Name,
			Outcome:  "error",
			Reason:   fmt.Sprintf("reconcile report: %v", err),
		}
	}
	if docID == "" {
		return p.fileUnmatched(ctx, batchID, report, reason)
	}

	return p.apply(ctx, batchID, report, docID, result)
}

// reconcile resolves the report to a document id. Manual assignments
// win; otherwise only an exact match may auto-apply.
func (p *IngestPipeline) reconcile(
	ctx context.Context,
	report domain.IncomingReport,
	assignments map[string]string,
) (docID, reason string, err error) {
	if id, ok := assignments[report.FileName]; ok && id != "" {
		return id, "", nil
	}

	preview, err := p.matcher.MatchOne(ctx, report.FileName, report.DetectedType)
	if err != nil {
		return "", "", err
	}
	if preview.Status == domain.MatchExact {
		return preview.MatchedDocument.Document.ID, "", nil
	}
	if preview.Status == domain.MatchPartial {
		return "", fmt.Sprintf("ambiguous match (best confidence %d), manual confirmation required", topConfidence(preview)), nil
	}
	return "", "no document with matching filename in queue", nil
}

// apply writes the report onto the document. The slot update is
// first-writer-wins; a collision files the report unmatched and flags
// the document for review instead of overwriting.
func (p *IngestPipeline) apply(
	ctx context.Context,
	batchID string,
	report domain.IncomingReport,
	docID string,
	result *domain.IngestionResult,
) domain.FileOutcome {
	err := p.docs.AttachReport(ctx, docID, report.DetectedType, report.StoragePath, report.Percentage)
	if err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			result.NeedsReview++
			if reviewErr := p.docs.SetNeedsReview(ctx, docID, true); reviewErr != nil {
				p.logger.Error("needs_review_flag_failed", "document_id", docID, "error", reviewErr)
			}
			return p.fileUnmatched(ctx, batchID, report,
				fmt.Sprintf("document %s already has a %s report, kept first writer", docID, report.DetectedType))
		}
		return domain.FileOutcome{
			FileName: report.FileName,
			Outcome:  "error",
			Reason:   fmt.Sprintf("attach report to document %s: %v", docID, err),
		}
	}

	completed, err := p.docs.CompleteIfReady(ctx, docID)
	if err != nil {
		p.logger.Error("complete_check_failed", "document_id", docID, "error", err)
	}
	if completed {
		result.Completed++
		p.notifyCompleted(ctx, docID)
	}

	return domain.FileOutcome{
		FileName:   report.FileName,
		Outcome:    "mapped",
		DocumentID: docID,
		ReportType: report.DetectedType,
	}
}

func (p *IngestPipeline) fileUnmatched(
	ctx context.Context,
	batchID string,
	report domain.IncomingReport,
	reason string,
) domain.FileOutcome {
	rec := &domain.UnmatchedReport{
		ID:           uuid.NewString(),
		BatchID:      batchID,
		FileName:     report.FileName,
		StoragePath:  report.StoragePath,
		DetectedType: report.DetectedType,
		Percentage:   report.Percentage,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.unmatched.Create(ctx, rec); err != nil {
		p.logger.Error("unmatched_report_persist_failed", "file", report.FileName, "error", err)
		return domain.FileOutcome{
			FileName: report.FileName,
			Outcome:  "error",
			Reason:   fmt.Sprintf("record unmatched report: %v", err),
		}
	}
	if err := p.notifier.ReportNeedsReview(ctx, rec); err != nil {
		p.logger.Warn("needs_review_notify_failed", "file", report.FileName, "error", err)
	}
	return domain.FileOutcome{
		FileName: report.FileName,
		Outcome:  "unmatched",
		Reason:   reason,
	}
}

func (p *IngestPipeline) notifyCompleted(ctx context.Context, docID string) {
	doc, err := p.docs.GetByID(ctx, docID)
	if err != nil {
		p.logger.Warn("completed_document_reload_failed", "document_id", docID, "error", err)
		return
	}
	if err := p.notifier.DocumentCompleted(ctx, doc); err != nil {
		p.logger.Warn("completion_notify_failed", "document_id", docID, "error", err)
	}
}

func topConfidence(preview *domain.MatchPreview) int {
	if preview.MatchedDocument != nil {
		return preview.MatchedDocument.Confidence
	}
	if len(preview.Suggestions) > 0 {
		return preview.Suggestions[0].Confidence
	}
	return 0
}

func isArchive(file domain.UploadedFile) bool {
	if strings.EqualFold(filepath.Ext(file.Name), ".zip") {
		return true
	}
	return file.ContentType == archiveContentType
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "report.pdf"
	}
	return base
}
