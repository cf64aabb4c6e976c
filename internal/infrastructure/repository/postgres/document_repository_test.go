package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, original_filename, normalized_key").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansNullableColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "original_filename", "normalized_key", "scan_type", "status", "assigned_staff_id", "assigned_at",
		"similarity_report_path", "ai_report_path", "similarity_percentage", "ai_percentage", "needs_review",
		"remarks", "created_at", "updated_at",
	}).AddRow("d1", "Essay_John.docx", "essay_john", "full", "pending", nil, nil, nil, nil, nil, nil, false, nil, now, now)

	mock.ExpectQuery("SELECT id, original_filename, normalized_key").
		WithArgs("d1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.AssignedStaffID != "" || doc.AssignedAt != nil {
		t.Fatalf("null assignment columns not mapped: %+v", doc)
	}
	if doc.SimilarityPercentage != nil || doc.AIPercentage != nil {
		t.Fatalf("null percentages not mapped: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAssignToStaffLostRaceReturnsConflict(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "s1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignToStaff(context.Background(), "d1", "s1", time.Now().UTC())
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAttachReportFilledSlotReturnsConflict(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "batches/b1/essay.pdf", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachReport(context.Background(), "d1", domain.ReportSimilarity, "batches/b1/essay.pdf", nil)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAttachReportSuccess(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	pct := 17.5
	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "batches/b1/essay.pdf", &pct, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AttachReport(context.Background(), "d1", domain.ReportAI, "batches/b1/essay.pdf", &pct); err != nil {
		t.Fatalf("AttachReport: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAttachReportRejectsUnknownType(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	err := repo.AttachReport(context.Background(), "d1", domain.ReportUnknown, "p", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompleteIfReadyReportsTransition(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	completed, err := repo.CompleteIfReady(context.Background(), "d1")
	if err != nil {
		t.Fatalf("CompleteIfReady: %v", err)
	}
	if !completed {
		t.Fatal("expected transition to be reported")
	}

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	completed, err = repo.CompleteIfReady(context.Background(), "d1")
	if err != nil {
		t.Fatalf("CompleteIfReady: %v", err)
	}
	if completed {
		t.Fatal("no rows affected must mean no transition")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSubmitCompletionTerminalReturnsConflict(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("d1", "a.pdf", "b.pdf", nil, nil, "looks fine", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SubmitCompletion(context.Background(), "d1", domain.CompletionUpdate{
		SimilarityReportPath: "a.pdf",
		AIReportPath:         "b.pdf",
		Remarks:              "looks fine",
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSetNeedsReviewMissingDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetNeedsReview(context.Background(), "missing", true)
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountInProgress(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountInProgress(context.Background(), "s1")
	if err != nil {
		t.Fatalf("CountInProgress: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
