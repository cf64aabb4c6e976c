package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/core/ports"
)

// QueueDefaults apply to staff without explicit settings.
type QueueDefaults struct {
	MaxConcurrentFiles int
	TimeLimit          time.Duration
}

// QueueService is the document lifecycle state machine: pending ->
// in_progress -> completed, with release back to pending and admin-only
// cancel. Every transition is atomic with respect to the document row.
type QueueService struct {
	docs     ports.DocumentRepository
	settings ports.StaffSettingsStore
	storage  ports.ObjectStorage
	notifier ports.Notifier
	defaults QueueDefaults
	logger   *slog.Logger
}

func NewQueueService(
	docs ports.DocumentRepository,
	settings ports.StaffSettingsStore,
	storage ports.ObjectStorage,
	notifier ports.Notifier,
	defaults QueueDefaults,
	logger *slog.Logger,
) *QueueService {
	return &QueueService{
		docs:     docs,
		settings: settings,
		storage:  storage,
		notifier: notifier,
		defaults: defaults,
		logger:   logger,
	}
}

// Pick assigns a pending document to the acting staff member, enforcing
// the per-staff concurrency ceiling unless the actor may bypass it. The
// assignment itself is conditioned on the document still being pending,
// so two racing pickers cannot both win.
func (s *QueueService) Pick(ctx context.Context, documentID string, actor domain.Actor) (*domain.Document, error) {
	if actor.ID == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "pick document", errors.New("missing staff identity"))
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusPending {
		return nil, domain.WrapError(domain.ErrConflict, "pick document",
			fmt.Errorf("document is %s, not pending", doc.Status))
	}

	if !actor.CanBypassConcurrencyLimit() {
		limit := s.defaults.MaxConcurrentFiles
		if settings, err := s.settings.Get(ctx, actor.ID); err != nil {
			return nil, fmt.Errorf("load staff settings: %w", err)
		} else if settings != nil && settings.MaxConcurrentFiles > 0 {
			limit = settings.MaxConcurrentFiles
		}
		inProgress, err := s.docs.CountInProgress(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("count in-progress documents: %w", err)
		}
		if inProgress >= limit {
			return nil, domain.WrapError(domain.ErrLimitExceeded, "pick document",
				fmt.Errorf("staff %s has %d of %d documents in progress", actor.ID, inProgress, limit))
		}
	}

	if err := s.docs.AssignToStaff(ctx, documentID, actor.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.docs.GetByID(ctx, documentID)
}

// Submit records the finished work and completes the document. Only the
// assigned staff member or an admin may submit. For the full scan type
// a non-admin must supply both report files; this is policy, not a UI
// hint.
func (s *QueueService) Submit(ctx context.Context, documentID string, actor domain.Actor, sub domain.Submission) (*domain.Document, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status.Terminal() {
		return nil, domain.WrapError(domain.ErrConflict, "submit document",
			fmt.Errorf("document is already %s", doc.Status))
	}
	if !actor.IsAdmin() && (doc.AssignedStaffID != actor.ID || doc.Status != domain.StatusInProgress) {
		return nil, domain.WrapError(domain.ErrForbidden, "submit document",
			errors.New("only the assigned staff member or an admin may submit"))
	}

	if !actor.IsAdmin() {
		if sub.SimilarityFile == nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "submit document",
				errors.New("similarity report file is required"))
		}
		if doc.ScanType == domain.ScanFull && sub.AIFile == nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "submit document",
				errors.New("ai report file is required for full scans"))
		}
	}

	update, err := s.buildCompletion(ctx, doc, sub)
	if err != nil {
		return nil, err
	}

	if err := s.docs.SubmitCompletion(ctx, documentID, update); err != nil {
		return nil, err
	}

	completed, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.DocumentCompleted(ctx, completed); err != nil {
		s.logger.Warn("completion_notify_failed", "document_id", documentID, "error", err)
	}
	return completed, nil
}

// buildCompletion stores submitted files and merges them with report
// slots already filled by ingestion. The completion invariant holds for
// admins too: every required slot must end up non-empty.
func (s *QueueService) buildCompletion(ctx context.Context, doc *domain.Document, sub domain.Submission) (domain.CompletionUpdate, error) {
	update := domain.CompletionUpdate{
		SimilarityReportPath: doc.SimilarityReportPath,
		AIReportPath:         doc.AIReportPath,
		SimilarityPercentage: firstNonNil(sub.SimilarityPercentage, doc.SimilarityPercentage),
		AIPercentage:         firstNonNil(sub.AIPercentage, doc.AIPercentage),
		Remarks:              sub.Remarks,
	}

	if sub.SimilarityFile != nil {
		path, err := s.storeSubmission(ctx, doc.ID, sub.SimilarityFile)
		if err != nil {
			return domain.CompletionUpdate{}, err
		}
		update.SimilarityReportPath = path
	}
	if sub.AIFile != nil {
		path, err := s.storeSubmission(ctx, doc.ID, sub.AIFile)
		if err != nil {
			return domain.CompletionUpdate{}, err
		}
		update.AIReportPath = path
	}

	for _, t := range doc.ScanType.RequiredReports() {
		missing := (t == domain.ReportSimilarity && update.SimilarityReportPath == "") ||
			(t == domain.ReportAI && update.AIReportPath == "")
		if missing {
			return domain.CompletionUpdate{}, domain.WrapError(domain.ErrInvalidInput, "submit document",
				fmt.Errorf("%s report is required before completion", t))
		}
	}
	return update, nil
}

func (s *QueueService) storeSubmission(ctx context.Context, docID string, file *domain.UploadedFile) (string, error) {
	key := fmt.Sprintf("submissions/%s/%s_%s", docID, uuid.NewString(), sanitizeFilename(file.Name))
	if err := s.storage.Save(ctx, key, bytes.NewReader(file.Data)); err != nil {
		return "", fmt.Errorf("store submitted report: %w", err)
	}
	return key, nil
}

// Release returns an in-progress document to the pending pool. Admin
// only; staff cannot drop assignments themselves.
func (s *QueueService) Release(ctx context.Context, documentID string, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return domain.WrapError(domain.ErrForbidden, "release document",
			errors.New("only admins may release assignments"))
	}
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != domain.StatusInProgress {
		return domain.WrapError(domain.ErrConflict, "release document",
			fmt.Errorf("document is %s, not in progress", doc.Status))
	}
	return s.docs.Release(ctx, documentID)
}

// Cancel is terminal and admin only.
func (s *QueueService) Cancel(ctx context.Context, documentID string, actor domain.Actor) error {
	if !actor.IsAdmin() {
		return domain.WrapError(domain.ErrForbidden, "cancel document",
			errors.New("only admins may cancel documents"))
	}
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status.Terminal() {
		return domain.WrapError(domain.ErrConflict, "cancel document",
			fmt.Errorf("document is already %s", doc.Status))
	}
	return s.docs.Cancel(ctx, documentID)
}

// ListOverdue derives the advisory timeout flag for every assigned
// document. No background scheduler: overdue is computed at read time
// from assigned_at and the assignee's effective time limit.
func (s *QueueService) ListOverdue(ctx context.Context, actor domain.Actor) ([]domain.OverdueDocument, error) {
	if !actor.IsAdmin() {
		return nil, domain.WrapError(domain.ErrForbidden, "list overdue documents",
			errors.New("only admins may list overdue documents"))
	}

	assigned, err := s.docs.ListAssigned(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assigned documents: %w", err)
	}

	now := time.Now().UTC()
	overdue := []domain.OverdueDocument{}
	for _, doc := range assigned {
		limit := s.defaults.TimeLimit
		if settings, err := s.settings.Get(ctx, doc.AssignedStaffID); err != nil {
			return nil, fmt.Errorf("load staff settings: %w", err)
		} else if settings != nil && settings.TimeLimit > 0 {
			limit = settings.TimeLimit
		}
		if !doc.Overdue(now, limit) {
			continue
		}
		overdue = append(overdue, domain.OverdueDocument{
			Document:  doc,
			StaffID:   doc.AssignedStaffID,
			Elapsed:   now.Sub(*doc.AssignedAt),
			TimeLimit: limit,
		})
	}
	return overdue, nil
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
