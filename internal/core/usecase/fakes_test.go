package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

// docRepoFake is an in-memory DocumentRepository honoring the same
// conditional-update contract as the Postgres implementation.
type docRepoFake struct {
	mu   sync.Mutex
	docs map[string]*domain.Document

	getErr    error
	assignErr error
	countErr  error

	assignCalls  int
	releaseCalls int
	cancelCalls  int
	reviewFlags  map[string]bool
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{
		docs:        map[string]*domain.Document{},
		reviewFlags: map[string]bool{},
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) ListEligible(_ context.Context, missing domain.ReportType) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Status.Terminal() {
			continue
		}
		if missing != domain.ReportUnknown && doc.ReportPath(missing) != "" {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (f *docRepoFake) ListAssigned(_ context.Context) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.Status == domain.StatusInProgress && doc.AssignedStaffID != "" {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) CountInProgress(_ context.Context, staffID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, doc := range f.docs {
		if doc.Status == domain.StatusInProgress && doc.AssignedStaffID == staffID {
			count++
		}
	}
	return count, nil
}

func (f *docRepoFake) AssignToStaff(_ context.Context, id, staffID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	if f.assignErr != nil {
		return f.assignErr
	}
	doc, ok := f.docs[id]
	if !ok || doc.Status != domain.StatusPending {
		return domain.WrapError(domain.ErrConflict, "assign document", errors.New("not pending"))
	}
	doc.Status = domain.StatusInProgress
	doc.AssignedStaffID = staffID
	doc.AssignedAt = &at
	return nil
}

func (f *docRepoFake) Release(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	doc, ok := f.docs[id]
	if !ok || doc.Status != domain.StatusInProgress {
		return domain.WrapError(domain.ErrConflict, "release document", errors.New("not in progress"))
	}
	doc.Status = domain.StatusPending
	doc.AssignedStaffID = ""
	doc.AssignedAt = nil
	return nil
}

func (f *docRepoFake) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	doc, ok := f.docs[id]
	if !ok || doc.Status.Terminal() {
		return domain.WrapError(domain.ErrConflict, "cancel document", errors.New("terminal"))
	}
	doc.Status = domain.StatusCancelled
	return nil
}

func (f *docRepoFake) AttachReport(_ context.Context, id string, t domain.ReportType, path string, percentage *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrConflict, "attach report", errors.New("unknown document"))
	}
	if doc.Status.Terminal() || doc.ReportPath(t) != "" {
		return domain.WrapError(domain.ErrConflict, "attach report", errors.New("slot already filled"))
	}
	if t == domain.ReportAI {
		doc.AIReportPath = path
		if percentage != nil {
			doc.AIPercentage = percentage
		}
		return nil
	}
	doc.SimilarityReportPath = path
	if percentage != nil {
		doc.SimilarityPercentage = percentage
	}
	return nil
}

func (f *docRepoFake) CompleteIfReady(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status.Terminal() || !doc.ReportsComplete() {
		return false, nil
	}
	doc.Status = domain.StatusCompleted
	return true, nil
}

func (f *docRepoFake) SubmitCompletion(_ context.Context, id string, sub domain.CompletionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status.Terminal() {
		return domain.WrapError(domain.ErrConflict, "submit completion", errors.New("terminal"))
	}
	doc.SimilarityReportPath = sub.SimilarityReportPath
	doc.AIReportPath = sub.AIReportPath
	doc.SimilarityPercentage = sub.SimilarityPercentage
	doc.AIPercentage = sub.AIPercentage
	doc.Remarks = sub.Remarks
	doc.Status = domain.StatusCompleted
	return nil
}

func (f *docRepoFake) SetNeedsReview(_ context.Context, id string, flag bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewFlags[id] = flag
	if doc, ok := f.docs[id]; ok {
		doc.NeedsReview = flag
	}
	return nil
}

type settingsFake struct {
	settings map[string]*domain.StaffSettings
	err      error
}

func (f *settingsFake) Get(_ context.Context, staffID string) (*domain.StaffSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.settings[staffID], nil
}

type storageFake struct {
	mu      sync.Mutex
	saved   map[string][]byte
	saveErr error
	deleted []string
}

func newStorageFake() *storageFake {
	return &storageFake{saved: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[key] = payload
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.saved[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type notifierFake struct {
	mu        sync.Mutex
	completed []string
	reviews   []string
	err       error
}

func (f *notifierFake) DocumentCompleted(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, doc.ID)
	return f.err
}

func (f *notifierFake) ReportNeedsReview(_ context.Context, rep *domain.UnmatchedReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, rep.FileName)
	return f.err
}

type unmatchedStoreFake struct {
	mu      sync.Mutex
	reports []domain.UnmatchedReport
	err     error
}

func (f *unmatchedStoreFake) Create(_ context.Context, rep *domain.UnmatchedReport) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, *rep)
	return nil
}

func (f *unmatchedStoreFake) List(_ context.Context) ([]domain.UnmatchedReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.UnmatchedReport{}, f.reports...), nil
}

type analyzerFake struct {
	results map[string]domain.AnalysisResult
	result  domain.AnalysisResult
	err     error
}

func (f *analyzerFake) Analyze(_ context.Context, data []byte) (domain.AnalysisResult, error) {
	if f.err != nil {
		return domain.AnalysisResult{}, f.err
	}
	if f.results != nil {
		if res, ok := f.results[string(data)]; ok {
			return res, nil
		}
	}
	return f.result, nil
}

type expanderFake struct {
	entries []domain.UploadedFile
	err     error
}

func (f *expanderFake) Expand([]byte) ([]domain.UploadedFile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

// editScorerFake scores by shared-prefix length, enough to steer the
// tier classification in tests.
type editScorerFake struct {
	scores map[[2]string]int
}

func (f *editScorerFake) Score(a, b string) int {
	if f.scores != nil {
		if s, ok := f.scores[[2]string{a, b}]; ok {
			return s
		}
		if s, ok := f.scores[[2]string{b, a}]; ok {
			return s
		}
	}
	return 0
}

type batchRepoFake struct {
	mu      sync.Mutex
	batches map[string]*domain.ReportBatch

	markProcessingErr error
	saveResultErr     error
}

func newBatchRepoFake(batches ...*domain.ReportBatch) *batchRepoFake {
	f := &batchRepoFake{batches: map[string]*domain.ReportBatch{}}
	for _, batch := range batches {
		f.batches[batch.ID] = batch
	}
	return f
}

func (f *batchRepoFake) Create(_ context.Context, batch *domain.ReportBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[batch.ID] = batch
	return nil
}

func (f *batchRepoFake) GetByID(_ context.Context, id string) (*domain.ReportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrBatchNotFound, "get batch", errors.New(id))
	}
	copyBatch := *batch
	return &copyBatch, nil
}

func (f *batchRepoFake) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markProcessingErr != nil {
		return f.markProcessingErr
	}
	batch, ok := f.batches[id]
	if !ok || batch.Status != domain.BatchAccepted {
		return domain.WrapError(domain.ErrConflict, "mark batch processing", errors.New("not accepted"))
	}
	batch.Status = domain.BatchProcessing
	return nil
}

func (f *batchRepoFake) SaveResult(_ context.Context, id string, result *domain.IngestionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveResultErr != nil {
		return f.saveResultErr
	}
	batch := f.batches[id]
	batch.Status = domain.BatchDone
	batch.Result = result
	return nil
}

func (f *batchRepoFake) MarkFailed(_ context.Context, id, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.batches[id]
	batch.Status = domain.BatchFailed
	batch.Error = errMessage
	return nil
}

type batchQueueFake struct {
	published []string
	err       error
}

func (f *batchQueueFake) PublishBatchSubmitted(_ context.Context, batchID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, batchID)
	return nil
}

func (f *batchQueueFake) SubscribeBatchSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}
