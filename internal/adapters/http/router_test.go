package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/observability/metrics"
)

type previewerFake struct {
	previews []domain.MatchPreview
	err      error
}

func (f *previewerFake) Preview(context.Context, []string) ([]domain.MatchPreview, error) {
	return f.previews, f.err
}

type ingestorFake struct {
	batch *domain.ReportBatch
	err   error

	gotFiles       []domain.UploadedFile
	gotAssignments map[string]string
}

func (f *ingestorFake) SubmitBatch(_ context.Context, _ domain.Actor, files []domain.UploadedFile, assignments map[string]string) (*domain.ReportBatch, error) {
	f.gotFiles = files
	f.gotAssignments = assignments
	return f.batch, f.err
}

func (f *ingestorFake) GetBatch(context.Context, string) (*domain.ReportBatch, error) {
	return f.batch, f.err
}

type queueControllerFake struct {
	doc     *domain.Document
	overdue []domain.OverdueDocument
	err     error

	gotActor domain.Actor
}

func (f *queueControllerFake) Pick(_ context.Context, _ string, actor domain.Actor) (*domain.Document, error) {
	f.gotActor = actor
	return f.doc, f.err
}

func (f *queueControllerFake) Submit(_ context.Context, _ string, actor domain.Actor, _ domain.Submission) (*domain.Document, error) {
	f.gotActor = actor
	return f.doc, f.err
}

func (f *queueControllerFake) Release(_ context.Context, _ string, actor domain.Actor) error {
	f.gotActor = actor
	return f.err
}

func (f *queueControllerFake) Cancel(_ context.Context, _ string, actor domain.Actor) error {
	f.gotActor = actor
	return f.err
}

func (f *queueControllerFake) ListOverdue(_ context.Context, actor domain.Actor) ([]domain.OverdueDocument, error) {
	f.gotActor = actor
	return f.overdue, f.err
}

type docReaderFake struct {
	doc *domain.Document
	err error
}

func (f *docReaderFake) Create(context.Context, *domain.Document) error { return nil }
func (f *docReaderFake) GetByID(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}
func (f *docReaderFake) ListEligible(context.Context, domain.ReportType) ([]domain.Document, error) {
	return nil, nil
}
func (f *docReaderFake) ListAssigned(context.Context) ([]domain.Document, error) { return nil, nil }
func (f *docReaderFake) CountInProgress(context.Context, string) (int, error)    { return 0, nil }
func (f *docReaderFake) AssignToStaff(context.Context, string, string, time.Time) error {
	return nil
}
func (f *docReaderFake) Release(context.Context, string) error { return nil }
func (f *docReaderFake) Cancel(context.Context, string) error  { return nil }
func (f *docReaderFake) AttachReport(context.Context, string, domain.ReportType, string, *float64) error {
	return nil
}
func (f *docReaderFake) CompleteIfReady(context.Context, string) (bool, error) { return false, nil }
func (f *docReaderFake) SubmitCompletion(context.Context, string, domain.CompletionUpdate) error {
	return nil
}
func (f *docReaderFake) SetNeedsReview(context.Context, string, bool) error { return nil }

type unmatchedListFake struct {
	reports []domain.UnmatchedReport
}

func (f *unmatchedListFake) Create(context.Context, *domain.UnmatchedReport) error { return nil }
func (f *unmatchedListFake) List(context.Context) ([]domain.UnmatchedReport, error) {
	return f.reports, nil
}

type exporterFake struct {
	payload []byte
	err     error
}

func (f *exporterFake) Export([]domain.UnmatchedReport) ([]byte, error) {
	return f.payload, f.err
}

type routerFixture struct {
	previewer *previewerFake
	ingestor  *ingestorFake
	queue     *queueControllerFake
	docs      *docReaderFake
	unmatched *unmatchedListFake
	exporter  *exporterFake
}

func newTestRouter(t *testing.T, fx *routerFixture) http.Handler {
	t.Helper()
	if fx.previewer == nil {
		fx.previewer = &previewerFake{}
	}
	if fx.ingestor == nil {
		fx.ingestor = &ingestorFake{}
	}
	if fx.queue == nil {
		fx.queue = &queueControllerFake{}
	}
	if fx.docs == nil {
		fx.docs = &docReaderFake{}
	}
	if fx.unmatched == nil {
		fx.unmatched = &unmatchedListFake{}
	}
	if fx.exporter == nil {
		fx.exporter = &exporterFake{payload: []byte("xlsx")}
	}
	return NewRouter(
		fx.previewer, fx.ingestor, fx.queue, fx.docs, fx.unmatched, fx.exporter,
		metrics.NewHTTPServerMetrics("test"),
		RouterConfig{Service: "test"},
	).Handler()
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(t, &routerFixture{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	fx := &routerFixture{previewer: &previewerFake{previews: []domain.MatchPreview{
		{FileName: "essay_john.pdf", NormalizedKey: "essay_john", Status: domain.MatchExact, Suggestions: []domain.MatchCandidate{}},
	}}}
	handler := newTestRouter(t, fx)

	body := strings.NewReader(`{"filenames":["essay_john.pdf"]}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches/preview", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Previews []domain.MatchPreview `json:"previews"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Previews) != 1 || resp.Previews[0].Status != domain.MatchExact {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPreviewRequiresFilenames(t *testing.T) {
	handler := newTestRouter(t, &routerFixture{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches/preview", strings.NewReader(`{"filenames":[]}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func multipartBody(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestSubmitBatchEndpoint(t *testing.T) {
	fx := &routerFixture{ingestor: &ingestorFake{batch: &domain.ReportBatch{ID: "b1", Status: domain.BatchAccepted}}}
	handler := newTestRouter(t, fx)

	body, contentType := multipartBody(t,
		map[string]string{"essay_john.pdf": "pdfdata"},
		map[string]string{"assignments": `{"essay_john.pdf":"d1"}`},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(staffIDHeader, "s1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(fx.ingestor.gotFiles) != 1 || fx.ingestor.gotFiles[0].Name != "essay_john.pdf" {
		t.Fatalf("files not forwarded: %+v", fx.ingestor.gotFiles)
	}
	if fx.ingestor.gotAssignments["essay_john.pdf"] != "d1" {
		t.Fatalf("assignments not forwarded: %+v", fx.ingestor.gotAssignments)
	}
}

func TestSubmitBatchRequiresIdentity(t *testing.T) {
	handler := newTestRouter(t, &routerFixture{})

	body, contentType := multipartBody(t, map[string]string{"a.pdf": "x"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPickMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", domain.WrapError(domain.ErrConflict, "pick document", errors.New("taken")), http.StatusConflict},
		{"limit", domain.WrapError(domain.ErrLimitExceeded, "pick document", errors.New("full")), http.StatusTooManyRequests},
		{"not found", domain.WrapError(domain.ErrDocumentNotFound, "fetch document", errors.New("d9")), http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := &routerFixture{queue: &queueControllerFake{err: tc.err}}
			handler := newTestRouter(t, fx)

			req := httptest.NewRequest(http.MethodPost, "/v1/documents/d9/pick", nil)
			req.Header.Set(staffIDHeader, "s1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestPickForwardsActorRole(t *testing.T) {
	fx := &routerFixture{queue: &queueControllerFake{doc: &domain.Document{ID: "d1"}}}
	handler := newTestRouter(t, fx)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/d1/pick", nil)
	req.Header.Set(staffIDHeader, "adm")
	req.Header.Set(staffRoleHeader, "admin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if fx.queue.gotActor.Role != domain.RoleAdmin {
		t.Fatalf("role = %s, want admin", fx.queue.gotActor.Role)
	}
}

func TestUnknownDocumentAction(t *testing.T) {
	handler := newTestRouter(t, &routerFixture{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/d1/destroy", nil)
	req.Header.Set(staffIDHeader, "s1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestExportUnmatchedAdminOnly(t *testing.T) {
	handler := newTestRouter(t, &routerFixture{})

	req := httptest.NewRequest(http.MethodGet, "/v1/unmatched/export", nil)
	req.Header.Set(staffIDHeader, "s1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff export: status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/unmatched/export", nil)
	req.Header.Set(staffIDHeader, "adm")
	req.Header.Set(staffRoleHeader, "admin")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("admin export: status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type = %s", ct)
	}
	if rec.Body.String() != "xlsx" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	fx := &routerFixture{queue: &queueControllerFake{err: errors.New("pq: connection refused")}}
	handler := newTestRouter(t, fx)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/d1/pick", nil)
	req.Header.Set(staffIDHeader, "s1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("driver detail leaked: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "request_id") {
		t.Fatalf("request id missing: %s", rec.Body.String())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router := NewRouter(
		&previewerFake{}, &ingestorFake{}, &queueControllerFake{}, &docReaderFake{doc: &domain.Document{ID: "d1"}},
		&unmatchedListFake{}, &exporterFake{},
		metrics.NewHTTPServerMetrics("test"),
		RouterConfig{Service: "test", RateLimitRPS: 1, RateBurst: 1},
	)
	handler := router.Handler()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
}
