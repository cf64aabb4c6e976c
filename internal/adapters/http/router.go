package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scanworks/reportbroker/internal/core/domain"
	"github.com/scanworks/reportbroker/internal/core/ports"
	"github.com/scanworks/reportbroker/internal/observability/metrics"
)

const (
	staffIDHeader   = "X-Staff-Id"
	staffRoleHeader = "X-Staff-Role"

	maxUploadBytes = 256 << 20
)

type RouterConfig struct {
	Service       string
	RateLimitRPS  int
	RateBurst     int
	MaxConcurrent int
}

type Router struct {
	previewer ports.MatchPreviewer
	batches   ports.BatchIngestor
	queue     ports.QueueController
	docs      ports.DocumentRepository
	unmatched ports.UnmatchedReportStore
	exporter  ports.UnmatchedExporter
	metrics   *metrics.HTTPServerMetrics
	cfg       RouterConfig
}

func NewRouter(
	previewer ports.MatchPreviewer,
	batches ports.BatchIngestor,
	queue ports.QueueController,
	docs ports.DocumentRepository,
	unmatched ports.UnmatchedReportStore,
	exporter ports.UnmatchedExporter,
	m *metrics.HTTPServerMetrics,
	cfg RouterConfig,
) *Router {
	return &Router{
		previewer: previewer,
		batches:   batches,
		queue:     queue,
		docs:      docs,
		unmatched: unmatched,
		exporter:  exporter,
		metrics:   m,
		cfg:       cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/batches", rt.submitBatch)
	mux.HandleFunc("/v1/batches/preview", rt.previewMatches)
	mux.HandleFunc("/v1/batches/", rt.getBatch)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	mux.HandleFunc("/v1/queue/overdue", rt.listOverdue)
	mux.HandleFunc("/v1/unmatched/export", rt.exportUnmatched)

	var handler http.Handler = mux
	handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	handler = accessLogMiddleware(handler)
	if rt.cfg.RateLimitRPS > 0 {
		limiter := rate.NewLimiter(rate.Limit(rt.cfg.RateLimitRPS), rt.cfg.RateBurst)
		handler = rateLimitMiddleware(limiter, func() {
			rt.metrics.RecordRateLimited(rt.cfg.Service)
		}, handler)
	}
	handler = backpressureMiddleware(rt.cfg.MaxConcurrent, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorFromRequest trusts the upstream gateway's identity headers.
// Authentication itself happens before this service.
func actorFromRequest(r *http.Request) (domain.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(staffIDHeader))
	if id == "" {
		return domain.Actor{}, domain.WrapError(domain.ErrUnauthorized, "identify actor",
			errors.New("missing "+staffIDHeader+" header"))
	}
	role := domain.StaffRole(strings.TrimSpace(r.Header.Get(staffRoleHeader)))
	switch role {
	case domain.RoleAdmin, domain.RoleStaff:
	case "":
		role = domain.RoleStaff
	default:
		return domain.Actor{}, domain.WrapError(domain.ErrInvalidInput, "parse staff role",
			errors.New("unknown role "+string(role)))
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func (rt *Router) previewMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Filenames []string `json:"filenames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Filenames) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filenames are required"})
		return
	}

	previews, err := rt.previewer.Preview(r.Context(), req.Filenames)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rt.metrics.RecordMatchPreview(rt.cfg.Service, len(previews))
	for i := range previews {
		rt.metrics.RecordMatchClassification(rt.cfg.Service, string(previews[i].Status))
	}
	writeJSON(w, http.StatusOK, map[string]any{"previews": previews})
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	files := make([]domain.UploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable upload: " + header.Filename})
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable upload: " + header.Filename})
			return
		}
		files = append(files, domain.UploadedFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	assignments := map[string]string{}
	if raw := r.FormValue("assignments"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &assignments); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "field 'assignments' must be a JSON object of filename to document id"})
			return
		}
	}

	batch, err := rt.batches.SubmitBatch(r.Context(), actor, files, assignments)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rt.metrics.RecordBatchSubmitted(rt.cfg.Service, len(files))
	writeJSON(w, http.StatusAccepted, batch)
}

func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/batches/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}

	batch, err := rt.batches.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// documentSubtree dispatches /v1/documents/{id} and the lifecycle
// actions below it.
func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch action {
	case "":
		rt.getDocument(w, r, id)
	case "pick":
		rt.pickDocument(w, r, id)
	case "submit":
		rt.submitDocument(w, r, id)
	case "release":
		rt.releaseDocument(w, r, id)
	case "cancel":
		rt.cancelDocument(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown document action"})
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) pickDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := rt.queue.Pick(r.Context(), id, actor)
	rt.metrics.RecordQueueAction(rt.cfg.Service, "pick", err)
	if err != nil {
		if domain.IsKind(err, domain.ErrLimitExceeded) {
			rt.metrics.RecordLimitRejection(rt.cfg.Service)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) submitDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sub, err := parseSubmission(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := rt.queue.Submit(r.Context(), id, actor, sub)
	rt.metrics.RecordQueueAction(rt.cfg.Service, "submit", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func parseSubmission(r *http.Request) (domain.Submission, error) {
	var sub domain.Submission

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return sub, domain.WrapError(domain.ErrInvalidInput, "parse submission form", err)
	}

	similarity, err := formFile(r, "similarity_file")
	if err != nil {
		return sub, err
	}
	ai, err := formFile(r, "ai_file")
	if err != nil {
		return sub, err
	}
	sub.SimilarityFile = similarity
	sub.AIFile = ai

	sub.SimilarityPercentage, err = formPercentage(r, "similarity_percentage")
	if err != nil {
		return sub, err
	}
	sub.AIPercentage, err = formPercentage(r, "ai_percentage")
	if err != nil {
		return sub, err
	}
	sub.Remarks = strings.TrimSpace(r.FormValue("remarks"))
	return sub, nil
}

func formFile(r *http.Request, field string) (*domain.UploadedFile, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read form file "+field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read form file "+field, err)
	}
	return &domain.UploadedFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func formPercentage(r *http.Request, field string) (*float64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse "+field, err)
	}
	if value < 0 || value > 100 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse "+field,
			errors.New("percentage out of range"))
	}
	return &value, nil
}

func (rt *Router) releaseDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = rt.queue.Release(r.Context(), id, actor)
	rt.metrics.RecordQueueAction(rt.cfg.Service, "release", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (rt *Router) cancelDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = rt.queue.Cancel(r.Context(), id, actor)
	rt.metrics.RecordQueueAction(rt.cfg.Service, "cancel", err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (rt *Router) listOverdue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	overdue, err := rt.queue.ListOverdue(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overdue": overdue})
}

func (rt *Router) exportUnmatched(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !actor.IsAdmin() {
		writeError(w, r, domain.WrapError(domain.ErrForbidden, "export unmatched reports",
			errors.New("admin role required")))
		return
	}

	reports, err := rt.unmatched.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := rt.exporter.Export(reports)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filename := "unmatched-reports-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	body := map[string]string{"error": err.Error()}
	if status == http.StatusInternalServerError {
		// Internal detail stays in the logs, keyed by request id.
		body["error"] = "internal error"
		body["request_id"] = requestIDFromContext(r.Context())
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
