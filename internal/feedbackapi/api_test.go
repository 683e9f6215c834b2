package feedbackapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/feedback/memstore"
	"github.com/linnemanlabs/harken/internal/guard"
	"github.com/linnemanlabs/harken/internal/triage"
	"github.com/linnemanlabs/harken/internal/triage/rules"
)

const adminToken = "test-admin-token"

// fakeService implements FeedbackService with canned results.
type fakeService struct {
	mu         sync.Mutex
	submitErr  error
	getErr     error
	listErr    error
	statusErr  error
	deptErr    error
	lastFilter feedback.Filter
	lastSub    triage.Submission
	records    []*feedback.Record
}

func (f *fakeService) Submit(_ context.Context, sub triage.Submission) (*feedback.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSub = sub
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &feedback.Record{
		ID:         "01JA0000000000000000000001",
		Submission: sub,
		Classification: triage.Classification{
			Sentiment: triage.SentimentNeutral, Category: triage.CategoryGeneral,
			Priority: triage.PriorityLow, Department: "Student Affairs", Status: triage.StatusNew,
		},
		CreatedAt: time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeService) Preview(_ context.Context, sub triage.Submission) (triage.Classification, error) {
	if strings.TrimSpace(sub.Message) == "" {
		return triage.Classification{}, &feedback.ValidationError{Field: "message", Reason: "is required"}
	}
	return triage.Classification{Priority: triage.PriorityLow}, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*feedback.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &feedback.Record{ID: id}, nil
}

func (f *fakeService) List(_ context.Context, flt feedback.Filter) ([]*feedback.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = flt
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeService) Departments(_ context.Context) ([]feedback.Department, error) {
	if f.deptErr != nil {
		return nil, f.deptErr
	}
	return nil, nil
}

func (f *fakeService) UpdateStatus(_ context.Context, id string, to triage.Status) (*feedback.Record, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &feedback.Record{ID: id, Classification: triage.Classification{Status: to}}, nil
}

func newFakeRouter(t *testing.T, svc *fakeService) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	New(nil, svc, Options{AdminToken: adminToken}).RegisterRoutes(r)
	return r
}

// newRealRouter wires the real service, engine and in-memory store.
func newRealRouter(t *testing.T, opts Options) chi.Router {
	t.Helper()
	rs := rules.Default()
	engine, err := triage.NewEngine(rs)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	svc := feedback.NewService(memstore.New(), engine, log.Nop(), feedback.Options{})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	depts := make([]feedback.Department, len(rs.Departments))
	for i, d := range rs.Departments {
		depts[i] = feedback.Department{Name: d.Name, Description: d.Description}
	}
	if err := svc.SeedDepartments(context.Background(), depts); err != nil {
		t.Fatalf("SeedDepartments: %v", err)
	}

	if opts.AdminToken == "" {
		opts.AdminToken = adminToken
	}
	r := chi.NewRouter()
	New(log.Nop(), svc, opts).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

const validJSON = `{"parent_name":"Ana Costa","parent_email":"ana@example.com","student_id":"S-1","message":"The hostel mess food made my child sick, this is urgent!"}`

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &fakeService{}, Options{})
	if api.logger == nil {
		t.Fatal("New(nil, svc) left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, Options{})
}

// Intake

func TestSubmit_EndToEnd(t *testing.T) {
	t.Parallel()

	r := newRealRouter(t, Options{})
	rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", validJSON, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rec.Code, rec.Body.String())
	}

	got := decode[map[string]any](t, rec)
	want := map[string]any{
		"sentiment":  "negative",
		"category":   "accommodation",
		"priority":   "urgent",
		"department": "Hostel",
		"status":     "new",
		"urgent":     true,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["parent_email"]; ok {
		t.Error("response must not echo the parent email")
	}
	id, _ := got["id"].(string)
	if loc := rec.Header().Get("Location"); loc != "/api/v1/feedback/"+id {
		t.Errorf("Location = %q", loc)
	}

	// the admin view returns the stored record
	rec = do(t, r, http.MethodGet, "/api/v1/feedback/"+id, "", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	stored := decode[feedback.Record](t, rec)
	if stored.ParentEmail != "ana@example.com" || stored.Department != "Hostel" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestSubmit_FormEncoded(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	r := newFakeRouter(t, svc)

	form := url.Values{
		"parent_name":  {"Ben"},
		"parent_email": {"ben@example.com"},
		"channel":      {"SMS"},
		"message":      {"The wifi is down in the library"},
	}
	rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/x-www-form-urlencoded", form.Encode(), false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rec.Code, rec.Body.String())
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.lastSub.ParentName != "Ben" || svc.lastSub.Channel != "SMS" || svc.lastSub.Message != "The wifi is down in the library" {
		t.Errorf("submission = %+v", svc.lastSub)
	}
}

func TestSubmit_Multipart(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	r := newFakeRouter(t, svc)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("parent_name", "Cy")
	_ = mw.WriteField("parent_email", "cy@example.com")
	_ = mw.WriteField("message", "Thanks for the great bus service")
	_ = mw.Close()

	rec := do(t, r, http.MethodPost, "/api/v1/feedback", mw.FormDataContentType(), body.String(), false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rec.Code, rec.Body.String())
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.lastSub.Message != "Thanks for the great bus service" {
		t.Errorf("message = %q", svc.lastSub.Message)
	}
}

func TestSubmit_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantField  string
	}{
		{"invalid JSON", `{bad`, nil, http.StatusBadRequest, ""},
		{"unknown field", `{"parent":"x"}`, nil, http.StatusBadRequest, ""},
		{"empty body", ``, nil, http.StatusBadRequest, ""},
		{"validation", validJSON, &feedback.ValidationError{Field: "parent_email", Reason: "is required"}, http.StatusBadRequest, "parent_email"},
		{"engine input", validJSON, fmt.Errorf("triage: %w", triage.ErrInvalidInput), http.StatusBadRequest, ""},
		{"store failure", validJSON, errors.New("connection refused"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newFakeRouter(t, &fakeService{submitErr: tt.svcErr})
			rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", tt.body, false)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decode[errorBody](t, rec)
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
			if tt.wantStatus == http.StatusInternalServerError && body.Error != "internal error" {
				t.Errorf("500 leaked detail: %q", body.Error)
			}
		})
	}
}

func TestSubmit_BodyTooLarge(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return http.MaxBytesHandler(next, 32) })
	New(nil, &fakeService{}, Options{}).RegisterRoutes(r)

	rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", validJSON, false)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	New(nil, &fakeService{}, Options{IntakeLimiter: guard.NewLimiter(0.001, 1, nil)}).RegisterRoutes(r)

	if rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", validJSON, false); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", rec.Code)
	}
	rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", validJSON, false)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
	// departments are not rate limited
	if rec := do(t, r, http.MethodGet, "/api/v1/departments", "", "", false); rec.Code != http.StatusOK {
		t.Errorf("departments status = %d, want 200", rec.Code)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	r := newRealRouter(t, Options{})
	rec := do(t, r, http.MethodPost, "/api/v1/triage", "application/json", `{"message":"Thanks for the great bus service"}`, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rec.Code, rec.Body.String())
	}
	cls := decode[triage.Classification](t, rec)
	if cls.Sentiment != triage.SentimentPositive || cls.Category != triage.CategoryTransport || cls.Priority != triage.PriorityLow {
		t.Errorf("classification = %+v", cls)
	}

	// preview never stores
	rec = do(t, r, http.MethodGet, "/api/v1/feedback", "", "", true)
	if got := decode[map[string]any](t, rec)["count"]; got != float64(0) {
		t.Errorf("count = %v, want 0", got)
	}

	rec = do(t, r, http.MethodPost, "/api/v1/triage", "application/json", `{"message":"   "}`, false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", rec.Code)
	}
}

func TestDepartments(t *testing.T) {
	t.Parallel()

	r := newRealRouter(t, Options{})
	rec := do(t, r, http.MethodGet, "/api/v1/departments", "", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[struct {
		Departments []feedback.Department `json:"departments"`
	}](t, rec)
	if len(body.Departments) != 8 {
		t.Fatalf("departments = %d, want 8", len(body.Departments))
	}
	if body.Departments[0].Name != "Academics" {
		t.Errorf("first = %q, want Academics (sorted by name)", body.Departments[0].Name)
	}
}

func TestDepartments_EmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := do(t, newFakeRouter(t, &fakeService{}), http.MethodGet, "/api/v1/departments", "", "", false)
	if !strings.Contains(rec.Body.String(), `"departments":[]`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// Admin

func TestAdminRoutes_RequireToken(t *testing.T) {
	t.Parallel()

	r := newFakeRouter(t, &fakeService{})
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/feedback"},
		{http.MethodGet, "/api/v1/feedback/abc"},
		{http.MethodGet, "/api/v1/feedback/export"},
		{http.MethodPatch, "/api/v1/feedback/abc/status"},
	}
	for _, p := range paths {
		rec := do(t, r, p.method, p.path, "application/json", `{"status":"resolved"}`, false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestList_Filters(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	r := newFakeRouter(t, svc)

	q := "department=Hostel&sentiment=Negative&status=new&category=accommodation&priority=urgent&min_priority=high&before=2025-10-01T00:00:00Z&limit=5"
	rec := do(t, r, http.MethodGet, "/api/v1/feedback?"+q, "", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"feedback":[]`) {
		t.Errorf("empty list should encode as []: %s", rec.Body.String())
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	want := feedback.Filter{
		Department:    "Hostel",
		Sentiment:     triage.SentimentNegative,
		Status:        triage.StatusNew,
		Category:      triage.CategoryAccommodation,
		Priority:      triage.PriorityUrgent,
		MinPriority:   triage.PriorityHigh,
		CreatedBefore: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Limit:         5,
	}
	if svc.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", svc.lastFilter, want)
	}
}

func TestList_BadQuery(t *testing.T) {
	t.Parallel()

	r := newFakeRouter(t, &fakeService{})
	for _, q := range []string{"sentiment=angry", "status=closed", "category=food", "priority=p1", "min_priority=x", "before=yesterday", "limit=-1", "limit=ten"} {
		rec := do(t, r, http.MethodGet, "/api/v1/feedback?"+q, "", "", true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("?%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestGet_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{feedback.ErrNotFound, http.StatusNotFound},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r := newFakeRouter(t, &fakeService{getErr: tt.err})
		rec := do(t, r, http.MethodGet, "/api/v1/feedback/01JA", "", "", true)
		if rec.Code != tt.want {
			t.Errorf("err %v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestUpdateStatus_EndToEnd(t *testing.T) {
	t.Parallel()

	r := newRealRouter(t, Options{})
	rec := do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", validJSON, false)
	id := decode[submitResponse](t, rec).ID

	rec = do(t, r, http.MethodPatch, "/api/v1/feedback/"+id+"/status", "application/json", `{"status":"in_review"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if got := decode[feedback.Record](t, rec).Status; got != triage.StatusInReview {
		t.Errorf("status = %q, want in_review", got)
	}

	// in_review -> new is not an allowed transition
	rec = do(t, r, http.MethodPatch, "/api/v1/feedback/"+id+"/status", "application/json", `{"status":"new"}`, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("invalid transition status = %d, want 409", rec.Code)
	}

	rec = do(t, r, http.MethodPatch, "/api/v1/feedback/missing/status", "application/json", `{"status":"resolved"}`, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestUpdateStatus_BadRequest(t *testing.T) {
	t.Parallel()

	r := newFakeRouter(t, &fakeService{})
	for _, body := range []string{`{bad`, `{"status":"closed"}`, `{}`} {
		rec := do(t, r, http.MethodPatch, "/api/v1/feedback/abc/status", "application/json", body, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}

	r = newFakeRouter(t, &fakeService{statusErr: feedback.ErrStatusConflict})
	rec := do(t, r, http.MethodPatch, "/api/v1/feedback/abc/status", "application/json", `{"status":"resolved"}`, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("conflict status = %d, want 409", rec.Code)
	}
}

func TestExport_CSV(t *testing.T) {
	t.Parallel()

	r := newRealRouter(t, Options{})
	do(t, r, http.MethodPost, "/api/v1/feedback", "application/json", validJSON, false)
	do(t, r, http.MethodPost, "/api/v1/feedback", "application/json",
		`{"parent_name":"Ben","parent_email":"ben@example.com","message":"The wifi is down in the library"}`, false)

	rec := do(t, r, http.MethodGet, "/api/v1/feedback/export?format=csv&category=technology", "", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content-type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ".csv") {
		t.Errorf("content-disposition = %q", cd)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[1][7] != "IT Support" {
		t.Errorf("department = %q, want IT Support", rows[1][7])
	}
}

func TestExport_XLSXAndErrors(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	r := newFakeRouter(t, svc)

	rec := do(t, r, http.MethodGet, "/api/v1/feedback/export?format=xlsx", "", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("xlsx body is not a zip archive")
	}
	svc.mu.Lock()
	if svc.lastFilter.Limit != feedback.MaxListLimit {
		t.Errorf("export limit = %d, want %d", svc.lastFilter.Limit, feedback.MaxListLimit)
	}
	svc.mu.Unlock()

	if rec := do(t, r, http.MethodGet, "/api/v1/feedback/export?format=pdf", "", "", true); rec.Code != http.StatusBadRequest {
		t.Errorf("pdf status = %d, want 400", rec.Code)
	}

	r = newFakeRouter(t, &fakeService{listErr: errors.New("db down")})
	if rec := do(t, r, http.MethodGet, "/api/v1/feedback/export", "", "", true); rec.Code != http.StatusInternalServerError {
		t.Errorf("list error status = %d, want 500", rec.Code)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := newFakeRouter(t, &fakeService{})
	tests := []struct{ method, path string }{
		{http.MethodPut, "/api/v1/feedback"},
		{http.MethodDelete, "/api/v1/feedback"},
		{http.MethodGet, "/api/v1/triage"},
		{http.MethodPost, "/api/v1/departments"},
	}
	for _, tt := range tests {
		rec := do(t, r, tt.method, tt.path, "", "", true)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tt.method, tt.path, rec.Code)
		}
	}
}
