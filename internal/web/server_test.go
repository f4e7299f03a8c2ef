package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	"github.com/JonMunkholm/bulkimport/internal/store/memory"
	"github.com/JonMunkholm/bulkimport/templates"
)

const paris = "title,description,price_number\n" +
	"Eiffel Tower Tour,A guided climb up the Eiffel Tower with skip-the-line entry,29.40\n" +
	",Missing title but a long enough description,15\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	reg, err := core.LoadRegistry(templates.FS, ".")
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	svc := core.NewService(reg, memory.NewJobRepository(), memory.NewContentStore(), core.ServiceConfig{
		MaxFileSize: cfg.Import.MaxFileSize,
	})
	return NewServer(svc, cfg)
}

func uploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateJob(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := uploadRequest(t, map[string]string{"template_id": "experience-v1", "job_name": "Paris"}, "paris.csv", paris)
	req.Header.Set("User-Agent", "importer-test")
	rec := serve(s, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	res := decode[core.ImportResult](t, rec)
	if res.Job.TotalRows != 2 || res.Job.JobName != "Paris" {
		t.Errorf("job = %+v", res.Job)
	}
	if got := rec.Header().Get("Location"); got != "/api/jobs/"+res.Job.ID {
		t.Errorf("Location = %q", got)
	}
	if res.Job.UserAgent != "importer-test" || res.Job.SubmittedFrom == "" {
		t.Errorf("request metadata not recorded: from=%q ua=%q", res.Job.SubmittedFrom, res.Job.UserAgent)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := s.service.Wait(ctx, res.Job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != core.JobCompleted || job.SuccessfulRows != 1 || job.FailedRows != 1 {
		t.Errorf("job = %s ok=%d failed=%d, want completed 1/1", job.Status, job.SuccessfulRows, job.FailedRows)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+"/ledger", nil))
	ledger := decode[[]core.GeneratedPageRecord](t, rec)
	if len(ledger) != 2 || ledger[0].Status != core.PageDraft || ledger[1].Status != core.PageFailed {
		t.Errorf("ledger = %+v", ledger)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil))
	if got := decode[core.Job](t, rec); got.ID != job.ID || got.Status != core.JobCompleted {
		t.Errorf("GET job = %+v", got)
	}
}

func TestCreateJob_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Import.MaxFileSize = 256
	s := newTestServer(t, cfg)

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing file",
			req:        uploadRequest(t, map[string]string{"template_id": "experience-v1"}, "", ""),
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name:       "missing template id",
			req:        uploadRequest(t, nil, "paris.csv", paris),
			wantStatus: http.StatusBadRequest,
			wantCode:   "REQ001",
		},
		{
			name:       "unknown template",
			req:        uploadRequest(t, map[string]string{"template_id": "nope"}, "paris.csv", paris),
			wantStatus: http.StatusNotFound,
			wantCode:   "TPL001",
		},
		{
			name:       "empty file",
			req:        uploadRequest(t, map[string]string{"template_id": "experience-v1"}, "empty.csv", ""),
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE003",
		},
		{
			name:       "file too large",
			req:        uploadRequest(t, map[string]string{"template_id": "experience-v1"}, "big.csv", strings.Repeat("x", 300)),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "FILE001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestJobLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET missing job status = %d, want 404", rec.Code)
	}

	rec = serve(s, uploadRequest(t, map[string]string{"template_id": "experience-v1"}, "paris.csv", paris))
	res := decode[core.ImportResult](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.service.Wait(ctx, res.Job.ID); err != nil {
		t.Fatal(err)
	}

	for _, action := range []string{"pause", "resume"} {
		rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/jobs/"+res.Job.ID+"/"+action, nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("%s on completed job status = %d, want 409", action, rec.Code)
		}
		if got := decode[ErrorResponse](t, rec); got.Code != "JOB002" {
			t.Errorf("%s code = %q, want JOB002", action, got.Code)
		}
	}
}

func TestJobProgressStream(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, uploadRequest(t, map[string]string{"template_id": "experience-v1"}, "paris.csv", paris))
	res := decode[core.ImportResult](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.service.Wait(ctx, res.Job.ID); err != nil {
		t.Fatal(err)
	}

	// A finished job streams its final snapshot, then completes.
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/jobs/"+res.Job.ID+"/progress", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var events []string
	var last core.Progress
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if ev, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, ev)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			if err := json.Unmarshal([]byte(data), &last); err != nil {
				t.Fatalf("bad event data %q: %v", data, err)
			}
		}
	}
	if len(events) != 2 || events[0] != "progress" || events[1] != "complete" {
		t.Errorf("events = %v, want [progress complete]", events)
	}
	if last.Status != core.JobCompleted || last.ProcessedRows != 2 {
		t.Errorf("final snapshot = %+v", last)
	}
}

func TestFinalProgress(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, uploadRequest(t, map[string]string{"template_id": "experience-v1"}, "paris.csv", paris))
	res := decode[core.ImportResult](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.service.Wait(ctx, res.Job.ID); err != nil {
		t.Fatal(err)
	}

	// A stale snapshot from a dropped update is replaced by the settled state.
	stale := core.Progress{JobID: res.Job.ID, TotalRows: 2, ProcessedRows: 1, SuccessfulRows: 1, Status: core.JobProcessing}
	got := s.finalProgress(ctx, res.Job.ID, stale)
	if got.Status != core.JobCompleted || got.ProcessedRows != 2 {
		t.Errorf("finalProgress() = %+v, want completed with 2 processed", got)
	}

	if got := s.finalProgress(ctx, "missing", stale); got.Status != core.JobProcessing {
		t.Errorf("finalProgress(missing) = %+v, want the last snapshot back", got)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/templates", nil))
	list := decode[[]templateSummary](t, rec)
	if len(list) < 2 {
		t.Fatalf("templates = %+v, want the seeded ones", list)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/templates/experience-v1", nil))
	if got := decode[core.Template](t, rec); got.TargetType != core.TargetExperience {
		t.Errorf("template = %+v", got)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/templates/experience-v1/download", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("download status=%d type=%q", rec.Code, rec.Header().Get("Content-Type"))
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0][0] != "title" || records[0][1] != "description" || records[0][2] != "price_number" {
		t.Errorf("skeleton = %v", records)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/templates/nope/download", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown template download status = %d, want 404", rec.Code)
	}
}

func TestJobPage(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, uploadRequest(t, map[string]string{"template_id": "experience-v1", "job_name": "<Paris>"}, "paris.csv", paris))
	res := decode[core.ImportResult](t, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.service.Wait(ctx, res.Job.ID); err != nil {
		t.Fatal(err)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/jobs/"+res.Job.ID, nil))
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"&lt;Paris&gt;", "eiffel-tower-tour", "2 / 2", "required field is empty"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/jobs/missing", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "JOB001") {
		t.Errorf("missing job page = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	got := decode[healthResponse](t, rec)
	if got.Status != "ok" || got.Templates < 2 || got.Jobs.MaxConcurrent < 1 {
		t.Errorf("health = %+v", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s := newTestServer(t, cfg)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "missing key", key: "", want: http.StatusUnauthorized},
		{name: "wrong key", key: "guess", want: http.StatusForbidden},
		{name: "valid key", key: "secret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			if rec := serve(s, req); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("/healthz should not need a key, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Now()
	rl := &rateLimiter{visitors: map[string]*visitor{}, rate: 2, window: time.Minute, now: func() time.Time { return now }}

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request in the window should be limited")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("other clients have their own bucket")
	}
	now = now.Add(2 * time.Minute)
	if !rl.allow("1.2.3.4") {
		t.Error("bucket should refill after the window")
	}
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := uploadRequest(t, nil, "paris.csv", paris)
	req.URL.Path = "/api/templates/experience-v1/preview"
	rec := serve(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := decode[core.PreviewResponse](t, rec)
	if got.Summary.TotalRows != 2 || got.Summary.NewRows != 1 || got.Summary.ErrorRows != 1 {
		t.Errorf("summary = %+v, want 2 total, 1 new, 1 error", got.Summary)
	}
	if len(got.RowSamples) != 1 || got.RowSamples[0].Slug != "eiffel-tower-tour" {
		t.Errorf("row samples = %+v", got.RowSamples)
	}

	req = uploadRequest(t, nil, "paris.csv", paris)
	req.URL.Path = "/api/templates/nope/preview"
	if rec := serve(s, req); rec.Code != http.StatusNotFound {
		t.Errorf("unknown template status = %d, want 404", rec.Code)
	}

	req = uploadRequest(t, nil, "", "")
	req.URL.Path = "/api/templates/experience-v1/preview"
	if rec := serve(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file status = %d, want 400", rec.Code)
	}
}
