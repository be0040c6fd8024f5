package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"thumbnailer/internal/adapters/storage/localfs"
	"thumbnailer/internal/httpapi/handlers"
	"thumbnailer/internal/httpkit"
	"thumbnailer/internal/models"
	"thumbnailer/internal/pkg/logger"
	"thumbnailer/internal/processor"
	"thumbnailer/internal/repositories"
	"thumbnailer/internal/storage"
)

const frameTool = `#!/bin/sh
i=1
while [ "$i" -le "$3" ]; do
  printf 'jpg' > "$2/$(printf 'Thumbnail%06d.jpg' "$i")"
  i=$((i+1))
done
echo "frames=$3"
exit "$4"
`

type testEnv struct {
	router  http.Handler
	outDir  string
	tempDir string
}

func newTestEnv(t *testing.T, async bool) (*testEnv, *memJobs, *memQueue) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tools need a POSIX shell")
	}

	tool := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(tool, []byte(frameTool), 0o755); err != nil {
		t.Fatal(err)
	}

	registry := storage.NewRegistry()
	registry.Register(localfs.New(), "file")

	env := &testEnv{outDir: t.TempDir(), tempDir: t.TempDir()}
	proc := processor.New(processor.Deps{
		Registry:        registry,
		ToolPath:        tool,
		TempRoot:        env.tempDir,
		WorkspacePrefix: "thumbnails",
		ToolTimeout:     10 * time.Second,
		CredentialTTL:   time.Hour,
		Log:             logger.Discard(),
	})

	hd := handlers.Deps{
		Processor: proc,
		Registry:  registry,
		ToolPath:  tool,
		Service:   "thumbnailer-test",
	}

	var jobs *memJobs
	var queue *memQueue
	if async {
		jobs = &memJobs{jobs: map[string]*models.Job{}}
		queue = &memQueue{}
		hd.Jobs = jobs
		hd.Queue = queue
	}

	env.router = NewRouter(Deps{
		Handlers:       hd,
		AllowedOrigins: []string{"http://localhost:5173"},
		Log:            logger.Discard(),
	})
	return env, jobs, queue
}

func (e *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) body(args string, returnOutput bool) string {
	b, _ := json.Marshal(map[string]any{
		"sourceLocation":      "file:///videos/in.mp4",
		"destinationLocation": "file://" + filepath.ToSlash(e.outDir),
		"toolArguments":       args,
		"returnToolOutput":    returnOutput,
	})
	return string(b)
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
}

func (m *memJobs) Create(_ context.Context, j *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.Status = models.JobQueued
	j.CreatedAt = time.Now().UTC()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repositories.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

type memQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *memQueue) Push(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *memQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ids)), nil
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestGenerateThumbnailsSuccess(t *testing.T) {
	env, _, _ := newTestEnv(t, false)

	for _, path := range []string{"/api/thumbnails", "/api/GenerateThumbnails"} {
		t.Run(path, func(t *testing.T) {
			rec := env.post(t, path, env.body("{input} {tempFolder} 2 0", true))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			out := decodeResult(t, rec)
			if out["isSuccessful"] != true || out["errorText"] != "" {
				t.Errorf("expected success, got %v", out)
			}
			if !strings.Contains(out["toolOutput"].(string), "frames=2") {
				t.Errorf("expected tool output, got %v", out["toolOutput"])
			}

			for _, name := range []string{"Thumbnail000001.jpg", "Thumbnail000002.jpg"} {
				if _, err := os.Stat(filepath.Join(env.outDir, name)); err != nil {
					t.Errorf("expected %s to be uploaded: %v", name, err)
				}
			}
		})
	}

	entries, _ := os.ReadDir(env.tempDir)
	if len(entries) != 0 {
		t.Errorf("expected workspaces to be removed, %d left", len(entries))
	}
}

func TestGenerateThumbnailsToolFailureIsStill200(t *testing.T) {
	env, _, _ := newTestEnv(t, false)

	rec := env.post(t, "/api/thumbnails", env.body("{input} {tempFolder} 1 3", false))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decodeResult(t, rec)
	if out["isSuccessful"] != false {
		t.Errorf("expected failure, got %v", out)
	}
	if _, ok := out["toolOutput"]; ok {
		t.Errorf("expected no tool output when not requested, got %v", out["toolOutput"])
	}
	if _, err := os.Stat(filepath.Join(env.outDir, "Thumbnail000001.jpg")); err != nil {
		t.Errorf("expected partial output to be uploaded: %v", err)
	}
}

func TestGenerateThumbnailsBadRequest(t *testing.T) {
	env, _, _ := newTestEnv(t, false)

	tests := []struct {
		name  string
		body  string
		code  string
		field string
	}{
		{"missing destination", `{"sourceLocation":"file:///in.mp4"}`, "MISSING_FIELD", "destinationLocation"},
		{"blank source", `{"sourceLocation":"  ","destinationLocation":"file:///out"}`, "MISSING_FIELD", "sourceLocation"},
		{"not json", `{"sourceLocation":`, "MALFORMED_REQUEST", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post(t, "/api/thumbnails", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}

			var envl httpkit.ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &envl); err != nil {
				t.Fatal(err)
			}
			if envl.Error.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, envl.Error.Code)
			}
			if tt.field != "" && envl.Error.Details["field"] != tt.field {
				t.Errorf("expected field %s, got %v", tt.field, envl.Error.Details)
			}
		})
	}

	entries, _ := os.ReadDir(env.tempDir)
	if len(entries) != 0 {
		t.Error("expected no workspace for a rejected request")
	}
}

func TestHealth(t *testing.T) {
	env, _, _ := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health?deep=true", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decodeResult(t, rec)
	if out["status"] != "ok" {
		t.Errorf("expected ok, got %v", out)
	}
	checks := out["checks"].(map[string]any)
	if _, ok := checks["postgres"]; ok {
		t.Error("expected no postgres check without async mode")
	}
	tool := checks["tool"].(map[string]any)
	if tool["status"] != "ok" {
		t.Errorf("expected tool check ok, got %v", tool)
	}
}

func TestCORSPreflight(t *testing.T) {
	env, _, _ := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/thumbnails", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected allowed origin header, got %q", got)
	}
}

func TestJobRoutesDisabledWithoutAsync(t *testing.T) {
	env, _, _ := newTestEnv(t, false)

	rec := env.post(t, "/jobs", env.body("", false))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected job routes to be absent, got %d", rec.Code)
	}
}

func TestPostAndGetJob(t *testing.T) {
	env, jobs, queue := newTestEnv(t, true)

	body := `{"sourceLocation":"file:///in.mp4?sig=SECRET","destinationLocation":"file:///out"}`
	rec := env.post(t, "/jobs", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Job models.Job `json:"job"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Job.Status != models.JobQueued {
		t.Errorf("expected QUEUED, got %s", created.Job.Status)
	}
	if strings.Contains(rec.Body.String(), "SECRET") {
		t.Error("expected signature to be redacted")
	}
	if len(queue.ids) != 1 || queue.ids[0] != created.Job.ID {
		t.Errorf("expected job to be queued, got %v", queue.ids)
	}

	stored, _ := jobs.Get(context.Background(), created.Job.ID)
	if !strings.Contains(stored.SourceLocation, "sig=SECRET") {
		t.Error("expected stored location to keep its signature")
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+created.Job.ID, nil)
	got := httptest.NewRecorder()
	env.router.ServeHTTP(got, req)
	if got.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", got.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	missing := httptest.NewRecorder()
	env.router.ServeHTTP(missing, req)
	if missing.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", missing.Code)
	}
}

func TestPostJobRejectsInvalidBody(t *testing.T) {
	env, _, queue := newTestEnv(t, true)

	rec := env.post(t, "/jobs", `{"destinationLocation":"file:///out"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(queue.ids) != 0 {
		t.Error("expected nothing to be queued")
	}
}

func TestHealthReportsQueueDepth(t *testing.T) {
	env, _, queue := newTestEnv(t, true)
	_ = queue.Push(context.Background(), "j1")
	_ = queue.Push(context.Background(), "j2")

	req := httptest.NewRequest(http.MethodGet, "/health?deep=true", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	out := decodeResult(t, rec)
	checks := out["checks"].(map[string]any)
	q, ok := checks["queue"].(map[string]any)
	if !ok {
		t.Fatalf("expected a queue check, got %v", checks)
	}
	if q["pending"] != float64(2) {
		t.Errorf("expected 2 pending jobs, got %v", q["pending"])
	}
}
