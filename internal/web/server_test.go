package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ForceView/internal/auth"
	"ForceView/internal/backend"
	"ForceView/internal/repo"
	"ForceView/internal/run"
)

type fakeBackend struct {
	mu         sync.Mutex
	nodeStatus int
	runs       int
	chunks     []string
	events     []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/v1/subcases":
		io.WriteString(w, `[{"id":1,"time":0,"node_id2forces":{"42":[3,4,0,0,0,5]},"node_id2spcforces":{}}]`)
	case "/api/v1/nodes/all", "/api/v1/nodes/filter", "/api/v1/nodes":
		if f.nodeStatus != 0 {
			w.WriteHeader(f.nodeStatus)
			io.WriteString(w, `{"detail":"no nodes"}`)
			return
		}
		io.WriteString(w, `[{"id":42,"coord_x":1,"coord_y":2,"coord_z":3}]`)
	case "/api/v1/spccluster":
		io.WriteString(w, `[{"id":1,"spc_ids":"4,5","subcase_id2summed_forces":{"1":[1,0,0,0,0,0]}}]`)
	case "/api/v1/get-output-folder":
		io.WriteString(w, `{"output_folder":"/tmp/out"}`)
	case "/api/v1/disconnect-db":
		f.events = append(f.events, "disconnect")
		io.WriteString(w, `{}`)
	case "/api/v1/run-extractor":
		f.runs++
		io.WriteString(w, `{"message":"Extractor started"}`)
	case "/api/v1/import-db":
		io.WriteString(w, `{"message":"Imported"}`)
	case "/api/v1/upload-chunk":
		r.ParseMultipartForm(8 << 20)
		f.chunks = append(f.chunks, r.FormValue("filename")+"@"+r.FormValue("offset"))
		f.events = append(f.events, "chunk")
		io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Not Found"}`)
	}
}

type testEnv struct {
	fake    *fakeBackend
	server  *Server
	handler http.Handler
	history *repo.MemoryRunRepository
}

func newTestEnv(t *testing.T, authEnv *auth.Authenv) *testEnv {
	t.Helper()
	fake := &fakeBackend{}
	api := httptest.NewServer(fake)
	t.Cleanup(api.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := backend.NewClient(api.URL, 5*time.Second, 200*time.Millisecond, zerolog.Nop())
	history := repo.NewMemoryRunRepository()
	runs := run.New(client, history, zerolog.Nop())
	runs.Steps = 2
	runs.Sleep = func(ctx context.Context, d time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s := New(Deps{Backend: client, Runs: runs, History: history, Auth: authEnv, Logger: zerolog.Nop(), BaseContext: ctx})
	runs.OnSuccess = s.Invalidate
	return &testEnv{fake: fake, server: s, handler: s.Handler(), history: history}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestNodesPage(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nodes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"<td>42</td>", "<td>5.00</td>", `href="/nodes" class="active"`, "Dark Mode", "Page 1 of 1", "▲"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "error-banner") {
		t.Error("no banner expected")
	}
}

func TestNodesPageBackendFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.nodeStatus = http.StatusInternalServerError
	body := env.do(httptest.NewRequest(http.MethodGet, "/nodes", nil)).Body.String()
	if !strings.Contains(body, "Error fetching Nodes.") {
		t.Fatalf("expected error banner, got %s", body)
	}
}

func TestNodesPageNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.nodeStatus = http.StatusNotFound
	body := env.do(httptest.NewRequest(http.MethodGet, "/nodes", nil)).Body.String()
	if !strings.Contains(body, "No nodes found") || strings.Contains(body, "error-banner") {
		t.Fatalf("expected empty row without banner, got %s", body)
	}
}

func TestClusterPageCopyButton(t *testing.T) {
	env := newTestEnv(t, nil)
	body := env.do(httptest.NewRequest(http.MethodGet, "/spcclusters", nil)).Body.String()
	if !strings.Contains(body, `data-copy="4, 5"`) || !strings.Contains(body, "Copy SPC Nodes") {
		t.Fatalf("expected copy button, got %s", body)
	}
}

func TestThemeToggle(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/theme", nil)
	req.Header.Set("Referer", "http://example.com/mpcs")
	req.Host = "example.com"
	rec := env.do(req)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/mpcs" {
		t.Fatalf("unexpected redirect %d %q", rec.Code, rec.Header().Get("Location"))
	}
	next := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	body := env.do(next).Body.String()
	if !strings.Contains(body, `class="dark-mode"`) || !strings.Contains(body, "Light Mode") {
		t.Fatal("dark theme must be applied on the next page")
	}
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRunValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(jsonRequest(http.MethodPost, "/actions/run", `{"mpcf":"a.mpcf"}`))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), ".fem") {
		t.Fatalf("missing mesh: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(jsonRequest(http.MethodPost, "/actions/run", `{"fem":"m.fem"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no force files: %d", rec.Code)
	}
	if env.fake.runs != 0 {
		t.Fatal("invalid runs must not reach the backend")
	}
}

func TestRunAcceptedThenConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(jsonRequest(http.MethodPost, "/actions/run", `{"fem":"m.fem","mesh_only":true}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID       string   `json:"id"`
		Message  string   `json:"message"`
		Warnings []string `json:"warnings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Message != "Extractor started" || len(out.Warnings) != 1 {
		t.Fatalf("unexpected body %+v", out)
	}

	rec = env.do(jsonRequest(http.MethodPost, "/actions/run", `{"fem":"m.fem","mpcf":"a","spcf":"b"}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("run during animation must be rejected, got %d", rec.Code)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/actions/progress", nil))
	var snap run.Snapshot
	json.NewDecoder(rec.Body).Decode(&snap)
	if !snap.Running {
		t.Fatalf("expected running snapshot, got %+v", snap)
	}
	runs, _ := env.history.RecentRuns(context.Background(), 5)
	if len(runs) != 1 || !runs[0].Success {
		t.Fatalf("expected recorded run, got %+v", runs)
	}
}

func TestUploadStreamsChunks(t *testing.T) {
	env := newTestEnv(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "model.fem")
	part.Write(bytes.Repeat([]byte("x"), 1<<20+10))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/actions/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d %s", rec.Code, rec.Body.String())
	}
	want := []string{"model.fem@0", "model.fem@1048576"}
	if len(env.fake.chunks) != 2 || env.fake.chunks[0] != want[0] || env.fake.chunks[1] != want[1] {
		t.Fatalf("unexpected chunks %v", env.fake.chunks)
	}
}

func TestUploadDisconnectsFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "results.db")
	part.Write([]byte("sqlite"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/actions/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Fatalf("status %d %s", rec.Code, rec.Body.String())
	}
	env.fake.mu.Lock()
	defer env.fake.mu.Unlock()
	if len(env.fake.events) != 2 || env.fake.events[0] != "disconnect" || env.fake.events[1] != "chunk" {
		t.Fatalf("expected disconnect before the chunk, got %v", env.fake.events)
	}
}

func TestUploadWhileBusyIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	if !env.server.Tracker().Begin("Uploading") {
		t.Fatal("tracker must start idle")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "model.mpcf")
	part.Write([]byte("forces"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/actions/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := env.do(req)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("expected 409 with an error body, got %d %s", rec.Code, rec.Body.String())
	}
	env.fake.mu.Lock()
	sent := len(env.fake.chunks)
	env.fake.mu.Unlock()
	if sent != 0 {
		t.Fatalf("rejected upload must not reach the backend, sent %d chunks", sent)
	}
}

func TestDashboardScriptQueuesUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	for _, want := range []string{"uploads = uploads.then(", `showAlert("Error uploading "`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("app.js missing %q", want)
		}
	}
}

func TestImportDB(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(jsonRequest(http.MethodPost, "/actions/import-db", `{"database":""}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing database: %d", rec.Code)
	}
	rec = env.do(jsonRequest(http.MethodPost, "/actions/import-db", `{"database":"model.db"}`))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Imported") {
		t.Fatalf("import: %d %s", rec.Code, rec.Body.String())
	}
}

func TestActionsRequireLogin(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, &auth.Authenv{JWTkey: []byte("k"), PasswordHash: hash, Logger: zerolog.Nop()})
	rec := env.do(jsonRequest(http.MethodPost, "/actions/run", `{"fem":"m.fem","mesh_only":true}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := env.do(httptest.NewRequest(http.MethodGet, "/nodes", nil)); rec.Code != http.StatusOK {
		t.Fatalf("pages stay public, got %d", rec.Code)
	}
}

func TestExportXLSX(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nodes/export.xlsx?page=1&sort=id&dir=asc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/vnd.openxmlformats") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("xlsx must be a zip archive")
	}
}

func TestDashboardAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	body := env.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if !strings.Contains(body, "/tmp/out") || !strings.Contains(body, `href="/" class="active"`) {
		t.Fatalf("unexpected dashboard %s", body)
	}
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestStateQueryRoundTrip(t *testing.T) {
	q := StateQuery(StateFromQuery(map[string][]string{
		"page": {"3"}, "sort": {"fabs"}, "dir": {"desc"}, "filter": {"1,2-4"}, "subcase": {"7"},
	}))
	want := "dir=desc&filter=1%2C+2-4&page=3&sort=fabs&subcase=7"
	if q.Encode() != want {
		t.Fatalf("got %q, want %q", q.Encode(), want)
	}
}
