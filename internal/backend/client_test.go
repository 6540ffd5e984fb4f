package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, 200*time.Millisecond, zerolog.Nop())
}

func TestNodesSendsQueryAndIDs(t *testing.T) {
	var gotQuery string
	var gotBody map[string][]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/nodes" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":42,"coord_x":1.0,"coord_y":2.0,"coord_z":3.0}]`)
	}))

	nodes, err := c.Nodes(context.Background(), PageQuery{Page: 2, SortColumn: "fabs", SortDirection: -1, SubcaseID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != 42 || nodes[0].CoordX != 1.0 {
		t.Fatalf("unexpected nodes %#v", nodes)
	}
	for _, want := range []string{"page=2", "sortColumn=fabs", "sortDirection=-1", "subcaseId=7"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
	if ids, ok := gotBody["ids"]; !ok || ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty ids array, got %#v", gotBody)
	}
}

func TestSPCsNeverSendSubcase(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `[]`)
	}))
	if _, err := c.SPCs(context.Background(), PageQuery{Page: 1, SortColumn: "node_id", SortDirection: 1, SubcaseID: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(gotQuery, "subcaseId") {
		t.Fatalf("spcs query must not carry subcaseId: %q", gotQuery)
	}
}

func TestSafeFetchReportsFailures(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	banner := &Banner{}
	ctx := WithReporter(context.Background(), banner)

	_, err := c.Subcases(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
	if !strings.Contains(banner.Message(), "Error fetching Subcases.") {
		t.Fatalf("banner not populated: %q", banner.Message())
	}
	banner.Clear()
	if banner.Message() != "" {
		t.Fatalf("banner not cleared")
	}
}

func TestNotFoundIsNotReported(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"No nodes found"}`)
	}))
	banner := &Banner{}
	_, err := c.Nodes(WithReporter(context.Background(), banner), PageQuery{Page: 1, SortColumn: "id"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if banner.Message() != "" {
		t.Fatalf("not found should not hit the banner: %q", banner.Message())
	}
}

func TestRunExtractorPlainTextError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "fem file missing")
	}))
	banner := &Banner{}
	_, err := c.RunExtractor(WithReporter(context.Background(), banner), RunRequest{FemFilename: "a.fem"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(banner.Message(), "fem file missing") {
		t.Fatalf("banner should include backend text: %q", banner.Message())
	}
}

func TestUploadChunkMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("filename") != "model.fem" || r.FormValue("offset") != "1048576" {
			t.Errorf("unexpected fields %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer f.Close()
		blob, _ := io.ReadAll(f)
		if string(blob) != "chunk" {
			t.Errorf("chunk body %q", blob)
		}
		_, _ = io.WriteString(w, `{"message":"Chunk uploaded successfully!"}`)
	}))
	if err := c.UploadChunk(context.Background(), "model.fem", 1048576, []byte("chunk")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDisconnectHonorsTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	start := time.Now()
	if err := c.Disconnect(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("disconnect did not honor its timeout")
	}
}
