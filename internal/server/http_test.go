package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/async"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/cv-pipeline/internal/repository"
	"github.com/joseph-ayodele/cv-pipeline/internal/server"
)

type fakeBatches struct {
	submitted []pipeline.JobConfig
	snaps     map[string]async.Snapshot
	results   map[string]*pipeline.BatchResult
	cancelled []string
	submitErr error
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{snaps: map[string]async.Snapshot{}, results: map[string]*pipeline.BatchResult{}}
}

func (f *fakeBatches) Submit(_ context.Context, cfg pipeline.JobConfig) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	f.submitted = append(f.submitted, cfg)
	id := fmt.Sprintf("b%d", len(f.submitted))
	f.snaps[id] = async.Snapshot{BatchID: id, Status: constants.JobStatusPending, Config: cfg}
	return id, nil
}

func (f *fakeBatches) Get(id string) (async.Snapshot, bool) {
	s, ok := f.snaps[id]
	return s, ok
}

func (f *fakeBatches) List() []async.Snapshot {
	var out []async.Snapshot
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out
}

func (f *fakeBatches) Cancel(id string) bool {
	s, ok := f.snaps[id]
	if !ok || s.Status.IsFinal() {
		return false
	}
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeBatches) Result(id string) (*pipeline.BatchResult, error) {
	s, ok := f.snaps[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, common.ErrNotFound)
	}
	if !s.Status.IsFinal() {
		return nil, fmt.Errorf("batch %s is %s: %w", id, s.Status, common.ErrInvalidInput)
	}
	return f.results[id], nil
}

type fakeHistory struct{ err error }

func (h fakeHistory) ListBatches(context.Context, int) ([]repository.BatchRun, error) {
	if h.err != nil {
		return nil, h.err
	}
	return []repository.BatchRun{{BatchID: "old", Status: constants.JobStatusCompleted}}, nil
}

func (h fakeHistory) ListOutcomes(_ context.Context, id string) ([]repository.OutcomeRow, error) {
	return []repository.OutcomeRow{{BatchID: id, Index: 1, CandidateID: "c1"}}, nil
}

var defaults = pipeline.JobConfig{CandidateLimit: 10, InterCallDelay: 2 * time.Second, ReportEnabled: true}

func do(t *testing.T, s *server.HTTP, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestSubmit_AppliesOverridesOnDefaults(t *testing.T) {
	fb := newFakeBatches()
	s := server.NewHTTP(fb, defaults, nil)

	resp, body := do(t, s, http.MethodPost, "/api/v1/batches", `{"candidate_limit":3,"upload_enabled":true}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}
	var snap async.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.BatchID != "b1" || snap.Status != constants.JobStatusPending {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	got := fb.submitted[0]
	if got.CandidateLimit != 3 || !got.UploadEnabled || !got.ReportEnabled || got.InterCallDelay != 2*time.Second {
		t.Errorf("unexpected config %+v", got)
	}
}

func TestSubmit_EmptyBodyUsesDefaults(t *testing.T) {
	fb := newFakeBatches()
	s := server.NewHTTP(fb, defaults, nil)
	resp, _ := do(t, s, http.MethodPost, "/api/v1/batches", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if fb.submitted[0].CandidateLimit != 10 {
		t.Errorf("expected default limit, got %d", fb.submitted[0].CandidateLimit)
	}
}

func TestSubmit_InvalidConfig(t *testing.T) {
	s := server.NewHTTP(newFakeBatches(), defaults, nil)
	resp, body := do(t, s, http.MethodPost, "/api/v1/batches", `{"candidate_limit":0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", resp.StatusCode, body)
	}
	resp, _ = do(t, s, http.MethodPost, "/api/v1/batches", `{"candidate_limit":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestSubmit_RunnerClosed(t *testing.T) {
	fb := newFakeBatches()
	fb.submitErr = async.ErrClosed
	s := server.NewHTTP(fb, defaults, nil)
	resp, _ := do(t, s, http.MethodPost, "/api/v1/batches", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestGetAndCancel(t *testing.T) {
	fb := newFakeBatches()
	fb.snaps["run"] = async.Snapshot{BatchID: "run", Status: constants.JobStatusRunning}
	fb.snaps["done"] = async.Snapshot{BatchID: "done", Status: constants.JobStatusCompleted}
	s := server.NewHTTP(fb, defaults, nil)

	if resp, _ := do(t, s, http.MethodGet, "/api/v1/batches/run", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, http.MethodGet, "/api/v1/batches/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, http.MethodDelete, "/api/v1/batches/run", ""); resp.StatusCode != http.StatusAccepted {
		t.Errorf("expected 202, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, http.MethodDelete, "/api/v1/batches/done", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, http.MethodDelete, "/api/v1/batches/nope", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if len(fb.cancelled) != 1 || fb.cancelled[0] != "run" {
		t.Errorf("unexpected cancels %v", fb.cancelled)
	}

	resp, body := do(t, s, http.MethodGet, "/api/v1/batches", "")
	var list struct {
		Batches []async.Snapshot `json:"batches"`
	}
	if err := json.Unmarshal(body, &list); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %v", resp.StatusCode, err)
	}
	if len(list.Batches) != 2 {
		t.Errorf("expected 2 batches, got %d", len(list.Batches))
	}
}

func TestReportDownload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv_analysis_results_20260101_120000.xlsx")
	if err := os.WriteFile(path, []byte("xlsx-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	fb := newFakeBatches()
	fb.snaps["done"] = async.Snapshot{BatchID: "done", Status: constants.JobStatusCompleted}
	fb.results["done"] = &pipeline.BatchResult{BatchID: "done", Status: constants.JobStatusCompleted, ReportLocation: path}
	fb.snaps["norep"] = async.Snapshot{BatchID: "norep", Status: constants.JobStatusCompleted}
	fb.results["norep"] = &pipeline.BatchResult{BatchID: "norep", Status: constants.JobStatusCompleted}
	fb.snaps["run"] = async.Snapshot{BatchID: "run", Status: constants.JobStatusRunning}
	s := server.NewHTTP(fb, defaults, nil)

	resp, body := do(t, s, http.MethodGet, "/api/v1/batches/done/report", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if string(body) != "xlsx-bytes" {
		t.Errorf("unexpected body %q", body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "cv_analysis_results_20260101_120000.xlsx") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	if resp, _ := do(t, s, http.MethodGet, "/api/v1/batches/norep/report", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without report, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, http.MethodGet, "/api/v1/batches/run/report", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 while running, got %d", resp.StatusCode)
	}
	if resp, _ := do(t, s, http.MethodGet, "/api/v1/batches/nope/report", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown batch, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	healthy := server.NewHTTP(newFakeBatches(), defaults, nil, server.WithHealth(func(context.Context) error { return nil }))
	if resp, _ := do(t, healthy, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	sick := server.NewHTTP(newFakeBatches(), defaults, nil, server.WithHealth(func(context.Context) error { return errors.New("db down") }))
	if resp, _ := do(t, sick, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	without := server.NewHTTP(newFakeBatches(), defaults, nil)
	if resp, _ := do(t, without, http.MethodGet, "/api/v1/history", ""); resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected 501 without history, got %d", resp.StatusCode)
	}

	s := server.NewHTTP(newFakeBatches(), defaults, nil, server.WithHistory(fakeHistory{}))
	resp, body := do(t, s, http.MethodGet, "/api/v1/history?limit=5", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"old"`) {
		t.Errorf("unexpected history response %d: %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, s, http.MethodGet, "/api/v1/history?limit=-1", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
	resp, body = do(t, s, http.MethodGet, "/api/v1/history/old/outcomes", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"c1"`) {
		t.Errorf("unexpected outcomes response %d: %s", resp.StatusCode, body)
	}

	broken := server.NewHTTP(newFakeBatches(), defaults, nil, server.WithHistory(fakeHistory{err: fmt.Errorf("query: %w", common.ErrIO)}))
	if resp, _ := do(t, broken, http.MethodGet, "/api/v1/history", ""); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func TestWatchHealth_MirrorsCheck(t *testing.T) {
	hs := health.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.WatchHealth(ctx, hs, func(context.Context) error { return errors.New("down") }, time.Hour, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: server.ServiceName})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health never reported NOT_SERVING (err=%v)", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done
}
