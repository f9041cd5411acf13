package recruitee_test

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

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/recruitee"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newClient(srvURL string, opts ...recruitee.Option) *recruitee.Client {
	cfg := common.RecruiteeConfig{CompanyID: "acme", APIKey: "rk_test", BaseURL: srvURL, SearchWindowDays: 365}
	opts = append([]recruitee.Option{recruitee.WithNow(func() time.Time { return fixedNow })}, opts...)
	return recruitee.NewClient(cfg, opts...)
}

func TestListUntagged_SortsAndTruncates(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/c/acme/search/new/candidates" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer rk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("limit") != "200" {
			t.Errorf("expected limit=200, got %q", r.URL.Query().Get("limit"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": []map[string]interface{}{
				{"id": float64(1), "name": "Old Timer", "emails": []string{"old@x.io"}, "created_at": "2025-01-01T10:00:00Z"},
				{"id": float64(3), "name": "Newest Person", "created_at": "2025-05-30T10:00:00Z", "cv_url": "https://cdn.example/cv3.pdf"},
				{"id": "2", "name": "Middle", "created_at": "2025-03-01T10:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	cands, err := newClient(srv.URL).ListUntagged(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].ID != "3" || cands[1].ID != "2" {
		t.Errorf("expected most recent first [3 2], got [%s %s]", cands[0].ID, cands[1].ID)
	}
	if cands[0].CVReference != "https://cdn.example/cv3.pdf" {
		t.Errorf("expected cv reference carried over, got %q", cands[0].CVReference)
	}
	if cands[0].FirstName != "Newest" || cands[0].LastName != "Person" {
		t.Errorf("expected split name, got %q %q", cands[0].FirstName, cands[0].LastName)
	}
	if gotBody["query"] != "created_at:>2024-06-01" {
		t.Errorf("unexpected query %q", gotBody["query"])
	}
	if !strings.Contains(gotBody["filters_json"], `"has_none":true`) {
		t.Errorf("expected tags has_none filter, got %q", gotBody["filters_json"])
	}
}

func TestListUntagged_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		want      error
		transient bool
	}{
		{http.StatusUnauthorized, common.ErrUnauthorized, false},
		{http.StatusNotFound, common.ErrNotFound, false},
		{http.StatusTooManyRequests, common.ErrRateLimited, true},
		{http.StatusBadGateway, common.ErrTransient, true},
		{http.StatusBadRequest, common.ErrInvalidInput, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))
		_, err := newClient(srv.URL).ListUntagged(context.Background(), 10)
		srv.Close()

		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if common.IsTransient(err) != tc.transient {
			t.Errorf("status %d: expected transient=%v", tc.status, tc.transient)
		}
		var httpErr *common.HTTPStatusError
		if !errors.As(err, &httpErr) || httpErr.Status != tc.status {
			t.Errorf("status %d: expected HTTPStatusError, got %v", tc.status, err)
		}
	}
}

func TestListUntagged_ConfiguredTransientStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := newClient(srv.URL, recruitee.WithClassifier(common.NewStatusClassifier([]int{http.StatusConflict})))
	_, err := client.ListUntagged(context.Background(), 1)
	if !common.IsTransient(err) {
		t.Errorf("expected configured 409 to be transient, got %v", err)
	}
}

func TestDownloadCV_ResolvesDetails(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/c/acme/candidates/42":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidate": map[string]interface{}{
					"first_name": "Ada",
					"last_name":  "Love lace",
					"files": []map[string]interface{}{
						{"url": srv.URL + "/files/photo.png"},
						{"url": srv.URL + "/files/resume.PDF"},
					},
				},
			})
		case "/files/resume.PDF":
			if r.Header.Get("Authorization") == "" {
				t.Error("expected auth header on same-host download")
			}
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(pdf)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	doc, err := newClient(srv.URL).DownloadCV(context.Background(), entity.Candidate{ID: "42"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc.Data) != string(pdf) {
		t.Errorf("unexpected document bytes %q", doc.Data)
	}
	if doc.Filename != "CV_42_Ada_Love_lace.pdf" {
		t.Errorf("unexpected filename %q", doc.Filename)
	}
	if doc.ContentType != "application/pdf" {
		t.Errorf("unexpected content type %q", doc.ContentType)
	}
}

func TestDownloadCV_PrefersCVURLFields(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/c/acme/candidates/7":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidate": map[string]interface{}{
					"cv_original_url": srv.URL + "/original.pdf",
					"files":           []map[string]interface{}{{"url": srv.URL + "/other.pdf"}},
				},
			})
		case "/original.pdf":
			_, _ = w.Write([]byte("original"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	doc, err := newClient(srv.URL).DownloadCV(context.Background(), entity.Candidate{ID: "7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc.Data) != "original" {
		t.Errorf("expected cv_original_url to win, got %q", doc.Data)
	}
	if doc.Filename != "CV_7_Unknown_Unknown.pdf" {
		t.Errorf("unexpected filename %q", doc.Filename)
	}
}

func TestDownloadCV_NoCV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidate": map[string]interface{}{"first_name": "X"}})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).DownloadCV(context.Background(), entity.Candidate{ID: "9"})
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if common.IsTransient(err) {
		t.Error("missing CV must not be retried")
	}
}

func TestDownloadCV_SizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	client := newClient(srv.URL, recruitee.WithMaxDocumentBytes(16))
	_, err := client.DownloadCV(context.Background(), entity.Candidate{ID: "1", CVReference: srv.URL + "/cv.pdf"})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for oversized CV, got %v", err)
	}
}

func TestDownloadCV_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).DownloadCV(context.Background(), entity.Candidate{ID: "1", CVReference: srv.URL + "/cv.pdf"})
	if !common.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestDownloadCV_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := newClient(addr).DownloadCV(context.Background(), entity.Candidate{ID: "1", CVReference: addr + "/cv.pdf"})
	if err == nil || !common.IsTransient(err) {
		t.Errorf("expected transient transport error, got %v", err)
	}
}

func TestUploadTags(t *testing.T) {
	var got struct {
		Tags []string `json:"tags"`
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/c/acme/candidates/42/tags" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"tags":[]}`))
	}))
	defer srv.Close()

	attrs := entity.Attributes{
		Gender:         "Female",
		EducationLevel: "Master",
		GraduationYear: "GY 2021",
		Experience:     "N/A",
		MotherTongue:   "Dutch",
		School:         "N/A",
		FieldOfStudy:   "Computer Science",
		Skills:         []string{"Go"},
	}
	if err := newClient(srv.URL).UploadTags(context.Background(), "42", attrs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Female", "Master", "GY 2021", "Dutch", "Computer Science"}
	if strings.Join(got.Tags, "|") != strings.Join(want, "|") {
		t.Errorf("expected tags %v, got %v", want, got.Tags)
	}

	if err := newClient(srv.URL).UploadTags(context.Background(), "42", entity.Attributes{Gender: "N/A"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no call for empty tag set, got %d calls", calls)
	}
}

func TestUploadTags_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := newClient(srv.URL).UploadTags(context.Background(), "42", entity.Attributes{Gender: "Male"})
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}
