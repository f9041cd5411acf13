package recruitee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

const (
	defaultBaseURL = "https://api.recruitee.com"
	// searchPageSize is what the platform returns per search call; the
	// configured candidate limit is applied after sorting.
	searchPageSize = 200
)

// Client talks to the Recruitee company API.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	classifier   *common.StatusClassifier
	searchWindow time.Duration
	maxBytes     int64
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithClassifier(c *common.StatusClassifier) Option {
	return func(cl *Client) { cl.classifier = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithNow overrides the time source used for the search window.
func WithNow(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// WithMaxDocumentBytes caps CV downloads.
func WithMaxDocumentBytes(n int64) Option {
	return func(cl *Client) { cl.maxBytes = n }
}

// NewClient builds a client for cfg.CompanyID. An empty BaseURL uses the public API.
func NewClient(cfg common.RecruiteeConfig, opts ...Option) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	days := cfg.SearchWindowDays
	if days <= 0 {
		days = 365
	}
	c := &Client{
		baseURL:      fmt.Sprintf("%s/c/%s", base, url.PathEscape(cfg.CompanyID)),
		apiKey:       cfg.APIKey,
		http:         &http.Client{Timeout: timeout},
		classifier:   common.NewStatusClassifier(nil),
		searchWindow: time.Duration(days) * 24 * time.Hour,
		maxBytes:     constants.MaxCVBytes,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ListUntagged returns candidates created inside the search window that carry
// no tags, most recent first, truncated to limit.
func (c *Client) ListUntagged(ctx context.Context, limit int) ([]entity.Candidate, error) {
	start := time.Now()
	since := c.now().Add(-c.searchWindow).Format("2006-01-02")
	filters, _ := json.Marshal([]map[string]any{{"field": "tags", "has_none": true}})
	body := map[string]string{
		"query":        "created_at:>" + since,
		"filters_json": string(filters),
	}

	endpoint := fmt.Sprintf("%s/search/new/candidates?limit=%d", c.baseURL, searchPageSize)
	var result struct {
		Hits []candidateHit `json:"hits"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		c.logger.Error("recruitee.list.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("list untagged candidates: %w", err)
	}

	candidates := make([]entity.Candidate, 0, len(result.Hits))
	for _, h := range result.Hits {
		if h.ID == "" {
			continue
		}
		candidates = append(candidates, h.toCandidate())
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	c.logger.Info("recruitee.list.ok",
		"since", since,
		"hits", len(result.Hits),
		"returned", len(candidates),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return candidates, nil
}

// DownloadCV fetches the candidate's CV document. When the candidate carries no
// CV reference the details endpoint is consulted.
func (c *Client) DownloadCV(ctx context.Context, cand entity.Candidate) (entity.Document, error) {
	start := time.Now()
	cvURL := cand.CVReference
	first, last := cand.FirstName, cand.LastName
	if cvURL == "" {
		details, err := c.candidateDetails(ctx, cand.ID)
		if err != nil {
			return entity.Document{}, err
		}
		cvURL = details.cvURL()
		if first == "" && last == "" {
			first, last = details.FirstName, details.LastName
		}
	}
	if cvURL == "" {
		return entity.Document{}, fmt.Errorf("candidate %s has no CV: %w", cand.ID, common.ErrNotFound)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cvURL, nil)
	if err != nil {
		return entity.Document{}, common.Permanent(fmt.Errorf("creating request: %w", err))
	}
	if c.sameHost(cvURL) {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return entity.Document{}, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return entity.Document{}, c.classifier.Error(constants.ServiceRecruitee, resp.StatusCode, b)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return entity.Document{}, transportError(ctx, err)
	}
	if int64(len(data)) > c.maxBytes {
		return entity.Document{}, fmt.Errorf("cv for candidate %s exceeds %d bytes: %w", cand.ID, c.maxBytes, common.ErrInvalidInput)
	}

	doc := entity.Document{
		Filename:    cvFilename(cand.ID, first, last, cvURL),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}
	c.logger.Info("recruitee.download.ok",
		"candidate_id", cand.ID,
		"filename", doc.Filename,
		"bytes", doc.Size(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

// UploadTags attaches the derived attribute tags to the candidate. Tags are
// idempotent on the platform side, so re-sending after a retry is harmless.
func (c *Client) UploadTags(ctx context.Context, candidateID string, attrs entity.Attributes) error {
	tags := attrs.Tags()
	if len(tags) == 0 {
		c.logger.Debug("recruitee.tags.skip", "candidate_id", candidateID, "reason", "no tags")
		return nil
	}
	endpoint := fmt.Sprintf("%s/candidates/%s/tags", c.baseURL, url.PathEscape(candidateID))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, map[string][]string{"tags": tags}, nil); err != nil {
		return fmt.Errorf("upload tags for %s: %w", candidateID, err)
	}
	c.logger.Info("recruitee.tags.ok", "candidate_id", candidateID, "tags", len(tags))
	return nil
}

func (c *Client) candidateDetails(ctx context.Context, id string) (candidateDetails, error) {
	endpoint := fmt.Sprintf("%s/candidates/%s", c.baseURL, url.PathEscape(id))
	var result struct {
		Candidate candidateDetails `json:"candidate"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return candidateDetails{}, fmt.Errorf("candidate details %s: %w", id, err)
	}
	return result.Candidate, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return common.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return common.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return c.classifier.Error(constants.ServiceRecruitee, resp.StatusCode, b)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, common.Transient(err))
	}
	return nil
}

func (c *Client) sameHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}

// transportError marks network failures retryable unless the caller gave up.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return common.Transient(fmt.Errorf("executing request: %w", err))
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\s]`)

func cvFilename(id, first, last, cvURL string) string {
	if first == "" {
		first = "Unknown"
	}
	if last == "" {
		last = "Unknown"
	}
	ext := "pdf"
	if u, err := url.Parse(cvURL); err == nil {
		if e := constants.NormalizeExt(path.Ext(u.Path)); constants.MapExtToFormat(e) != "" {
			ext = e
		}
	}
	name := fmt.Sprintf("CV_%s_%s_%s.%s", id, first, last, ext)
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// flexID accepts ids encoded as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if _, err := strconv.ParseInt(string(b), 10, 64); err != nil {
		return fmt.Errorf("invalid candidate id %s", b)
	}
	*f = flexID(b)
	return nil
}

// candidateHit is the raw search response shape for a candidate.
type candidateHit struct {
	ID        flexID   `json:"id"`
	Name      string   `json:"name"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Emails    []string `json:"emails"`
	Email     string   `json:"email"`
	CreatedAt string   `json:"created_at"`
	CVURL     string   `json:"cv_url"`
}

func (h candidateHit) toCandidate() entity.Candidate {
	created, _ := time.Parse(time.RFC3339, h.CreatedAt)
	email := h.Email
	if email == "" && len(h.Emails) > 0 {
		email = h.Emails[0]
	}
	first, last := h.FirstName, h.LastName
	if first == "" && last == "" {
		first, last = splitName(h.Name)
	}
	return entity.Candidate{
		ID:          string(h.ID),
		Name:        h.Name,
		FirstName:   first,
		LastName:    last,
		Email:       email,
		CreatedAt:   created,
		CVReference: h.CVURL,
	}
}

// candidateDetails is the raw details response shape.
type candidateDetails struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	CVURL          string `json:"cv_url"`
	CVOriginalURL  string `json:"cv_original_url"`
	CVOriginalFile string `json:"cv_original_file"`
	Files          []struct {
		URL string `json:"url"`
	} `json:"files"`
}

func (d candidateDetails) cvURL() string {
	for _, u := range []string{d.CVURL, d.CVOriginalURL, d.CVOriginalFile} {
		if u != "" {
			return u
		}
	}
	for _, f := range d.Files {
		if strings.HasSuffix(strings.ToLower(f.URL), ".pdf") {
			return f.URL
		}
	}
	return ""
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
