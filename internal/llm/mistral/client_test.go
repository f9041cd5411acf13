package mistral_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm/mistral"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	}
}

func newClient(url string) *mistral.Client {
	cfg := common.MistralConfig{APIKey: "mk_test", BaseURL: url, ChatModel: "mistral-small"}
	now := func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return mistral.NewClient(cfg, nil, nil, mistral.WithNow(now))
}

func TestAnalyze_OK(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer mk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatReply(`{"gender":"Male","education_level":"Academic Bachelor","graduation_year":"GY 2024","experience":"0.5-1y exp","mother_tongue":"Dutch","school":"Howest","field_of_study":"Computer Science","skills":["Go"]}`))
	}))
	defer srv.Close()

	attrs, raw, err := newClient(srv.URL).Analyze(context.Background(), "Jan Peeters\nBachelor Applied Computer Science, Howest 2021-2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.School != "Howest" || attrs.EducationLevel != "Academic Bachelor" {
		t.Errorf("unexpected attributes %+v", attrs)
	}
	if len(raw) == 0 {
		t.Error("expected raw json")
	}
	if got["model"] != "mistral-small" {
		t.Errorf("expected configured model, got %v", got["model"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", got["response_format"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(msgs))
	}
	sys, _ := msgs[0].(map[string]any)
	if !strings.Contains(sys["content"].(string), "GY 2025") {
		t.Error("expected current year in system prompt")
	}
	user, _ := msgs[1].(map[string]any)
	if !strings.Contains(user["content"].(string), "Howest 2021-2024") {
		t.Error("expected cv text in user prompt")
	}
}

func TestAnalyze_Errors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      any
		want      error
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]string{"message": "slow down"}, common.ErrRateLimited, true},
		{"server error", http.StatusBadGateway, map[string]string{"message": "bad gateway"}, common.ErrTransient, true},
		{"unauthorized", http.StatusUnauthorized, map[string]string{"message": "no"}, common.ErrUnauthorized, false},
		{"schema", http.StatusOK, chatReply(`{"gender":"Male"}`), common.ErrSchemaValidation, false},
		{"no choices", http.StatusOK, map[string]any{"choices": []any{}}, common.ErrTransient, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			_, _, err := newClient(srv.URL).Analyze(context.Background(), "text")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if common.IsTransient(err) != tc.transient {
				t.Errorf("expected transient=%v for %v", tc.transient, err)
			}
		})
	}
}
