package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm/gemini"
)

func newClient(t *testing.T, h http.HandlerFunc) *gemini.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := gemini.NewClient(context.Background(),
		common.GeminiConfig{APIKey: "gk_test", Model: "gemini-test"}, nil, nil,
		gemini.Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestAnalyze_OK(t *testing.T) {
	var path string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"gender":"Female","education_level":"Master","graduation_year":"GY 2022","experience":">4y exp","mother_tongue":"French","school":"HEC Liège","field_of_study":"Finance","skills":[]}`}},
				},
				"finishReason": "STOP",
			}},
		})
	})

	attrs, _, err := c.Analyze(context.Background(), "cv text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.School != "HEC Liège" || attrs.Experience != ">4y exp" {
		t.Errorf("unexpected attributes %+v", attrs)
	}
	if !strings.Contains(path, "gemini-test:generateContent") {
		t.Errorf("expected generateContent call for configured model, got %q", path)
	}
}

func TestAnalyze_Unauthorized(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 401, "message": "API key not valid", "status": "UNAUTHENTICATED"},
		})
	})

	_, _, err := c.Analyze(context.Background(), "cv text")
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if common.IsTransient(err) {
		t.Error("unauthorized must not be retried")
	}
}
