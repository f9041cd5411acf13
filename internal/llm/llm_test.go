package llm_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm"
)

const validReply = `{"gender":"Female","education_level":"Master","graduation_year":"GY 2023","experience":"0-0.5y exp","mother_tongue":"French","school":"Universiteit Gent","field_of_study":"Finance","skills":["Excel","SQL"]}`

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"plain":   `{"a":1}`,
		"fenced":  "```json\n{\"a\":1}\n```",
		"chatter": "Here you go:\n{\"a\":1}\nHope this helps",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if got := llm.ExtractJSON(in); got != `{"a":1}` {
				t.Errorf("expected {\"a\":1}, got %q", got)
			}
		})
	}
}

func TestParseAttributes_Valid(t *testing.T) {
	attrs, raw, err := llm.ParseAttributes("```json\n"+validReply+"\n```", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.School != "Universiteit Gent" || attrs.MotherTongue != "French" {
		t.Errorf("unexpected attributes %+v", attrs)
	}
	if !reflect.DeepEqual(attrs.Skills, []string{"Excel", "SQL"}) {
		t.Errorf("unexpected skills %v", attrs.Skills)
	}
	if !json.Valid(raw) {
		t.Errorf("expected raw json back, got %q", raw)
	}
}

func TestParseAttributes_LenientFixes(t *testing.T) {
	reply := `{"gender":" Male ","education_level":"masters","graduation_year":2021,"experience":"1-1.5y exp",
		"mother_tong":"Dutch","school":null,"field_of_study":"","skills":"Go, Kubernetes; SQL","confidence":0.9}`
	attrs, raw, err := llm.ParseAttributes(reply, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.Gender != "Male" {
		t.Errorf("expected trimmed gender, got %q", attrs.Gender)
	}
	if attrs.EducationLevel != "Master" {
		t.Errorf("expected canonical education level, got %q", attrs.EducationLevel)
	}
	if attrs.GraduationYear != "GY 2021" {
		t.Errorf("expected GY 2021, got %q", attrs.GraduationYear)
	}
	if attrs.MotherTongue != "Dutch" {
		t.Errorf("expected legacy key renamed, got %q", attrs.MotherTongue)
	}
	if attrs.School != "N/A" || attrs.FieldOfStudy != "N/A" {
		t.Errorf("expected N/A for null/empty, got %q %q", attrs.School, attrs.FieldOfStudy)
	}
	if !reflect.DeepEqual(attrs.Skills, []string{"Go", "Kubernetes", "SQL"}) {
		t.Errorf("unexpected skills %v", attrs.Skills)
	}
	if strings.Contains(string(raw), "confidence") {
		t.Errorf("expected unknown key dropped, got %s", raw)
	}
}

func TestParseAttributes_UnparseableYearBecomesNA(t *testing.T) {
	reply := strings.Replace(validReply, `"GY 2023"`, `"sometime soon"`, 1)
	attrs, _, err := llm.ParseAttributes(reply, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attrs.GraduationYear != "N/A" {
		t.Errorf("expected N/A, got %q", attrs.GraduationYear)
	}
}

func TestParseAttributes_SchemaFailures(t *testing.T) {
	cases := map[string]string{
		"missing key": `{"gender":"Male","education_level":"Master","graduation_year":"GY 2020","experience":">20y exp","school":"Abroad","field_of_study":"Law","skills":[]}`,
		"not json":    "I could not read this CV",
		"array":       `[1,2,3]`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := llm.ParseAttributes(reply, nil)
			if !errors.Is(err, common.ErrSchemaValidation) {
				t.Fatalf("expected ErrSchemaValidation, got %v", err)
			}
			if common.IsTransient(err) {
				t.Error("schema failures must not be transient")
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p := llm.BuildSystemPrompt(2026)
	for _, want := range []string{
		`"GY 2026"`,
		"ManaMa > Master > BanaBa > Academic Bachelor > Professional Bachelor > Secondary level",
		"Universiteit Hasselt",
		"Sint Lucas Antwerpen",
		"Data in business (Degree:",
		"mother_tongue",
		"skills",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
	if strings.Contains(p, "mother_tong,") {
		t.Error("prompt should ask for mother_tongue, not the legacy key")
	}
}

func TestBuildUserPrompt_Truncates(t *testing.T) {
	long := strings.Repeat("é", 20000) // 40000 bytes
	p := llm.BuildUserPrompt(long)
	if len(p) > 31000 {
		t.Errorf("expected truncated prompt, got %d bytes", len(p))
	}
	if !strings.HasPrefix(p, "--- CV CONTENT ---\n") {
		t.Errorf("unexpected prefix %q", p[:20])
	}
	if strings.ContainsRune(p, '�') || !json.Valid([]byte(`"`+strings.TrimPrefix(p, "--- CV CONTENT ---\n")+`"`)) {
		t.Error("truncation split a rune")
	}
}

func TestFieldsOfStudy_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range llm.FieldsOfStudy() {
		if seen[f] {
			t.Errorf("duplicate field %q", f)
		}
		seen[f] = true
	}
	if !seen["Computer Science"] || !seen["Other"] {
		t.Error("expected well-known fields present")
	}
}
