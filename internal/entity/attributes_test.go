package entity_test

import (
	"reflect"
	"testing"

	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

func TestAttributesTags_SkipsNAAndDuplicates(t *testing.T) {
	a := entity.Attributes{
		Gender:         "Female",
		EducationLevel: "Master",
		GraduationYear: "GY 2023",
		Experience:     "0-0.5y exp",
		MotherTongue:   "n/a",
		School:         "Universiteit Gent",
		FieldOfStudy:   "Master",
		Skills:         []string{"Go", "SQL"},
	}
	want := []string{"Female", "Master", "GY 2023", "0-0.5y exp", "Universiteit Gent"}
	if got := a.Tags(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected tags %v, got %v", want, got)
	}
}

func TestAttributesTags_EmptyWhenNothingKnown(t *testing.T) {
	a := entity.Attributes{Gender: "N/A", School: "  "}
	if got := a.Tags(); len(got) != 0 {
		t.Errorf("expected no tags, got %v", got)
	}
}

func TestCandidateDisplayName_FallsBackToFirstLast(t *testing.T) {
	c := entity.Candidate{FirstName: "Ada", LastName: "Lovelace"}
	if got := c.DisplayName(); got != "Ada Lovelace" {
		t.Errorf("expected 'Ada Lovelace', got '%s'", got)
	}
}
