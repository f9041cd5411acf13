package entity

import (
	"strings"

	"github.com/joseph-ayodele/cv-pipeline/constants"
)

// Attributes is the normalized shape we want from the analysis service.
type Attributes struct {
	Gender         string   `json:"gender"`
	EducationLevel string   `json:"education_level"`
	GraduationYear string   `json:"graduation_year"` // "GY 2024"
	Experience     string   `json:"experience"`      // one of constants.ExperienceBuckets
	MotherTongue   string   `json:"mother_tongue"`
	School         string   `json:"school"`
	FieldOfStudy   string   `json:"field_of_study"`
	Skills         []string `json:"skills"`
}

// Scalars returns the single-valued attributes keyed by attribute name, in report order.
func (a Attributes) Scalars() [][2]string {
	return [][2]string{
		{constants.AttrGender, a.Gender},
		{constants.AttrEducationLevel, a.EducationLevel},
		{constants.AttrGraduationYear, a.GraduationYear},
		{constants.AttrExperience, a.Experience},
		{constants.AttrMotherTongue, a.MotherTongue},
		{constants.AttrSchool, a.School},
		{constants.AttrFieldOfStudy, a.FieldOfStudy},
	}
}

// Tags derives the platform tags: every scalar value that is set and not N/A,
// de-duplicated, in attribute order. Skills stay in the report only.
func (a Attributes) Tags() []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, kv := range a.Scalars() {
		v := strings.TrimSpace(kv[1])
		if v == "" || strings.EqualFold(v, constants.NotAvailable) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		tags = append(tags, v)
	}
	return tags
}
