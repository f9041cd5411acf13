package llm

import "github.com/joseph-ayodele/cv-pipeline/constants"

// BuildAttributesJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// It is sent to the model as a structured output hint and used locally to validate.
// Values are free strings on purpose: "N/A" is always valid and the vocabularies
// (schools, fields of study) live in the prompt.
func BuildAttributesJSONSchema() map[string]any {
	str := func() map[string]any { return map[string]any{"type": "string"} }
	props := map[string]any{
		constants.AttrGender:         str(),
		constants.AttrEducationLevel: str(),
		constants.AttrGraduationYear: map[string]any{"type": "string", "pattern": `^(GY \d{4}|N/A)$`},
		constants.AttrExperience:     str(),
		constants.AttrMotherTongue:   str(),
		constants.AttrSchool:         str(),
		constants.AttrFieldOfStudy:   str(),
		constants.AttrSkills: map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             constants.RequiredAttributes,
	}
}
