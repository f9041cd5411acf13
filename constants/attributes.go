package constants

import "strings"

// NotAvailable is what the model returns when a field cannot be verified.
const NotAvailable = "N/A"

// Attribute keys returned by the analysis service. All are required.
const (
	AttrGender         = "gender"
	AttrEducationLevel = "education_level"
	AttrGraduationYear = "graduation_year"
	AttrExperience     = "experience"
	AttrMotherTongue   = "mother_tongue"
	AttrSchool         = "school"
	AttrFieldOfStudy   = "field_of_study"
	AttrSkills         = "skills"
)

// RequiredAttributes lists every key the analysis response must carry.
var RequiredAttributes = []string{
	AttrGender,
	AttrEducationLevel,
	AttrGraduationYear,
	AttrExperience,
	AttrMotherTongue,
	AttrSchool,
	AttrFieldOfStudy,
	AttrSkills,
}

type EducationLevel string

const (
	ManaMa               EducationLevel = "ManaMa"
	Master               EducationLevel = "Master"
	BanaBa               EducationLevel = "BanaBa"
	AcademicBachelor     EducationLevel = "Academic Bachelor"
	ProfessionalBachelor EducationLevel = "Professional Bachelor"
	SecondaryLevel       EducationLevel = "Secondary level"
)

// EducationLevels is ordered from highest to lowest.
var EducationLevels = []EducationLevel{
	ManaMa,
	Master,
	BanaBa,
	AcademicBachelor,
	ProfessionalBachelor,
	SecondaryLevel,
}

// ExperienceBuckets are the only experience labels the prompt allows.
var ExperienceBuckets = []string{
	"0-0.5y exp", "0.5-1y exp", "1-1.5y exp", "1.5-2y exp", "2-2.5y exp", "2.5-3y exp",
	"3-3.5y exp", "3.5-4y exp", ">4y exp", ">5y exp", ">6y-10 exp", "10y-15y exp",
	"15y-20y exp", ">20y exp",
}

func EducationLevelsAsStrings() []string {
	result := make([]string, len(EducationLevels))
	for i, lvl := range EducationLevels {
		result[i] = string(lvl)
	}
	return result
}

// CanonicalEducationLevel maps loose model output onto the hierarchy.
func CanonicalEducationLevel(input string) (EducationLevel, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" || normalized == strings.ToLower(NotAvailable) {
		return "", false
	}

	synonyms := map[string]EducationLevel{
		"masters":               Master,
		"master's":              Master,
		"msc":                   Master,
		"m.sc.":                 Master,
		"bachelor":              AcademicBachelor,
		"bachelors":             AcademicBachelor,
		"professional bachelor": ProfessionalBachelor,
		"high school":           SecondaryLevel,
		"secondary":             SecondaryLevel,
	}
	if lvl, ok := synonyms[normalized]; ok {
		return lvl, true
	}

	for _, lvl := range EducationLevels {
		if normalized == strings.ToLower(string(lvl)) {
			return lvl, true
		}
	}
	return "", false
}
