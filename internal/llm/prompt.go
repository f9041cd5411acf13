package llm

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/cv-pipeline/constants"
)

// maxPromptTextChars caps the CV text we send; longer CVs are cut at a page boundary when possible.
const maxPromptTextChars = 30000

// MasterSchools lists the accepted values for a master-level school.
var MasterSchools = []string{
	"Katholieke Universiteit Leuven",
	"Université Catholique Louvain",
	"Louvain School Management",
	"Vrije Universiteit Brussel",
	"Université Libre Bruxelles",
	"Vlerick Business School",
	"Solvay Brussels School - Economics & Management",
	"ICHEC Brussels Management School",
	"Brussels School Ihecs Journalism & Communication",
	"Université Saint-Louis",
	"Haute Ecole Francisco Ferrer",
	"European Communication School",
	"EHSAL Management School Brussel",
	"HEC Liège",
	"Université de Liège",
	"Université de Mons",
	"Université de Namur",
	"Antwerp Management School",
	"Universiteit Antwerpen",
	"Universiteit Gent",
	"Universiteit Hasselt",
	"College of Europe",
	"Economic School of Louvain",
	"École polytechnique de Louvain",
	"ECAM Brussels Engineering School",
	"United International Business Schools",
	"Antwerp Maritime Academy",
}

// BachelorSchools lists the accepted values for a bachelor-level school.
var BachelorSchools = []string{
	"PXL Hasselt",
	"Thomas More",
	"UCLL (UC Leuven-Limburg)",
	"Odisee",
	"Kedge Business School Bordeaux",
	"Katholieke Hogeschool Sint-Lieven",
	"ECS - European Communication School",
	"Haute Ecole Libre de Bruxelles Ilya Prigogine",
	"EPFC",
	"Artevelde",
	"Haute Ecole Ephec",
	"HoGent",
	"Erasmus Hogeschool Brussel",
	"Haute Ecole en Hainaut",
	"HE2B ESI",
	"EPFL",
	"ECSEDI - ISALT Galilée",
	"ESA Saint-Luc",
	"Howest",
	"Hogeschool VIVES",
	"Henallux",
	"Sint Lucas Antwerpen",
}

// MotherTongues is the closed list of native languages the model may answer.
var MotherTongues = []string{
	"Dutch", "French", "Spanish", "Italian", "Portuguese", "Romanian", "English", "German",
	"Swedish", "Danish", "Norwegian", "Russian", "Polish", "Ukrainian", "Czech", "Slovak",
	"Mandarin Chinese", "Japanese", "Korean", "Vietnamese", "Indonesian", "Thai", "Arabic",
	"Icelandic", "Finnish", "Lithuanian", "Latvian", "Turkish", "Persian (Farsi)", "Greek",
	"Hebrew", "Telugu", "Albanian", "Tagalog", "Chinese", "Bulgarian", "Amazigh", "Nepali",
	"Bangla", "Kazakh", "Catalan", "Azerbaijani", "Afrikaans", "Punjabi", "Kabyle",
}

type faculty struct {
	name   string
	fields [][2]string // field of study, matching degrees
}

var fieldsOfStudy = []faculty{
	{"Arts & Philosophy", [][2]string{
		{"Urban Planning", "Bachelor/Master in City & Regional Planning, Urbanism, Spatial Planning, Transportation sciences, Urban Studies"},
		{"Architecture", "Bachelor/Master in Architecture, Human Settlements"},
		{"Design", "Bachelor/Master in Design & Production Technology, Fine Arts, Graphic & Digital Media, Industrial Design, Web Design"},
		{"History", "Bachelor/Master in History, Art History, Musicology, Theatre Studies, Global Studies, African Studies, Archaeology, Medieval and Renaissance Studies"},
		{"Linguistics & Literature", "Bachelor/Master in African Languages, Applied Languages, East European Languages, Linguistics and Literature, Interpreting, Multilingual Communication, Oriental Languages, Digital Text Analysis, Translation, Clinical Linguistics, Comparative Modern Literature"},
		{"Media & Entertainment", "Bachelor in Audiovisual techniques, Creative Media & Game Technologies, Digital Arts & Entertainment, International Media & Entertainment Business, Sound Engineering, Multimedia & Creative Technologies"},
		{"Music & Film", "Bachelor in Film, Music"},
		{"Philosophy", "Bachelor/Master in Philosophy, Moral Sciences, Bioethics"},
	}},
	{"Economics & Business", [][2]string{
		{"Business", "Bachelor/Master in Business Administration, Business Engineering, Business Management, E-Business, Entrepreneurship and Technology"},
		{"Data in business", "Bachelor/Master in Advanced Business Management: Data & Analytics, Business Data Analysis, Data Science for Business, Statistics and Data Science for Business, Business Analytics, Management: Business Analytics & AI"},
		{"Economics", "Bachelor/Master in Economics, Applied Economics, Business Economics, Social and Economic Sciences"},
		{"Finance", "Bachelor/Master in Accountancy, Finance & Insurance, Actuarial and Financial Engineering, Banking & Finance, Financial Economics, Financial Management, Quantitative Finance"},
		{"Human Resources Management", "Bachelor/Master in Human Resources, Human Resource Management, Learning and Development in Organisations"},
		{"International Business", "Bachelor/Master in European Policies, International Business, International Organisation & Management, International Relations & Affairs, International Business Economics and Management, International Management and Strategy, International Trade"},
		{"IT in business", "Bachelor/Master in IT Management, Digital Business, Business & Information Systems Engineering, Business Informatics, Information Management, Artificial Intelligence in Business and Industry"},
		{"Marketing", "Bachelor/Master in Marketing, International Strategic Marketing, Marketing and Digital Transformation"},
		{"Sales & Marketing", "Bachelor/Master in Real Estate, Retail Management, Marketing, Marketing Analytics, Marketing Management, Sales Management"},
		{"Supply Chain", "Bachelor/Master in Mobility and Supply Chain Engineering, Operations Research, Supply Chain Management, Maritime and Air Transport Management, Transport Management and Logistics"},
		{"Sustainability", "Master in Sustainable Development"},
	}},
	{"Engineering & Technology", [][2]string{
		{"Aerospace Engineering", "Bachelor/Master in Aviation, Aeronautical Engineering, Aerospace Engineering, Space Studies"},
		{"Bioscience Engineering", "Bachelor/Master in Biomedical Engineering, labtechnology, Biochemical Engineering, Bioinformatics, Clinical Scientific Research, Agro- and Ecosystems Engineering, Cellular and Genetic Engineering, Human Health Engineering, Nanoscience, Plant Biotechnology, Forest and Nature Management"},
		{"Chemical Engineering", "Master in Chemical Engineering, Chemical Engineering Technology"},
		{"Civil Engineering", "Bachelor/Master in Construction, Civil Engineering, Civil Engineering Technology, Architectural Engineering"},
		{"Computer Science", "Bachelor/Master in Applied Computer Science, Artificial Intelligence, Computer Engineering, Computer Science, Software Engineering"},
		{"Data Science", "Bachelor/Master in Data Science & AI, Information and Data Science, Statistical Data Analysis, Statistics and Data Science, Biometrics, Industry, Social, Behavioural and Educational Sciences"},
		{"Electrical Engineering", "Bachelor/Master in Electrical Engineering, Electronics and Telecommunication, Electrical Engineering Technology, Electronics and ICT Engineering Technology, Photonics Engineering"},
		{"Environmental Engineering", "Bachelor/Master in Energy technology, Environmental Engineering & Sciences, Engineering: Energy, Safety Engineering"},
		{"Food Technology", "Master in Food Science, Technology and Business, Sustainable Food Systems, Food Technology, Nutrition and Food systems"},
		{"Industrial Engineering", "Bachelor/Master in Industrial Engineering, Industrial Design Engineering Technology, Industrial Engineering and Operations Research, Smart Operations and Maintenance in Industry"},
		{"Information Technology", "Bachelor/Master in Electronics & ICT, ICT, Information and Technology, Information Management, Applied Informatics, Cybersecurity, Information Engineering Technology"},
		{"Mechanical Engineering", "Bachelor/Master in Automotive Engineering, Automotive Technology, Electromechanics, Mechanical Engineering, Electromechanical Engineering Technology, Machine Production Automation, Materials Engineering, Product Development, Welding Engineering"},
		{"Nuclear Engineering", "Master in Nuclear Engineering"},
	}},
	{"Health Sciences", [][2]string{
		{"Audiology", "Bachelor/Master in Audiology, Speech Therapy, Deglutology, Logopaedic and Audiological Sciences"},
		{"Dentistry", "Bachelor in Dental Care"},
		{"Health Technology", "Master in Innovative Health Technology"},
		{"Medicine", "Bachelor/Master in Eye Care, Medical Imaging & Radiotherapy, Medicine, Veterinary Medicine"},
		{"Nutritional Sciences", "Master in Human Nutrition"},
		{"Life Sciences", "Bachelor in Life Sciences"},
		{"Occupational Therapy", "Bachelor/Master in Ergotherapy, Osteopathy"},
		{"Orthotics and Prosthetics", "Bachelor/Master in Orthopaedic Technology, Orthopedagogy, Clinical Orthopedagogy"},
		{"Pharmaceutical Sciences", "Master in Drug Development, Pharmaceutical Engineering, Pharmaceutical Sciences"},
		{"Physiotherapy", "Master in Rehabilitation Sciences and Physiotherapy"},
		{"Sport Sciences", "Bachelor/Master in Adapted Physical Activity, Movement Science, Sports"},
	}},
	{"Law & Criminology", [][2]string{
		{"Criminology", "Master in Criminology"},
		{"Law", "Bachelor/Master in Applied Law, Law, Canon Law, Intellectual Property and ICT Law, Society, Law and Religion"},
	}},
	{"Management", [][2]string{
		{"Business Management", "Bachelor/Master in KMO Management, Organisation & Management, Business Management, General Management, Global Management, Management"},
		{"Engineering & Technology", "Master in Engineering Management, Management Engineering, Management of Technology"},
		{"Events & Facility", "Bachelor/Master in Event Management, Facility Management, Real Estate Management, Office Management"},
		{"Healthcare", "Bachelor/Master in Health Care Management and Policy, Healthcare Management"},
		{"Hospitality", "Bachelor/Master in Hospitality Management, Hotelmanagement, Tourism & Hospitality Management, Tourism"},
		{"Other", "Master in Art Management, Bachelor in Idea & Innovation Management, Master in Management - Innovation & Entrepreneurship, Master in Luxury Management"},
		{"Sport & Culture", "Bachelor/Master in Sport Management, Sport & Cultural Management, Cultural Management"},
	}},
	{"Psychology and Educational Sciences", [][2]string{
		{"Psychology", "Bachelor/Master in Human Decision Science, Labour Sciences, Psychology, Theory and Research, Business Psychology, Brain and Cognitive Sciences"},
		{"Education Sciences", "Bachelor/Master in Education, Educational Studies, Instructional and Educational Sciences, Pedagogical Sciences"},
	}},
	{"Science", [][2]string{
		{"Biology", "Bachelor/Master in Molecular Biology, Biochemistry and Biotechnology, Biology, Marine Biological Resources, Biophysics, Biomedical Sciences, Neurosciences"},
		{"Chemistry", "Master in Chemistry"},
		{"Environmental Sciences", "Bachelor/Master in Sustainable Land Management, Sustainability, Agro- & Biotechnology, Aquaculture, Environmental Technology, Physical Land Resources (Soil Science), Rural Development, Water Resources Engineering, Agro- and Enviromental Nematology, Marine and Lacustrine Science and Management"},
		{"Mathematics", "Bachelor/Master in Statistics, Mathematical Engineering, Mathematics, Actuarial Science"},
		{"Physics", "Bachelor/Master in Physics, Physics and Astronomy, Astrophysics, Medical Physics"},
	}},
	{"Social Sciences", [][2]string{
		{"Anthropology", "Master in Cultural Anthropology and Development Studies, Social and Cultural Anthropology"},
		{"Archaelogy", "Bachelor in Archaeology"},
		{"Communication", "Bachelor/Master in Journalism, Public Relations, Information and Communication Sciences and Technologies, Communication and Media Science, Communication Management, International Communication, Business Communication, Communication Studies: Digital Media in Europe"},
		{"Cultural Studies", "Master in Digital Humanities"},
		{"Geography", "Bachelor/Master in Geography, Population and Development Studies, Geology, Geomatics"},
		{"International Relations", "Bachelor/Master in International Relations & European Studies, European Studies"},
		{"Political Science", "Bachelor/Master in Development Policy & Governance, Conflict and Development Studies, Public Sector Innovation and eGovernance, International Politics, International Relations and Diplomacy, Political Science, Gender and Diversity, Global Security and Strategy, Comparative sciences of culture, Cultural Studies, European Studies: Transnational and Global Perspectives, Liberal Studies"},
		{"Public Relations", "Bachelor/Master in Public Relations, Public Administration and Management, Global Health, Public Affairs"},
		{"Social Work", "Bachelor/Master in European Social Security, Social Work and Welfare Studies, Social Work"},
		{"Sociology", "Master in Sociology"},
		{"Theology", "Bachelor/Master in Theology and Religious Studies"},
	}},
}

// FieldsOfStudy returns every accepted field-of-study value in prompt order.
func FieldsOfStudy() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, f := range fieldsOfStudy {
		for _, kv := range f.fields {
			if _, ok := seen[kv[0]]; ok {
				continue
			}
			seen[kv[0]] = struct{}{}
			out = append(out, kv[0])
		}
	}
	return out
}

// BuildSystemPrompt composes the extraction rules. currentYear feeds the
// graduation-year rules for ongoing programs.
func BuildSystemPrompt(currentYear int) string {
	year := strconv.Itoa(currentYear)
	var b strings.Builder
	w := func(lines ...string) {
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}

	w("TASK: Extract structured information from one CV with high precision and consistency.",
		"",
		"GENERAL RULES:",
		"- The text belongs to a single candidate.",
		"- Only use information that is stated explicitly or has strong supporting evidence.",
		`- If a value cannot be verified with high confidence, use "`+constants.NotAvailable+`" instead of guessing.`,
		"- Return ONLY a JSON object. No explanations, headers or markdown.",
		"",
		"FIELDS:",
		"",
		"1. gender",
		`   - "Male" or "Female".`,
		"",
		"2. education_level",
		"   - STRICT HIERARCHY: "+strings.Join(constants.EducationLevelsAsStrings(), " > ")+".",
		`   - "ManaMa": a master's degree (ongoing or completed) after another completed master's degree. ManaMa must be explicitly stated; a second master alone is "Master".`,
		`   - "Master": any master's degree (ongoing or completed). Do not answer "Master" unless the term or an abbreviation (M.Sc., M.A., M.Eng.) appears.`,
		`   - "BanaBa": a bachelor's degree after another completed bachelor's degree, usually stated explicitly.`,
		`   - "Academic Bachelor": university bachelor's degrees only (B.Sc., B.A., B.Eng.).`,
		`   - "Professional Bachelor": non-university bachelor's degrees (colleges, institutes).`,
		`   - "Secondary level": high school or equivalent.`,
		"   - A master thesis described in another section is not an additional master.",
		"",
		"3. graduation_year",
		`   - Format "GY" followed by a 4-digit year, for example "GY `+year+`".`,
		"   - Only for the most recent educational program, never for trainings, internships or courses.",
		"   - Use the final year of the program. Two-digit years after a month abbreviation are allowed (\"Jul 24\" means GY 2024).",
		`   - "Present", "Now", "Current", "In progress", "Ongoing" for the last degree means "GY `+year+`".`,
		"   - For ongoing programs with only a start date: bachelor adds 3 years, master adds 1 to 2 years.",
		`   - Nothing found: "`+constants.NotAvailable+`".`,
		"",
		"4. experience",
		"   - One of: "+quoteJoin(constants.ExperienceBuckets)+".",
		`   - Nothing found: "`+constants.ExperienceBuckets[0]+`".`,
		"   - Full-time or part-time work in any field counts. Student jobs, internships and trainings do not.",
		"   - Month abbreviations with 2-digit years count (\"Jan 24 - Sep 25\" after studies is \"1.5-2y exp\").",
		"",
		"5. mother_tongue",
		`   - Look in the Skills or Languages section for "Mother tongue", "Native" or "C2". C1 is not native.`,
		"   - Allowed values: "+quoteJoin(MotherTongues)+".",
		`   - With two candidate languages, prefer one that is not English, and prefer Dutch or French. "Arabic (Native)", "French (C2)", "English (C2)" gives "French".`,
		"   - When only language names are listed without levels, take the first one.",
		"",
		"6. school",
		"   - The school of the latest educational program, copied EXACTLY from the list matching education_level.",
		`   - Not on the list or outside Belgium: "Abroad". Nothing found: "`+constants.NotAvailable+`".`,
		"   - Schools (Master): "+strings.Join(MasterSchools, "; ")+".",
		"   - Schools (Bachelor): "+strings.Join(BachelorSchools, "; ")+".",
		"",
		"7. field_of_study",
		`   - The field of the latest educational program, copied EXACTLY from the list below. Use the degrees to match. No match: "Other".`,
	)
	for _, f := range fieldsOfStudy {
		w("   Faculty: " + f.name)
		for _, kv := range f.fields {
			w("   - " + kv[0] + " (Degree: " + kv[1] + ")")
		}
	}
	w("",
		"8. skills",
		"   - Up to 15 concrete professional skills (tools, languages, methods) as short strings.",
		"   - Empty array when none are listed.",
		"",
		"OUTPUT: a JSON object with exactly these keys: "+strings.Join(constants.RequiredAttributes, ", ")+".",
		"Example:",
		`{"gender": "Female", "education_level": "Master", "graduation_year": "GY `+strconv.Itoa(currentYear-2)+`", "experience": "0-0.5y exp", "mother_tongue": "French", "school": "Katholieke Universiteit Leuven", "field_of_study": "Finance", "skills": ["Excel", "SQL"]}`,
	)
	return b.String()
}

// BuildUserPrompt wraps the CV text, truncated to a size the models handle well.
func BuildUserPrompt(text string) string {
	if len(text) > maxPromptTextChars {
		n := maxPromptTextChars
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		cut := text[:n]
		if i := strings.LastIndex(cut, "\n\n"); i > n/2 {
			cut = cut[:i]
		}
		text = cut
	}
	return "--- CV CONTENT ---\n" + text
}

func quoteJoin(vals []string) string {
	q := make([]string, len(vals))
	for i, v := range vals {
		q[i] = strconv.Quote(v)
	}
	return strings.Join(q, ", ")
}
