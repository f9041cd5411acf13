package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/cv-pipeline/constants"
)

var (
	reYear   = regexp.MustCompile(`^(?:GY\s*)?(\d{4})$`)
	reSkills = regexp.MustCompile(`[,;\n]`)
)

// ExtractJSON strips markdown fences and any chatter around the first JSON object.
func ExtractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (mother_tong -> mother_tongue)
// - Trims strings, turns null/"" scalars into "N/A", coerces numbers to strings
// - Normalizes graduation_year to "GY yyyy" and education_level onto the hierarchy
// - Coerces skills into an array of strings
// - Removes unknown keys (strict additionalProperties = false friendliness)
//
// Missing required keys are left missing so strict validation still rejects them.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	changed := make([]string, 0, 8)
	rename := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			changed = append(changed, from+"->"+to)
		}
	}
	rename("mother_tong", constants.AttrMotherTongue)
	rename("mother tongue", constants.AttrMotherTongue)
	rename("native_language", constants.AttrMotherTongue)
	rename("education", constants.AttrEducationLevel)

	for _, k := range constants.RequiredAttributes {
		if k == constants.AttrSkills {
			continue
		}
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, constants.NotAvailable) {
				if s != constants.NotAvailable {
					changed = append(changed, k+"(na)")
				}
				s = constants.NotAvailable
			}
			m[k] = s
		case float64:
			m[k] = strconv.FormatFloat(t, 'f', -1, 64)
			changed = append(changed, k+"(number)")
		case nil:
			m[k] = constants.NotAvailable
			changed = append(changed, k+"(null)")
		default:
			m[k] = constants.NotAvailable
			changed = append(changed, k+"(type)")
		}
	}

	if v, ok := m[constants.AttrGraduationYear].(string); ok && v != constants.NotAvailable {
		if sm := reYear.FindStringSubmatch(strings.ToUpper(v)); sm != nil {
			if gy := "GY " + sm[1]; gy != v {
				m[constants.AttrGraduationYear] = gy
				changed = append(changed, constants.AttrGraduationYear+"(format)")
			}
		} else {
			m[constants.AttrGraduationYear] = constants.NotAvailable
			changed = append(changed, constants.AttrGraduationYear+"(unparseable)")
		}
	}

	if v, ok := m[constants.AttrEducationLevel].(string); ok {
		if lvl, ok := constants.CanonicalEducationLevel(v); ok && string(lvl) != v {
			m[constants.AttrEducationLevel] = string(lvl)
			changed = append(changed, constants.AttrEducationLevel+"(canonical)")
		}
	}

	if v, ok := m[constants.AttrSkills]; ok {
		skills, note := coerceSkills(v)
		m[constants.AttrSkills] = skills
		if note != "" {
			changed = append(changed, constants.AttrSkills+"("+note+")")
		}
	}

	allowed := make(map[string]struct{}, len(constants.RequiredAttributes))
	for _, k := range constants.RequiredAttributes {
		allowed[k] = struct{}{}
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Debug("llm.analyze.normalize_sanitize", "changed", slices.Clone(changed))
	}
	return out, changed, nil
}

func coerceSkills(v any) ([]string, string) {
	out := []string{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !strings.EqualFold(s, constants.NotAvailable) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case []any:
		note := ""
		for _, item := range t {
			switch s := item.(type) {
			case string:
				add(s)
			case nil:
				note = "items"
			default:
				add(fmt.Sprint(s))
				note = "items"
			}
		}
		return out, note
	case string:
		for _, s := range reSkills.Split(t, -1) {
			add(s)
		}
		return out, "split"
	case nil:
		return out, "null"
	default:
		return out, "type"
	}
}
