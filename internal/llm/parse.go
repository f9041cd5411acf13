package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/utils"
)

// ParseAttributes turns a model reply into attributes: extract the JSON body,
// sanitize leniently, then validate strictly. Anything that still does not
// match the schema is an ErrSchemaValidation and must not be retried.
func ParseAttributes(content string, logger *slog.Logger) (entity.Attributes, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	body := []byte(ExtractJSON(content))

	cleaned, changed, err := NormalizeAndSanitizeJSON(body, logger)
	if err != nil {
		return entity.Attributes{}, body, fmt.Errorf("%w: %v", common.ErrSchemaValidation, err)
	}
	if err := ValidateJSONAgainstSchema(BuildAttributesJSONSchema(), cleaned); err != nil {
		logger.Warn("llm.analyze.schema_validation_failed", "error", err, "changed", changed, "content", utils.Truncate(string(body), 500))
		return entity.Attributes{}, cleaned, fmt.Errorf("%w: %v", common.ErrSchemaValidation, err)
	}

	var out entity.Attributes
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return entity.Attributes{}, cleaned, fmt.Errorf("%w: unmarshal attributes: %v", common.ErrSchemaValidation, err)
	}
	if out.Skills == nil {
		out.Skills = []string{}
	}
	return out, cleaned, nil
}
