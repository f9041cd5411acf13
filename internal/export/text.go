package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

// RenderText is the plain-text report used when no workbook can be written.
func RenderText(res *pipeline.BatchResult, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CV analysis results (%s)\n", generated.Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("=", 60) + "\n")
	for _, kv := range summaryRows(res, generated)[1:] {
		fmt.Fprintf(&b, "%-22s %v\n", kv[0].(string)+":", kv[1])
	}
	b.WriteString("\n")

	for _, o := range res.Outcomes {
		fmt.Fprintf(&b, "[%d] %s (%s): %s\n", o.Index, o.Candidate.DisplayName(), o.Candidate.ID, o.Stage)
		if o.Failed() {
			fmt.Fprintf(&b, "    failed at %s [%s]: %s\n", o.FailedStage, o.ErrorClass, o.Error)
		}
		if a := o.Attributes; a != nil {
			for _, kv := range a.Scalars() {
				fmt.Fprintf(&b, "    %-16s %s\n", kv[0]+":", kv[1])
			}
			if len(a.Skills) > 0 {
				fmt.Fprintf(&b, "    %-16s %s\n", "skills:", strings.Join(a.Skills, ", "))
			}
		}
		if o.CVPath != "" {
			fmt.Fprintf(&b, "    %-16s %s\n", "cv:", o.CVPath)
		}
	}
	return b.String()
}
