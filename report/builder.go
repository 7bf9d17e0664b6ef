package report

import (
	"github.com/flanksource/defect-track/models"
)

// AuthorReport is the external wire shape of one author's unrepaired
// counts. The field names are part of the reporting contract and must
// not drift with the internal model.
type AuthorReport struct {
	Name         string `json:"name"`
	SeriousCount int    `json:"serious_count"`
	NormalCount  int    `json:"normal_count"`
	PromptCount  int    `json:"prompt_count"`
	TotalCount   int    `json:"total_count"`
}

// Build adapts aggregated summaries to the external reporting shape.
// It is strictly a field mapping; filtering and ordering happen in the
// aggregator and the input order is preserved.
func Build(summaries []models.AuthorSummary) []AuthorReport {
	reports := make([]AuthorReport, 0, len(summaries))
	for _, s := range summaries {
		reports = append(reports, AuthorReport{
			Name:         s.Name,
			SeriousCount: s.SeriousCount,
			NormalCount:  s.NormalCount,
			PromptCount:  s.PromptCount,
			TotalCount:   s.TotalCount,
		})
	}
	return reports
}
