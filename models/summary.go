package models

import (
	"strconv"

	"github.com/flanksource/clicky/api"
)

// UnknownAuthor is the bucket findings with an empty author are grouped
// under, so they are reported rather than dropped.
const UnknownAuthor = "unknown"

// AuthorSummary counts one author's currently-unrepaired defects per
// severity tier.
type AuthorSummary struct {
	Name         string `json:"name"`
	SeriousCount int    `json:"serious_count"`
	NormalCount  int    `json:"normal_count"`
	PromptCount  int    `json:"prompt_count"`
	TotalCount   int    `json:"total_count"`
}

// Add counts one unrepaired defect of the given tier.
func (a *AuthorSummary) Add(severity Severity) {
	switch severity {
	case SeveritySerious:
		a.SeriousCount++
	case SeverityNormal:
		a.NormalCount++
	default:
		a.PromptCount++
	}
	a.TotalCount++
}

// Merge folds another partial summary for the same author into a. Counts
// are plain sums, so merge order does not matter.
func (a *AuthorSummary) Merge(other AuthorSummary) {
	a.SeriousCount += other.SeriousCount
	a.NormalCount += other.NormalCount
	a.PromptCount += other.PromptCount
	a.TotalCount += other.TotalCount
}

func (a AuthorSummary) String() string {
	return a.Pretty().String()
}

// Pretty returns a formatted text representation of the summary with styling
func (a AuthorSummary) Pretty() api.Text {
	t := api.Text{}.Append(a.Name, "text-blue-500").
		Append(": ", "text-gray-500").
		Append(strconv.Itoa(a.TotalCount)).
		Append(" unrepaired", "text-gray-500")
	if a.SeriousCount > 0 {
		t = t.Append(" serious="+strconv.Itoa(a.SeriousCount), "text-red-600")
	}
	if a.NormalCount > 0 {
		t = t.Append(" normal="+strconv.Itoa(a.NormalCount), "text-yellow-600")
	}
	if a.PromptCount > 0 {
		t = t.Append(" prompt="+strconv.Itoa(a.PromptCount), "text-gray-400")
	}
	return t
}
