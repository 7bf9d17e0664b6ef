package scan

import (
	"time"

	"github.com/flanksource/defect-track/models"
)

// Classify decides whether a finding is a post-adoption regression (NEW)
// or pre-existing debt (HISTORY). A line that last changed before the
// tool was integrated cannot be blamed on a regression, so it is
// HISTORY; everything else is NEW.
//
// The result is deterministic and the caller classifies each
// fingerprint at most once: a defect never changes age category on
// later scans.
//
// lowConfidence is set when the integration time is unknown; the
// fallback is NEW so that potential regressions are never hidden as
// history, but callers should log the degraded classification.
func Classify(f models.RawFinding, integrationTime time.Time) (defectType models.DefectType, lowConfidence bool) {
	if integrationTime.IsZero() {
		return models.DefectTypeNew, true
	}
	if !f.LineUpdateTime.IsZero() && f.LineUpdateTime.Before(integrationTime) {
		return models.DefectTypeHistory, false
	}
	return models.DefectTypeNew, false
}
