package scan

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/defect-track/models"
	"github.com/flanksource/defect-track/settings"
)

// ErrRetryable marks a persistence failure during reconciliation. The
// whole scan batch can simply be replayed: transitions are derived from
// set membership and writes are upserts by fingerprint, so a retry
// converges to the same record set.
var ErrRetryable = errors.New("retryable persistence failure")

// Store is the persistence collaborator for defect records.
type Store interface {
	ProjectDefects(ctx context.Context, project string) ([]models.DefectRecord, error)
	Defect(ctx context.Context, project, fingerprint string) (*models.DefectRecord, error)
	UpsertDefects(ctx context.Context, records []models.DefectRecord) error
}

// Tracker maintains the repair-status state machine for a project's
// defects across scan cycles.
type Tracker struct {
	store   Store
	workers int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithWorkers sets the number of reconciliation workers.
func WithWorkers(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.workers = n
		}
	}
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:   store,
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReconcileResult summarizes one scan cycle's reconciliation.
type ReconcileResult struct {
	Created   int      `json:"created"`
	Fixed     int      `json:"fixed"`
	Revived   int      `json:"revived"`
	Unchanged int      `json:"unchanged"`
	Invalid   int      `json:"invalid"`
	Warnings  []string `json:"warnings,omitempty"`
}

// change classifies the outcome of a single fingerprint transition.
type change int

const (
	changeNone change = iota
	changeRefreshed
	changeFixed
	changeRevived
)

// Reconcile applies one scan cycle's finding batch to the project's
// persisted records:
//
//   - a known fingerprint absent from the batch and currently NEW is
//     marked FIXED (disappearing from a fresh scan is the only way a
//     defect gets fixed),
//   - a known fingerprint present in the batch keeps its liveness,
//     except that a previously FIXED record is revived to NEW,
//   - an unseen fingerprint becomes a new record, classified once
//     against the tool-integration time.
//
// Work is partitioned by fingerprint hash so each worker owns exclusive
// read-modify-write access to its share; all records are then written
// in a single upsert so a mid-batch failure leaves nothing half
// applied. Errors wrap ErrRetryable and the full batch is safe to
// replay.
func (t *Tracker) Reconcile(ctx context.Context, project string, batch []models.RawFinding, integrationTime time.Time) (*ReconcileResult, error) {
	current := make(map[string]models.RawFinding, len(batch))
	for _, f := range batch {
		fp := f.Fingerprint()
		if _, ok := current[fp]; !ok {
			current[fp] = f
		}
	}

	existing, err := t.store.ProjectDefects(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("%w: loading records for %s: %w", ErrRetryable, project, err)
	}
	known := make(map[string]bool, len(existing))
	for _, rec := range existing {
		known[rec.Fingerprint] = true
	}

	now := time.Now()

	// Each partition owns a disjoint set of fingerprints, so the
	// workers never race on the same record.
	type unit struct {
		prev    *models.DefectRecord
		finding *models.RawFinding
	}
	parts := make([][]unit, t.workers)
	assign := func(fp string, u unit) {
		i := int(fingerprintPartition(fp, t.workers))
		parts[i] = append(parts[i], u)
	}
	for i := range existing {
		rec := existing[i]
		var finding *models.RawFinding
		if f, ok := current[rec.Fingerprint]; ok {
			finding = &f
		}
		assign(rec.Fingerprint, unit{prev: &rec, finding: finding})
	}
	for fp, f := range current {
		if !known[fp] {
			f := f
			assign(fp, unit{finding: &f})
		}
	}

	type partial struct {
		result  ReconcileResult
		upserts []models.DefectRecord
	}
	partials := make([]partial, t.workers)

	var wg sync.WaitGroup
	for i := range parts {
		if len(parts[i]) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &partials[i]
			for _, u := range parts[i] {
				if ctx.Err() != nil {
					return
				}
				if u.prev == nil {
					rec, warnings := newRecord(project, *u.finding, integrationTime, now)
					p.result.Created++
					p.result.Warnings = append(p.result.Warnings, warnings...)
					p.upserts = append(p.upserts, rec)
					continue
				}
				if err := u.prev.Status.Validate(); err != nil {
					p.result.Invalid++
					p.result.Warnings = append(p.result.Warnings,
						fmt.Sprintf("skipping %s: %v", u.prev.Fingerprint, err))
					continue
				}
				next, c := transition(*u.prev, u.finding, now)
				switch c {
				case changeFixed:
					p.result.Fixed++
				case changeRevived:
					p.result.Revived++
				default:
					p.result.Unchanged++
				}
				if c != changeNone {
					p.upserts = append(p.upserts, next)
				}
			}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	var upserts []models.DefectRecord
	for _, p := range partials {
		result.Created += p.result.Created
		result.Fixed += p.result.Fixed
		result.Revived += p.result.Revived
		result.Unchanged += p.result.Unchanged
		result.Invalid += p.result.Invalid
		result.Warnings = append(result.Warnings, p.result.Warnings...)
	}
	for _, p := range partials {
		upserts = append(upserts, p.upserts...)
	}

	if len(upserts) > 0 {
		if err := t.store.UpsertDefects(ctx, upserts); err != nil {
			return nil, fmt.Errorf("%w: upserting %d records for %s: %w", ErrRetryable, len(upserts), project, err)
		}
	}

	logger.Debugf("reconciled %s: %d created, %d fixed, %d revived, %d unchanged",
		project, result.Created, result.Fixed, result.Revived, result.Unchanged)
	return result, nil
}

// transition derives the next persisted state for one known fingerprint
// purely from the previous record and the batch membership. finding is
// nil when the fingerprint was absent from the current scan.
func transition(prev models.DefectRecord, finding *models.RawFinding, now time.Time) (models.DefectRecord, change) {
	next := prev

	if finding == nil {
		if !prev.Status.Has(models.StatusNew) {
			// Already FIXED; nothing to do.
			return prev, changeNone
		}
		next.Status = prev.Status.MarkFixed()
		return next, changeFixed
	}

	// Still present: refresh the volatile fields, keep the defect type.
	next.LineNum = finding.LineNum
	next.Message = finding.Message
	if !finding.LineUpdateTime.IsZero() {
		next.LineUpdateTime = finding.LineUpdateTime
		next.LineUpdateDate = finding.LineUpdateTime.Format("2006-01-02")
	}
	next.LastSeenAt = now

	if prev.Status.Has(models.StatusFixed) {
		// A fingerprint that disappeared and came back resumes its
		// record rather than starting a fresh cycle.
		next.Status = prev.Status.Revive()
		return next, changeRevived
	}
	return next, changeRefreshed
}

// newRecord creates the persisted record for a first-time fingerprint.
func newRecord(project string, f models.RawFinding, integrationTime time.Time, now time.Time) (models.DefectRecord, []string) {
	var warnings []string

	severity := f.Severity
	if !severity.Valid() {
		warnings = append(warnings,
			fmt.Sprintf("%s:%d: unknown severity %d, falling back to PROMPT", f.File, f.LineNum, int(severity)))
		severity = models.SeverityPrompt
	}
	if f.Checker == "" {
		warnings = append(warnings,
			fmt.Sprintf("%s:%d: finding has no checker id", f.File, f.LineNum))
	}

	defectType, lowConfidence := Classify(f, integrationTime)
	if lowConfidence {
		warnings = append(warnings,
			fmt.Sprintf("%s:%d: no tool integration time, classifying as NEW with low confidence", f.File, f.LineNum))
	}

	rec := models.DefectRecord{
		Fingerprint:    f.Fingerprint(),
		Project:        project,
		File:           f.File,
		LineNum:        f.LineNum,
		Author:         f.Author,
		Checker:        f.Checker,
		Severity:       severity,
		Message:        f.Message,
		DefectType:     defectType,
		Status:         models.StatusNew,
		LineUpdateTime: f.LineUpdateTime,
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}
	if !f.LineUpdateTime.IsZero() {
		rec.LineUpdateDate = f.LineUpdateTime.Format("2006-01-02")
	}
	return rec, warnings
}

// ApplyExclusions sweeps the project's records, setting or clearing the
// PATH_MASKED and CHECKER_MASKED flags to match the current exclusion
// rules. Liveness flags are never touched. Returns the number of
// records whose flags changed.
func (t *Tracker) ApplyExclusions(ctx context.Context, project string, ex settings.Exclusions) (int, error) {
	records, err := t.store.ProjectDefects(ctx, project)
	if err != nil {
		return 0, fmt.Errorf("%w: loading records for %s: %w", ErrRetryable, project, err)
	}

	var changed []models.DefectRecord
	for _, rec := range records {
		status := rec.Status
		if ex.MatchesPath(rec.File) {
			status = status.With(models.StatusPathMasked)
		} else {
			status = status.Without(models.StatusPathMasked)
		}
		if ex.MatchesChecker(rec.Checker) {
			status = status.With(models.StatusCheckerMasked)
		} else {
			status = status.Without(models.StatusCheckerMasked)
		}
		if status != rec.Status {
			rec.Status = status
			changed = append(changed, rec)
		}
	}

	if len(changed) > 0 {
		if err := t.store.UpsertDefects(ctx, changed); err != nil {
			return 0, fmt.Errorf("%w: updating mask flags for %s: %w", ErrRetryable, project, err)
		}
	}
	return len(changed), nil
}

// SetIgnored marks or unmarks a single defect as user-ignored. The
// liveness flag is untouched.
func (t *Tracker) SetIgnored(ctx context.Context, project, fingerprint string, ignored bool) error {
	rec, err := t.store.Defect(ctx, project, fingerprint)
	if err != nil {
		return fmt.Errorf("loading defect %s: %w", fingerprint, err)
	}

	status := rec.Status.Without(models.StatusIgnored)
	if ignored {
		status = rec.Status.With(models.StatusIgnored)
	}
	if status == rec.Status {
		return nil
	}
	rec.Status = status

	if err := t.store.UpsertDefects(ctx, []models.DefectRecord{*rec}); err != nil {
		return fmt.Errorf("%w: updating defect %s: %w", ErrRetryable, fingerprint, err)
	}
	return nil
}

// fingerprintPartition maps a fingerprint onto one of n partitions.
func fingerprintPartition(fingerprint string, n int) uint32 {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return h.Sum32() % uint32(n)
}
