package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/clicky/api"
)

// Severity is the reporting tier of a defect, ordered by descending
// importance. The ordinals are the values persisted and exposed on the
// wire, so they must not be renumbered.
type Severity int

const (
	SeveritySerious Severity = 1
	SeverityNormal  Severity = 2
	SeverityPrompt  Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeveritySerious:
		return "SERIOUS"
	case SeverityNormal:
		return "NORMAL"
	case SeverityPrompt:
		return "PROMPT"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the three known tiers.
func (s Severity) Valid() bool {
	return s == SeveritySerious || s == SeverityNormal || s == SeverityPrompt
}

// ParseSeverity maps a raw tool severity (ordinal or name) onto a tier.
// Unrecognised values fall to the lowest tier (PROMPT) so that one bad
// finding never fails a scan; ok reports whether the input was known.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "1", "SERIOUS":
		return SeveritySerious, true
	case "2", "NORMAL":
		return SeverityNormal, true
	case "4", "PROMPT":
		return SeverityPrompt, true
	}
	return SeverityPrompt, false
}

// DefectType records whether the flagged code predates tool adoption.
// It is decided once, on first observation of a fingerprint, and never
// recomputed.
type DefectType int

const (
	DefectTypeNew     DefectType = 1
	DefectTypeHistory DefectType = 2
)

func (t DefectType) String() string {
	switch t {
	case DefectTypeNew:
		return "NEW"
	case DefectTypeHistory:
		return "HISTORY"
	}
	return fmt.Sprintf("DefectType(%d)", int(t))
}

// Status is the repair-status flag set of a defect. Exactly one of the
// liveness flags (NEW, FIXED) must be set at all times; the suppression
// flags are orthogonal and may combine with either.
type Status int

const (
	StatusNew           Status = 1 << iota // 1
	StatusFixed                            // 2
	StatusIgnored                          // 4
	StatusPathMasked                       // 8
	StatusCheckerMasked                    // 16
)

const (
	livenessMask    = StatusNew | StatusFixed
	suppressionMask = StatusIgnored | StatusPathMasked | StatusCheckerMasked
)

// ErrInconsistentStatus marks a record whose liveness flags violate the
// NEW-xor-FIXED invariant. Such records are excluded from aggregation
// rather than silently repaired.
var ErrInconsistentStatus = errors.New("defect status has invalid liveness flags")

func (s Status) Has(flag Status) bool { return s&flag == flag }

func (s Status) With(flag Status) Status { return s | flag }

func (s Status) Without(flag Status) Status { return s &^ flag }

// MarkFixed flips the liveness flag from NEW to FIXED, leaving any
// suppression flags in place.
func (s Status) MarkFixed() Status { return s.Without(StatusNew).With(StatusFixed) }

// Revive flips the liveness flag back from FIXED to NEW for a
// fingerprint that reappeared in a later scan.
func (s Status) Revive() Status { return s.Without(StatusFixed).With(StatusNew) }

// Suppressed reports whether any of IGNORED / PATH_MASKED /
// CHECKER_MASKED is set.
func (s Status) Suppressed() bool { return s&suppressionMask != 0 }

// Unrepaired reports whether the defect counts toward author summaries:
// live (NEW) and not suppressed.
func (s Status) Unrepaired() bool { return s&livenessMask == StatusNew && !s.Suppressed() }

// Validate rejects the "both or neither" liveness states.
func (s Status) Validate() error {
	switch s & livenessMask {
	case StatusNew, StatusFixed:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInconsistentStatus, s)
}

func (s Status) String() string {
	if s == 0 {
		return "NONE"
	}
	names := []struct {
		flag Status
		name string
	}{
		{StatusNew, "NEW"},
		{StatusFixed, "FIXED"},
		{StatusIgnored, "IGNORED"},
		{StatusPathMasked, "PATH_MASKED"},
		{StatusCheckerMasked, "CHECKER_MASKED"},
	}
	var parts []string
	for _, n := range names {
		if s.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// DefectRecord is one static-analysis finding tracked across scan
// cycles. The fingerprint is its identity: records are upserted by
// fingerprint and never physically deleted, so a FIXED record stays
// around as audit history.
type DefectRecord struct {
	Fingerprint string `json:"fingerprint" gorm:"column:fingerprint;primaryKey"`
	Project     string `json:"project" gorm:"column:project;not null;index"`
	File        string `json:"file" gorm:"column:file_path;not null;index"`
	// Current line position; drifts across scans and is not part of
	// the fingerprint.
	LineNum int `json:"linenum" gorm:"column:line_num;not null"`
	// Last person to touch the flagged line. May be empty when the
	// tool-runner could not attribute it.
	Author   string   `json:"author" gorm:"column:author;index"`
	Checker  string   `json:"category" gorm:"column:checker;not null"`
	Severity Severity `json:"severity" gorm:"column:severity;not null"`
	Message  string   `json:"message,omitempty" gorm:"column:message"`

	DefectType DefectType `json:"defect_type" gorm:"column:defect_type;not null"`
	Status     Status     `json:"status" gorm:"column:status;not null"`

	// When the flagged line last changed in source control. Only the
	// classifier consumes this.
	LineUpdateTime time.Time `json:"linenum_datetime" gorm:"column:linenum_datetime"`
	LineUpdateDate string    `json:"line_update_date,omitempty" gorm:"column:line_update_date"`

	FirstSeenAt time.Time `json:"first_seen_at,omitempty" gorm:"column:first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at,omitempty" gorm:"column:last_seen_at"`
}

// TableName specifies the table name for DefectRecord
func (DefectRecord) TableName() string {
	return "defects"
}

func (d DefectRecord) String() string {
	return d.Pretty().String()
}

// Pretty returns a formatted text representation of the defect with styling
func (d DefectRecord) Pretty() api.Text {
	t := api.Text{}.Append(d.File, "text-gray-500").
		Append(":", "text-gray-500").
		Append(strconv.Itoa(d.LineNum))

	severityStyle := "text-yellow-600"
	switch d.Severity {
	case SeveritySerious:
		severityStyle = "text-red-600"
	case SeverityPrompt:
		severityStyle = "text-gray-400"
	}
	t = t.Append(" ["+d.Severity.String()+"]", severityStyle).
		Append(" "+d.Checker, "text-blue-500")

	if d.Author != "" {
		t = t.Append(" @"+d.Author, "text-gray-500")
	}
	if d.Message != "" {
		t = t.Append(", ⇥ ", "text-gray-400").Append(strings.TrimSpace(d.Message))
	}
	return t.Append(" ("+d.Status.String()+")", "text-gray-400")
}

// RawFinding is one finding as delivered by the tool-runner for a
// scanned file. Anchor is the tool's stable position hint (a hash of
// the normalized flagged line); the line number itself is too volatile
// to identify a finding across scans.
type RawFinding struct {
	File           string
	LineNum        int
	Author         string
	Checker        string
	Severity       Severity
	Message        string
	Anchor         string
	LineUpdateTime time.Time
}

// Fingerprint derives the stable identity of the finding. Line-number
// drift must not change it, so the anchor stands in for the position;
// findings without an anchor fall back to the message text.
func (f RawFinding) Fingerprint() string {
	anchor := f.Anchor
	if anchor == "" {
		anchor = f.Message
	}
	return Fingerprint(f.File, f.Checker, f.Author, anchor)
}

// Fingerprint hashes the identifying parts of a finding into a stable
// hex digest.
func Fingerprint(file, checker, author, anchor string) string {
	h := sha256.New()
	for _, part := range []string{file, checker, author, anchor} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
