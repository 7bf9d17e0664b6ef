package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/defect-track/models"
)

// The tool-runner delivers one JSON document per scan cycle: a list of
// scanned files, each carrying its findings with the external field
// names (linenum, category, linenum_datetime as epoch milliseconds).

type fileFindings struct {
	File    string       `json:"file"`
	Defects []rawFinding `json:"defects"`
}

type rawFinding struct {
	LineNum int    `json:"linenum"`
	Author  string `json:"author"`
	Checker string `json:"category"`
	// Number or name; tools disagree, so decoding is deferred.
	Severity       json.RawMessage `json:"severity"`
	Message        string          `json:"message"`
	Anchor         string          `json:"anchor"`
	LineUpdateTime int64           `json:"linenum_datetime"`
}

// ReadBatch decodes a scan cycle's finding batch. Malformed severities
// and missing checker ids degrade the finding to the PROMPT tier and
// are reported as warnings rather than failing the batch; only a
// syntactically broken document is an error.
func ReadBatch(r io.Reader) ([]models.RawFinding, []string, error) {
	var files []fileFindings
	dec := json.NewDecoder(r)
	if err := dec.Decode(&files); err != nil {
		return nil, nil, fmt.Errorf("failed to decode finding batch: %w", err)
	}

	var findings []models.RawFinding
	var warnings []string
	for _, ff := range files {
		for _, raw := range ff.Defects {
			severity, ok := decodeSeverity(raw.Severity)
			if !ok {
				warnings = append(warnings,
					fmt.Sprintf("%s:%d: unrecognised severity %s, using PROMPT", ff.File, raw.LineNum, string(raw.Severity)))
			}
			if raw.Checker == "" {
				warnings = append(warnings,
					fmt.Sprintf("%s:%d: finding has no checker id", ff.File, raw.LineNum))
			}

			f := models.RawFinding{
				File:     ff.File,
				LineNum:  raw.LineNum,
				Author:   raw.Author,
				Checker:  raw.Checker,
				Severity: severity,
				Message:  raw.Message,
				Anchor:   raw.Anchor,
			}
			if raw.LineUpdateTime > 0 {
				f.LineUpdateTime = time.UnixMilli(raw.LineUpdateTime)
			}
			findings = append(findings, f)
		}
	}
	return findings, warnings, nil
}

// ReadBatchFile decodes a finding batch from a file on disk.
func ReadBatchFile(path string) ([]models.RawFinding, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open finding batch %s: %w", path, err)
	}
	defer f.Close()
	return ReadBatch(f)
}

// decodeSeverity accepts the ordinal form (1/2/4) and the symbolic form
// ("SERIOUS"/"NORMAL"/"PROMPT"); anything else is PROMPT.
func decodeSeverity(raw json.RawMessage) (models.Severity, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return models.SeverityPrompt, false
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		return models.ParseSeverity(strconv.Itoa(n))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return models.ParseSeverity(s)
	}
	return models.SeverityPrompt, false
}
