package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/defect-track/models"
)

func TestReadBatch(t *testing.T) {
	doc := `[
		{
			"file": "pkg/api/server.go",
			"defects": [
				{
					"linenum": 42,
					"author": "alice",
					"category": "gocyclo",
					"severity": 1,
					"message": "cyclomatic complexity too high",
					"anchor": "a1b2c3",
					"linenum_datetime": 1717243200000
				},
				{
					"linenum": 90,
					"author": "bob",
					"category": "unused",
					"severity": "NORMAL",
					"message": "unused variable"
				}
			]
		},
		{
			"file": "pkg/db/conn.go",
			"defects": [
				{"linenum": 7, "category": "sqlclose", "severity": 4, "message": "rows not closed"}
			]
		}
	]`

	findings, warnings, err := ReadBatch(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, findings, 3)

	first := findings[0]
	assert.Equal(t, "pkg/api/server.go", first.File)
	assert.Equal(t, 42, first.LineNum)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "gocyclo", first.Checker)
	assert.Equal(t, models.SeveritySerious, first.Severity)
	assert.Equal(t, "a1b2c3", first.Anchor)
	assert.Equal(t, time.UnixMilli(1717243200000), first.LineUpdateTime)

	assert.Equal(t, models.SeverityNormal, findings[1].Severity)
	assert.True(t, findings[1].LineUpdateTime.IsZero())

	assert.Equal(t, "", findings[2].Author, "missing author is tolerated")
	assert.Equal(t, models.SeverityPrompt, findings[2].Severity)
}

func TestReadBatchDegradesBadFindings(t *testing.T) {
	doc := `[
		{
			"file": "a.go",
			"defects": [
				{"linenum": 1, "category": "lint", "severity": 7, "message": "odd severity"},
				{"linenum": 2, "category": "lint", "severity": "BLOCKER", "message": "odd name"},
				{"linenum": 3, "severity": 2, "message": "no checker"}
			]
		}
	]`

	findings, warnings, err := ReadBatch(strings.NewReader(doc))
	require.NoError(t, err, "a bad finding must not fail the batch")
	require.Len(t, findings, 3)

	assert.Equal(t, models.SeverityPrompt, findings[0].Severity)
	assert.Equal(t, models.SeverityPrompt, findings[1].Severity)
	assert.Equal(t, models.SeverityNormal, findings[2].Severity)
	assert.Len(t, warnings, 3)
}

func TestReadBatchRejectsBrokenDocument(t *testing.T) {
	_, _, err := ReadBatch(strings.NewReader(`{"not": "a list"`))
	assert.Error(t, err)
}

func TestReadBatchEmpty(t *testing.T) {
	findings, warnings, err := ReadBatch(strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Empty(t, warnings)
}

func TestDecodeSeverity(t *testing.T) {
	tests := []struct {
		raw    string
		want   models.Severity
		wantOk bool
	}{
		{`1`, models.SeveritySerious, true},
		{`2`, models.SeverityNormal, true},
		{`4`, models.SeverityPrompt, true},
		{`"SERIOUS"`, models.SeveritySerious, true},
		{`"prompt"`, models.SeverityPrompt, true},
		{`3`, models.SeverityPrompt, false},
		{`"HIGH"`, models.SeverityPrompt, false},
		{`null`, models.SeverityPrompt, false},
		{`{}`, models.SeverityPrompt, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := decodeSeverity([]byte(tt.raw))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}
