package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flanksource/defect-track/models"
)

func TestClassify(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * 24 * time.Hour)

	tests := []struct {
		name              string
		lineUpdate        time.Time
		integration       time.Time
		want              models.DefectType
		wantLowConfidence bool
	}{
		{
			name:        "line changed before tool adoption is history",
			lineUpdate:  t0,
			integration: t1,
			want:        models.DefectTypeHistory,
		},
		{
			name:        "line changed after tool adoption is new",
			lineUpdate:  t1,
			integration: t0,
			want:        models.DefectTypeNew,
		},
		{
			name:        "line changed exactly at adoption is new",
			lineUpdate:  t0,
			integration: t0,
			want:        models.DefectTypeNew,
		},
		{
			name:              "unknown integration time falls back to new",
			lineUpdate:        t0,
			want:              models.DefectTypeNew,
			wantLowConfidence: true,
		},
		{
			name:        "unknown line update time is new",
			integration: t0,
			want:        models.DefectTypeNew,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := models.RawFinding{File: "a.go", Checker: "lint", LineUpdateTime: tt.lineUpdate}

			got, lowConfidence := Classify(f, tt.integration)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLowConfidence, lowConfidence)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	f := models.RawFinding{
		File:           "pkg/a.go",
		Checker:        "gocyclo",
		LineUpdateTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	integration := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	first, _ := Classify(f, integration)
	for i := 0; i < 10; i++ {
		got, _ := Classify(f, integration)
		assert.Equal(t, first, got)
	}
}
