package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSettings(t, `
project: billing-api
tool_integration_time: 2024-03-01T12:00:00Z
exclusions:
  paths:
    - "vendor/**"
    - "**/*_generated.go"
  checkers:
    - deprecated-api
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "billing-api", s.Project)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), s.ToolIntegrationTime)
	assert.Len(t, s.Exclusions.Paths, 2)
	assert.Len(t, s.Exclusions.Checkers, 1)
}

func TestLoadWithoutIntegrationTime(t *testing.T) {
	path := writeSettings(t, "project: billing-api\n")

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.ToolIntegrationTime.IsZero(), "missing integration time stays zero")
}

func TestLoadRejectsMissingProject(t *testing.T) {
	path := writeSettings(t, "exclusions:\n  checkers: [lint]\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromDirMissingFileIsNotAnError(t *testing.T) {
	s, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestExclusionsMatchesPath(t *testing.T) {
	ex := Exclusions{Paths: []string{"vendor/**", "**/*_test.go", "*.pb.go"}}

	tests := []struct {
		file string
		want bool
	}{
		{"vendor/lib/util.go", true},
		{"pkg/api/server_test.go", true},
		{"gen/service.pb.go", true}, // basename fallback
		{"pkg/api/server.go", false},
		{"vendored/file.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.MatchesPath(tt.file))
		})
	}
}

func TestExclusionsMatchesChecker(t *testing.T) {
	ex := Exclusions{Checkers: []string{"deprecated-api", "todo-comment"}}

	assert.True(t, ex.MatchesChecker("deprecated-api"))
	assert.False(t, ex.MatchesChecker("gocyclo"))
	assert.False(t, ex.MatchesChecker(""))
}
