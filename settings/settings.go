package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory when no
// settings file is given explicitly.
const DefaultFileName = ".defect-track.yaml"

// Settings is the per-project configuration: when static analysis was
// first enabled for the project, and which exclusion rules currently
// apply. The integration time may legitimately be absent for projects
// that never recorded it; the classifier then degrades to NEW.
type Settings struct {
	Project string `yaml:"project" json:"project"`

	// Moment static analysis was first enabled. Zero means unknown.
	ToolIntegrationTime time.Time `yaml:"tool_integration_time,omitempty" json:"tool_integration_time,omitempty"`

	Exclusions Exclusions `yaml:"exclusions,omitempty" json:"exclusions,omitempty"`
}

// Exclusions are the project's suppression rules. Paths are doublestar
// globs matched against the finding's file path; checkers are exact
// rule identifiers.
type Exclusions struct {
	Paths    []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	Checkers []string `yaml:"checkers,omitempty" json:"checkers,omitempty"`
}

// MatchesPath reports whether file is covered by a path exclusion,
// matching the full path first and the basename as a fallback.
func (e Exclusions) MatchesPath(file string) bool {
	for _, pattern := range e.Paths {
		if ok, err := doublestar.Match(pattern, file); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, filepath.Base(file)); err == nil && ok {
			return true
		}
	}
	return false
}

// MatchesChecker reports whether the checker id is excluded.
func (e Exclusions) MatchesChecker(checker string) bool {
	return lo.Contains(e.Checkers, checker)
}

// Load reads project settings from a YAML file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	if s.Project == "" {
		return nil, fmt.Errorf("settings file %s has no project name", path)
	}
	return &s, nil
}

// LoadFromDir looks for the default settings file in dir. A missing
// file is not an error: it returns nil settings so callers can fall
// back to flags.
func LoadFromDir(dir string) (*Settings, error) {
	path := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return Load(path)
}
