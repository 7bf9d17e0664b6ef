package git

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"
	gogit "github.com/go-git/go-git/v5"

	"github.com/flanksource/defect-track/models"
)

// LineInfo describes the last change to a single line of a tracked file.
type LineInfo struct {
	Author string
	Date   time.Time
}

// BlameReader resolves per-line authorship from a repository working
// tree, caching one blame result per file. Safe for concurrent use.
type BlameReader struct {
	repo *gogit.Repository
	root string

	mu    sync.Mutex
	cache map[string][]LineInfo
}

// OpenBlameReader opens the repository containing dir.
func OpenBlameReader(dir string) (*BlameReader, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	return &BlameReader{
		repo:  repo,
		root:  worktree.Filesystem.Root(),
		cache: make(map[string][]LineInfo),
	}, nil
}

// Line returns who last changed the given 1-based line and when.
func (b *BlameReader) Line(file string, line int) (*LineInfo, error) {
	lines, err := b.fileLines(file)
	if err != nil {
		return nil, err
	}
	if line < 1 || line > len(lines) {
		return nil, fmt.Errorf("line %d out of range for %s (%d lines)", line, file, len(lines))
	}
	info := lines[line-1]
	return &info, nil
}

func (b *BlameReader) fileLines(file string) ([]LineInfo, error) {
	rel := file
	if filepath.IsAbs(file) {
		var err error
		rel, err = filepath.Rel(b.root, file)
		if err != nil {
			return nil, fmt.Errorf("file %s is outside repository %s: %w", file, b.root, err)
		}
	}
	rel = filepath.ToSlash(rel)

	b.mu.Lock()
	defer b.mu.Unlock()
	if lines, ok := b.cache[rel]; ok {
		return lines, nil
	}

	head, err := b.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	commit, err := b.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to load HEAD commit: %w", err)
	}

	result, err := gogit.Blame(commit, rel)
	if err != nil {
		return nil, fmt.Errorf("failed to blame %s: %w", rel, err)
	}

	lines := make([]LineInfo, len(result.Lines))
	for i, l := range result.Lines {
		lines[i] = LineInfo{Author: l.AuthorName, Date: l.Date}
	}
	b.cache[rel] = lines
	return lines, nil
}

// Enrich fills the author and line-update time of findings that the
// tool-runner delivered without them. Blame failures are logged and the
// finding passed through untouched: attribution is best effort, the
// scan must not fail over it.
func (b *BlameReader) Enrich(findings []models.RawFinding) []models.RawFinding {
	enriched := make([]models.RawFinding, len(findings))
	for i, f := range findings {
		if f.Author != "" && !f.LineUpdateTime.IsZero() {
			enriched[i] = f
			continue
		}
		info, err := b.Line(f.File, f.LineNum)
		if err != nil {
			logger.Debugf("blame %s:%d: %v", f.File, f.LineNum, err)
			enriched[i] = f
			continue
		}
		if f.Author == "" {
			f.Author = info.Author
		}
		if f.LineUpdateTime.IsZero() {
			f.LineUpdateTime = info.Date
		}
		enriched[i] = f
	}
	return enriched
}
