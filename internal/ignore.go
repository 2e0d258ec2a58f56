package internal

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const IgnoreFilename = ".poolselignore"

// IgnoreMatcher filters item names on import using gitignore syntax, with
// "/" in a name acting as a path separator.
type IgnoreMatcher struct {
	patterns []gitignore.Pattern
}

func NewIgnoreMatcher(ws Workspace) (*IgnoreMatcher, error) {
	patterns, err := parseIgnoreFile(filepath.Join(ws.Root, IgnoreFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &IgnoreMatcher{patterns: patterns}, nil
}

func (m *IgnoreMatcher) MatchName(name Name) bool {
	if m == nil {
		return false
	}
	parts := strings.Split(name.String(), "/")

	// Later patterns override earlier ones, negations included.
	matched := false
	for _, p := range m.patterns {
		switch p.Match(parts, false) {
		case gitignore.Exclude:
			matched = true
		case gitignore.Include:
			matched = false
		}
	}
	return matched
}

func (m *IgnoreMatcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

func parseIgnoreFile(path string) ([]gitignore.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return patterns, nil
}
