package watch

import (
	"path/filepath"

	"github.com/felixgeelhaar/ganttly/pkg/storage"
)

// PatternFilter filters file paths based on include/exclude glob patterns.
type PatternFilter struct {
	Include []string
	Exclude []string
}

// NewPatternFilter creates a new pattern filter.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{
		Include: include,
		Exclude: exclude,
	}
}

// DefaultStoreFilter matches the project and versions files and ignores
// the append-only event log, which the process itself writes constantly.
func DefaultStoreFilter() *PatternFilter {
	return NewPatternFilter(
		[]string{storage.ProjectFile, storage.VersionsFile},
		[]string{storage.EventsFile, "*.tmp", "*.swp"},
	)
}

// Matches returns true if the path passes the filter.
// If include patterns are set, at least one must match.
// If exclude patterns are set, none must match.
func (f *PatternFilter) Matches(path string) bool {
	base := filepath.Base(path)

	for _, pattern := range f.Exclude {
		if matched, _ := filepath.Match(pattern, base); matched {
			return false
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return false
		}
	}

	if len(f.Include) == 0 {
		return true
	}

	for _, pattern := range f.Include {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}

	return false
}
