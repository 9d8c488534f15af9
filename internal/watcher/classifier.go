package watcher

import (
	"path/filepath"
	"sort"
	"strings"

	"onecam/internal/domain"
)

// Classifier maps a file path to the watched root that contains it.
//
// A root matches when the cleaned path lies under the root directory at a
// path-separator boundary. When roots are nested the longest (most specific)
// root wins, so the outcome never depends on configuration order.
type Classifier struct {
	roots []domain.WatchedRoot
}

func NewClassifier(roots []domain.WatchedRoot) *Classifier {
	sorted := make([]domain.WatchedRoot, 0, len(roots))
	for _, root := range roots {
		root.Dir = filepath.Clean(root.Dir)
		sorted = append(sorted, root)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Dir) > len(sorted[j].Dir)
	})
	return &Classifier{roots: sorted}
}

// Classify returns the root containing path, or false when none does.
func (c *Classifier) Classify(path string) (domain.WatchedRoot, bool) {
	if c == nil || path == "" {
		return domain.WatchedRoot{}, false
	}
	clean := filepath.Clean(path)
	for _, root := range c.roots {
		if within(clean, root.Dir) {
			return root, true
		}
	}
	return domain.WatchedRoot{}, false
}


func within(path, dir string) bool {
	if path == dir {
		return false
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
