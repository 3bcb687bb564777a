package localengine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MakeDirs creates every directory relPath under root, shallowest first, so
// a child directory never races its own parent's creation.
func MakeDirs(root string, relPaths []string) error {
	sorted := make([]string, len(relPaths))
	copy(sorted, relPaths)
	sort.Slice(sorted, func(i, j int) bool {
		return depth(sorted[i]) < depth(sorted[j])
	})
	for _, rel := range sorted {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func depth(rel string) int {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}
