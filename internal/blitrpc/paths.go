package blitrpc

import (
	"fmt"
	"path"
	"strings"
)

// SanitizeRelativePath validates a path received over the wire before it is
// joined against a destination root (§8 invariant 9). It rejects anything
// that could escape the module root: absolute paths, empty segments after
// cleaning, ".." components, and Windows volume prefixes smuggled in as a
// relative path (e.g. "C:/evil").
func SanitizeRelativePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("blitrpc: empty relative path")
	}
	clean := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if path.IsAbs(clean) {
		return "", fmt.Errorf("blitrpc: absolute path rejected: %q", rel)
	}
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", fmt.Errorf("blitrpc: path escapes root: %q", rel)
	}
	if len(clean) >= 2 && clean[1] == ':' {
		return "", fmt.Errorf("blitrpc: volume-qualified path rejected: %q", rel)
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", fmt.Errorf("blitrpc: path escapes root: %q", rel)
		}
	}
	return clean, nil
}
