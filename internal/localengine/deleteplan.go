package localengine

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/blitxfer/blit/internal/model"
)

// DeletePlan is the set of destination-relative paths a mirror transfer
// removes because they have no counterpart on the source side, grounded on
// delete.rs's generate_delete_plan.
type DeletePlan struct {
	Files []string
	Dirs  []string // ordered deepest-first so removal never hits a non-empty directory
}

// BuildDeletePlan compares the set of relative paths present on the source
// (sourceRel) against everything currently enumerated at the destination
// (destEntries) and returns what mirror mode must remove.
func BuildDeletePlan(sourceRel map[string]bool, destEntries []model.Entry) DeletePlan {
	var plan DeletePlan
	for _, e := range destEntries {
		if sourceRel[e.RelPath] {
			continue
		}
		if e.Kind == model.KindDirectory {
			plan.Dirs = append(plan.Dirs, e.RelPath)
		} else {
			plan.Files = append(plan.Files, e.RelPath)
		}
	}

	sort.Slice(plan.Dirs, func(i, j int) bool {
		return depth(plan.Dirs[i]) < depth(plan.Dirs[j])
	})
	reverse(plan.Dirs)

	return plan
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Counts returns how many files and directories the plan removes; it
// mirrors plan_counts from the reference implementation.
func (p DeletePlan) Counts() (files, dirs int) { return len(p.Files), len(p.Dirs) }

// Ancestors returns the slash-separated parent directories of rel, shallowest
// first, stopping before root (the empty string).
func Ancestors(rel string) []string {
	rel = filepath.ToSlash(rel)
	var out []string
	for {
		idx := strings.LastIndex(rel, "/")
		if idx < 0 {
			return out
		}
		rel = rel[:idx]
		if rel == "" {
			return out
		}
		out = append([]string{rel}, out...)
	}
}
