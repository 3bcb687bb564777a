//go:build !linux && !darwin && !windows

package changejournal

import "github.com/blitxfer/blit/internal/model"

// platformTakeSnapshot reports Unsupported on platforms with no wired
// change indicator (the BSDs, plan9, ...): §4.6 requires exactly this
// fallback when a snapshot cannot be obtained.
func platformTakeSnapshot(root string) (model.StoredSnapshot, bool, error) {
	return model.StoredSnapshot{}, false, nil
}
