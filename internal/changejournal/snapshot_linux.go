//go:build linux

package changejournal

import (
	"os"
	"syscall"

	"github.com/blitxfer/blit/internal/model"
)

// platformTakeSnapshot builds a Linux StoredSnapshot from device id, root
// inode, and ctime (§3, §4.6): device+inode+ctime identify the root dentry
// and its last metadata change; root mtime catches content-only edits that
// don't bump ctime on some filesystems layered underneath (e.g. overlayfs).
func platformTakeSnapshot(root string) (model.StoredSnapshot, bool, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return model.StoredSnapshot{}, false, nil
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return model.StoredSnapshot{}, false, nil
	}
	return model.StoredSnapshot{
		OS:        model.SnapshotLinux,
		Device:    uint64(st.Dev),
		Inode:     st.Ino,
		CtimeSec:  int64(st.Ctim.Sec),
		CtimeNsec: int64(st.Ctim.Nsec),
		RootMTime: fi.ModTime().Unix(),
	}, true, nil
}
