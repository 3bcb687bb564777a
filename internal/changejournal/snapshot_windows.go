//go:build windows

package changejournal

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/blitxfer/blit/internal/model"
)

const fsctlQueryUSNJournal = 0x000900f4

type usnJournalData struct {
	USNJournalID    uint64
	FirstUsn        int64
	NextUsn         int64
	LowestValidUsn  int64
	MaxUsn          int64
	MaximumSize     uint64
	AllocationDelta uint64
}

// platformTakeSnapshot builds a Windows StoredSnapshot from the volume
// label/serial, the USN journal id, and the journal's next USN (§3, §4.6),
// grounded on the same raw-DeviceIoControl idiom as
// backend/local/preallocate_windows.go's NtQueryVolumeInformationFile calls.
func platformTakeSnapshot(root string) (model.StoredSnapshot, bool, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return model.StoredSnapshot{}, false, nil
	}

	volumeRoot := filepathVolumeRoot(root)
	var volSerial uint32
	volNameBuf := make([]uint16, windows.MAX_PATH)
	if err := windows.GetVolumeInformation(
		windows.StringToUTF16Ptr(volumeRoot),
		&volNameBuf[0], uint32(len(volNameBuf)),
		&volSerial, nil, nil, nil, 0,
	); err != nil {
		return model.StoredSnapshot{}, false, nil
	}

	handle, err := windows.CreateFile(
		windows.StringToUTF16Ptr(volumeRoot),
		windows.GENERIC_READ, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		return model.StoredSnapshot{}, false, nil
	}
	defer windows.CloseHandle(handle)

	var journal usnJournalData
	var bytesReturned uint32
	err = windows.DeviceIoControl(
		handle, fsctlQueryUSNJournal, nil, 0,
		(*byte)(unsafe.Pointer(&journal)), uint32(unsafe.Sizeof(journal)),
		&bytesReturned, nil,
	)
	if err != nil {
		return model.StoredSnapshot{}, false, nil
	}

	return model.StoredSnapshot{
		OS:        model.SnapshotWindows,
		Volume:    fmt.Sprintf("%08x", volSerial),
		JournalID: journal.USNJournalID,
		NextUSN:   journal.NextUsn,
		RootMTime: fi.ModTime().Unix(),
	}, true, nil
}

func filepathVolumeRoot(root string) string {
	if len(root) >= 2 && root[1] == ':' {
		return root[:2] + `\`
	}
	return root
}
