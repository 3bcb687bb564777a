// Package changejournal lets repeated transfers probe OS-level change
// indicators to skip unchanged trees entirely (spec §4.6), grounded on
// original_source's change_journal/{types,tracker,util}.rs.
package changejournal

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"

	"github.com/blitxfer/blit/internal/model"
)

// takeSnapshot is bound to platformTakeSnapshot, defined once per OS
// (snapshot_linux.go, snapshot_darwin.go, snapshot_windows.go,
// snapshot_other.go).
var takeSnapshot func(root string) (model.StoredSnapshot, bool, error) = platformTakeSnapshot

// Tracker owns the on-disk cache mapping canonical path to the last
// recorded snapshot, matching original_source's ChangeTracker.
type Tracker struct {
	path    string
	records map[string]model.StoredRecord
	log     *logrus.Logger
}

// Load reads the cache file (creating an empty in-memory tracker if it does
// not exist yet) from the default cache location.
func Load(log *logrus.Logger) (*Tracker, error) {
	path, err := storePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path, log)
}

// LoadFrom reads the cache file at an explicit path, for tests.
func LoadFrom(path string, log *logrus.Logger) (*Tracker, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Tracker{path: path, records: map[string]model.StoredRecord{}, log: log}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &t.records); err != nil {
		t.log.WithError(err).Warn("changejournal: cache file corrupt, starting fresh")
		t.records = map[string]model.StoredRecord{}
	}
	return t, nil
}

// Probe implements §4.6: obtain a fresh snapshot for root, compare against
// any stored prior snapshot, and classify the ChangeState.
func (t *Tracker) Probe(root string) (model.ProbeToken, error) {
	canonical, err := canonicalize(root)
	if err != nil {
		canonical = root
	}
	key := canonicalToKey(canonical)

	snap, ok, err := takeSnapshot(canonical)
	if err != nil {
		return model.ProbeToken{}, err
	}
	if !ok {
		return model.ProbeToken{Key: key, CanonicalPath: canonical, State: model.ChangeUnsupported}, nil
	}

	prior, hasPrior := t.records[key]
	if !hasPrior {
		return model.ProbeToken{Key: key, CanonicalPath: canonical, Snapshot: snap, State: model.ChangeUnknown}, nil
	}

	state := model.ChangeChanges
	if snapshotsEqual(snap, prior.Snapshot) {
		state = model.ChangeNoChanges
	}
	return model.ProbeToken{Key: key, CanonicalPath: canonical, Snapshot: snap, State: state}, nil
}

// snapshotsEqual implements the per-OS equality predicates of §4.6.
func snapshotsEqual(a, b model.StoredSnapshot) bool {
	if a.OS != b.OS {
		return false
	}
	switch a.OS {
	case model.SnapshotWindows:
		return a.Volume == b.Volume && a.JournalID == b.JournalID && a.NextUSN == b.NextUSN && a.RootMTime == b.RootMTime
	case model.SnapshotMacOS:
		return a.FSID == b.FSID && a.EventID == b.EventID && a.RootMTime == b.RootMTime
	case model.SnapshotLinux:
		return a.Device == b.Device && a.Inode == b.Inode && a.CtimeSec == b.CtimeSec &&
			a.CtimeNsec == b.CtimeNsec && a.RootMTime == b.RootMTime
	default:
		return false
	}
}

// RefreshAndPersist upserts the snapshot carried by each token (skipping
// Unsupported tokens, which carry no snapshot) and atomically rewrites the
// cache file if anything changed.
func (t *Tracker) RefreshAndPersist(tokens []model.ProbeToken) error {
	changed := false
	for _, tok := range tokens {
		if tok.State == model.ChangeUnsupported {
			continue
		}
		t.records[tok.Key] = model.StoredRecord{
			Snapshot:     tok.Snapshot,
			RecordedAtMS: time.Now().UnixMilli(),
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return t.persist()
}

func (t *Tracker) persist() error {
	data, err := json.MarshalIndent(t.records, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".changejournal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, t.path)
}

func storePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "blit", "change_journal.json"), nil
}

func canonicalize(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	return resolved, nil
}

// canonicalToKey hashes the canonical path to a stable, filesystem-safe
// cache key, matching original_source's canonical_to_key.
func canonicalToKey(canonical string) string {
	sum := sha1.Sum([]byte(filepath.ToSlash(canonical)))
	return hex.EncodeToString(sum[:])
}
