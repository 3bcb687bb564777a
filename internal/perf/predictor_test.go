package perf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitxfer/blit/internal/model"
)

func testKey() model.ProfileKey {
	return model.ProfileKey{SourceFS: "ext4", DestFS: "ext4", Mode: "copy"}
}

// TestObserveMonotonicity checks invariant 8 of §8: after observing a
// record with observed > predicted, the new prediction on an identical
// input is strictly greater than the old one.
func TestObserveMonotonicity(t *testing.T) {
	dir := t.TempDir()
	p, err := LoadFrom(filepath.Join(dir, "predictor.json"))
	require.NoError(t, err)

	key := testKey()
	before := p.PredictMS(key, 100, 50)
	p.Observe(key, 100, 50, before+500)
	after := p.PredictMS(key, 100, 50)

	assert.Greater(t, after, before)
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictor.json")
	p, err := LoadFrom(path)
	require.NoError(t, err)

	key := testKey()
	p.Observe(key, 10, 5, 1000)
	require.NoError(t, p.Save())

	reloaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, p.PredictMS(key, 10, 5), reloaded.PredictMS(key, 10, 5))
}

func TestLoadResetsOnUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "predictor.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "profiles": {}}`), 0o644))

	p, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, defaultCoefficients().Alpha*10+defaultCoefficients().Gamma, p.PredictMS(testKey(), 10, 0))
}

func TestAppendAndLoadRecentRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")

	for i := 0; i < 5; i++ {
		rec := model.PerformanceRecord{Mode: "copy", FileCount: i, EpochMS: int64(i)}
		require.NoError(t, appendRecordTo(path, rec))
	}

	recent, err := LoadRecentRecords(path, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].FileCount)
	assert.Equal(t, 4, recent[1].FileCount)
}

func TestAppendRecordHonorsDisableEnvVar(t *testing.T) {
	t.Setenv(DisableHistoryEnvVar, "1")

	// With the escape hatch set, AppendRecord must return immediately
	// without touching the filesystem at all.
	rec := model.PerformanceRecord{Mode: "copy"}
	require.NoError(t, AppendRecord(rec))
}
