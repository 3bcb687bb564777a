// Package perf implements the online linear performance predictor and the
// append-only performance history log of spec §4.11 / §3 / §6, grounded on
// original_source's perf_predictor.rs and orchestrator/history.rs.
package perf

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/blitxfer/blit/internal/model"
)

const (
	learningRate   = 5e-4
	minCoefficient = 1e-6
	stateVersion   = 1

	defaultAlpha = 0.05
	defaultBeta  = 0.01
	defaultGamma = 50.0
)

// DisableHistoryEnvVar suppresses appending to the performance history log
// even when perf_history is set, matching original_source's
// BLIT_DISABLE_PERF_HISTORY escape hatch (SPEC_FULL §12).
const DisableHistoryEnvVar = "BLIT_DISABLE_PERF_HISTORY"

type profileState struct {
	Coefficients model.PredictorCoefficients `json:"coefficients"`
	Observations int                         `json:"observations"`
}

type stateFile struct {
	Version  int                     `json:"version"`
	Profiles map[string]profileState `json:"profiles"`
}

// Predictor is the process-lifetime predictor state: loaded once at
// orchestrator construction, updated in memory, saved once at shutdown.
type Predictor struct {
	mu    sync.Mutex
	path  string
	state stateFile
}

// Load reads the predictor state file from the default location. An
// unknown version, or a missing file, starts from an empty state (§6).
func Load() (*Predictor, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the predictor state file at an explicit path, for tests.
func LoadFrom(path string) (*Predictor, error) {
	p := &Predictor{path: path, state: stateFile{Version: stateVersion, Profiles: map[string]profileState{}}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}

	var loaded stateFile
	if err := json.Unmarshal(data, &loaded); err != nil || loaded.Version != stateVersion {
		return p, nil
	}
	if loaded.Profiles == nil {
		loaded.Profiles = map[string]profileState{}
	}
	p.state = loaded
	return p, nil
}

func defaultCoefficients() model.PredictorCoefficients {
	return model.PredictorCoefficients{Alpha: defaultAlpha, Beta: defaultBeta, Gamma: defaultGamma}
}

// PredictMS implements §4.11's predict_ms: planner_ms = α·files + β·MiB + γ.
func (p *Predictor) PredictMS(key model.ProfileKey, files int, totalBytes uint64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps, ok := p.state.Profiles[key.String()]
	coeff := defaultCoefficients()
	if ok {
		coeff = ps.Coefficients
	}
	mib := float64(totalBytes) / (1 << 20)
	return coeff.Alpha*float64(files) + coeff.Beta*mib + coeff.Gamma
}

// Observe implements §4.11's gradient-descent update, clamped to
// minCoefficient, incrementing the profile's observation count.
func (p *Predictor) Observe(key model.ProfileKey, files int, totalBytes uint64, observedMS float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key.String()
	ps, ok := p.state.Profiles[k]
	coeff := defaultCoefficients()
	if ok {
		coeff = ps.Coefficients
	}

	mib := float64(totalBytes) / (1 << 20)
	predicted := coeff.Alpha*float64(files) + coeff.Beta*mib + coeff.Gamma
	errTerm := observedMS - predicted

	coeff.Alpha = clamp(coeff.Alpha + learningRate*errTerm*float64(files))
	coeff.Beta = clamp(coeff.Beta + learningRate*errTerm*mib)
	coeff.Gamma = clamp(coeff.Gamma + learningRate*errTerm)

	p.state.Profiles[k] = profileState{Coefficients: coeff, Observations: ps.Observations + 1}
}

func clamp(v float64) float64 {
	if v < minCoefficient {
		return minCoefficient
	}
	return v
}

// Save atomically rewrites the predictor state file while holding an
// exclusive advisory lock on a sibling ".lock" file (the
// write-to-temp-then-rename already makes concurrent readers see either
// the old or new file, never a partial one).
func (p *Predictor) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(p.state, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	lf, err := os.OpenFile(p.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer lf.Close()
	if err := lockExclusive(lf); err != nil {
		return err
	}
	defer unlock(lf)
	tmp, err := os.CreateTemp(dir, ".predictor-*.tmp")
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
	return os.Rename(tmpName, p.path)
}

func statePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "blit", "predictor_state.json"), nil
}

// AppendRecord appends one PerformanceRecord as a line of JSON to the
// history log, under an OS advisory lock (flock) while writing the single
// line, per §5's "writers acquire an OS advisory lock" rule. Returns
// without writing when DisableHistoryEnvVar is set; the orchestrator calls
// it only when perf_history is set.
func AppendRecord(rec model.PerformanceRecord) error {
	if os.Getenv(DisableHistoryEnvVar) != "" {
		return nil
	}
	path, err := historyPath()
	if err != nil {
		return err
	}
	return appendRecordTo(path, rec)
}

func appendRecordTo(path string, rec model.PerformanceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return err
	}
	defer unlock(f)

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

func historyPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "blit", "performance_history.jsonl"), nil
}

// LoadRecentRecords reads up to n most recent PerformanceRecords from the
// history log (readers "may truncate to the newest N records", §6).
func LoadRecentRecords(path string, n int) ([]model.PerformanceRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []model.PerformanceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec model.PerformanceRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		all = append(all, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
