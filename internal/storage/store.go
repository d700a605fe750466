package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/MaxBertus/safe-mpc/internal/sim"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Controller string             `json:"controller"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Horizon    int                `json:"horizon"`
	Alpha      float64            `json:"alpha"`
	Fails      int                `json:"fails"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Save persists one closed-loop run: metadata as JSON plus the state and
// control histories as CSV. It returns the generated run ID.
func (s *Store) Save(modelName, controller string, dt float64, horizon int, alpha float64, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("%s_%s_%d", modelName, controller, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Model:      modelName,
		Controller: controller,
		Timestamp:  time.Now(),
		Dt:         dt,
		Horizon:    horizon,
		Alpha:      alpha,
		Fails:      result.Fails,
		Metrics:    result.Metrics,
	}

	metaPath := filepath.Join(runDir, "metadata.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if err := s.writeStates(runDir, result); err != nil {
		return "", err
	}
	return runID, nil
}

func (s *Store) writeStates(runDir string, result *sim.Result) error {
	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if len(result.States) == 0 {
		return nil
	}

	header := []string{"time"}
	for i := range result.States[0] {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	numControls := 0
	if len(result.Controls) > 0 {
		numControls = len(result.Controls[0])
		for i := 0; i < numControls; i++ {
			header = append(header, fmt.Sprintf("u%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range result.States {
		row := []string{strconv.FormatFloat(result.Times[i], 'f', 6, 64)}
		for _, val := range result.States[i] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if i < len(result.Controls) {
			for _, val := range result.Controls[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for j := 0; j < numControls; j++ {
				row = append(row, "0")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadStates reads back the persisted state history, one row per step,
// without the control columns.
func (s *Store) LoadStates(runID string, nx int) ([][]float64, []float64, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("storage: run %s has no samples", runID)
	}

	states := make([][]float64, 0, len(rows)-1)
	times := make([]float64, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 1+nx {
			return nil, nil, fmt.Errorf("storage: run %s has short rows", runID)
		}
		tv, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, nil, err
		}
		x := make([]float64, nx)
		for i := 0; i < nx; i++ {
			if x[i], err = strconv.ParseFloat(row[1+i], 64); err != nil {
				return nil, nil, err
			}
		}
		times = append(times, tv)
		states = append(states, x)
	}
	return states, times, nil
}
