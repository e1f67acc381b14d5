package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StateVersion is the current sidecar format version.
const StateVersion = 1

// stateSuffix is appended to the dataset path to name the sidecar.
const stateSuffix = ".state.json"

// statePerm is the sidecar file mode.
const statePerm = 0o600

// Sentinel errors.
var (
	ErrNoState         = errors.New("no run state recorded")
	ErrDatasetMismatch = errors.New("run state belongs to another dataset")
	ErrVersion         = errors.New("unsupported run state version")
)

// StatePath returns the sidecar path for a dataset.
func StatePath(datasetPath string) string {
	return datasetPath + stateSuffix
}

// Manager reads and writes the sidecar of one dataset.
type Manager struct {
	Dataset string
}

// NewManager creates a manager for datasetPath.
func NewManager(datasetPath string) *Manager {
	return &Manager{Dataset: datasetPath}
}

// Path returns the sidecar location.
func (m *Manager) Path() string {
	return StatePath(m.Dataset)
}

// Save writes state atomically: a temp file in the same directory is renamed
// over the sidecar, so readers never see a partial document.
func (m *Manager) Save(state RunState) error {
	state.Version = StateVersion
	state.Dataset = m.Dataset

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.Path()), filepath.Base(m.Path())+".*")
	if err != nil {
		return fmt.Errorf("create run state: %w", err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(append(data, '\n'))
	closeErr := tmp.Close()

	err = errors.Join(writeErr, closeErr)
	if err == nil {
		err = os.Chmod(tmpName, statePerm)
	}

	if err == nil {
		err = os.Rename(tmpName, m.Path())
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("write run state: %w", err)
	}

	return nil
}

// Load reads the sidecar. A missing sidecar returns ErrNoState.
func (m *Manager) Load() (*RunState, error) {
	data, err := os.ReadFile(m.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoState
	}

	if err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}

	var state RunState

	err = json.Unmarshal(data, &state)
	if err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}

	if state.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, state.Version)
	}

	return &state, nil
}

// Validate checks that state was written for this manager's dataset.
func (m *Manager) Validate(state *RunState) error {
	if state.Dataset != m.Dataset {
		return fmt.Errorf("%w: state has %q, got %q", ErrDatasetMismatch, state.Dataset, m.Dataset)
	}

	return nil
}
