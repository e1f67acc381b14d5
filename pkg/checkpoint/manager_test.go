package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	return NewManager(filepath.Join(t.TempDir(), "data.csv"))
}

func TestManager_Path(t *testing.T) {
	t.Parallel()

	m := NewManager("/srv/data.csv")
	assert.Equal(t, "/srv/data.csv.state.json", m.Path())
	assert.Equal(t, m.Path(), StatePath("/srv/data.csv"))
}

func TestManager_SaveLoad(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	start := time.Date(2021, 6, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, m.Save(RunState{
		StartedAt:   start,
		FinishedAt:  start.Add(90 * time.Second),
		Commits:     10,
		Queued:      600,
		Written:     500,
		NotFound:    80,
		ParseFailed: 20,
	}))

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(statePerm), info.Mode().Perm())

	state, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, StateVersion, state.Version)
	assert.Equal(t, m.Dataset, state.Dataset)
	assert.Equal(t, 500, state.Written)
	assert.Equal(t, 90*time.Second, state.Duration())
	assert.Equal(t, 20, state.Outstanding())
	assert.False(t, state.Interrupted)

	require.NoError(t, m.Validate(state))
}

func TestManager_SaveOverwrites(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	require.NoError(t, m.Save(RunState{Written: 1}))
	require.NoError(t, m.Save(RunState{Written: 2, Interrupted: true, Error: "interrupted"}))

	state, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, state.Written)
	assert.True(t, state.Interrupted)
	assert.Equal(t, "interrupted", state.Error)

	entries, err := os.ReadDir(filepath.Dir(m.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestManager_LoadMissing(t *testing.T) {
	t.Parallel()

	_, err := newTestManager(t).Load()
	require.ErrorIs(t, err, ErrNoState)
}

func TestManager_LoadCorrupt(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0o600))

	_, err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal run state")
}

func TestManager_LoadWrongVersion(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte(`{"version":99}`), 0o600))

	_, err := m.Load()
	require.ErrorIs(t, err, ErrVersion)
}

func TestManager_ValidateMismatch(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte(`{"version":1,"dataset":"/elsewhere.csv"}`), 0o600))

	state, err := m.Load()
	require.NoError(t, err)
	require.ErrorIs(t, m.Validate(state), ErrDatasetMismatch)
}

func TestManager_SaveBadDirectory(t *testing.T) {
	t.Parallel()

	m := NewManager(filepath.Join(t.TempDir(), "missing", "data.csv"))
	require.Error(t, m.Save(RunState{}))
}

func TestRunState_DurationNeverNegative(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.Equal(t, time.Duration(0), RunState{StartedAt: now, FinishedAt: now.Add(-time.Second)}.Duration())
}
