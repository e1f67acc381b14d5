package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/buildload/pkg/checkpoint"
	"github.com/Sumatoshi-tech/buildload/pkg/commits"
	"github.com/Sumatoshi-tech/buildload/pkg/dataset"
)

const commitList = `[{"sha":"c2","time":"2021-06-02T00:00:00Z"},{"sha":"c1","time":"2021-06-01T00:00:00Z"}]`

const cpuSeries = "2021-06-01T10:00:00,20\n2021-06-01T11:00:00,40\n"

// newUpstream serves the commit list at /commits and one CPU series per
// commit for aarch64-gnu; every other artifact is missing.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/commits", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(commitList))
	})
	mux.HandleFunc("/rustc-builds/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/cpu-aarch64-gnu.csv") {
			http.NotFound(w, r)

			return
		}

		_, _ = w.Write([]byte(cpuSeries))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

type fixture struct {
	dir     string
	config  string
	dataset string
}

func newFixture(t *testing.T, upstream string) fixture {
	t.Helper()

	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		config:  filepath.Join(dir, "buildload.yaml"),
		dataset: filepath.Join(dir, "data.csv"),
	}

	content := fmt.Sprintf(`commits:
  url: %q
artifacts:
  base_url: %q
fetch:
  max_inflight: 8
dataset:
  path: %q
logging:
  level: error
`, upstream+"/commits", upstream, f.dataset)

	require.NoError(t, os.WriteFile(f.config, []byte(content), 0o600))

	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()

	var out bytes.Buffer

	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

func TestCollect_DefaultCommandWritesDataset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)

	out, err := execute(t, "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows written")

	rows, err := dataset.ReadSummaries(f.dataset, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, row := range rows {
		assert.Equal(t, "aarch64-gnu", row.Builder)
		assert.Equal(t, int64(3600), row.DurationSeconds)
		assert.InDelta(t, 70.0, row.AvgCPUUsage, 1e-9)
	}

	state, err := checkpoint.NewManager(f.dataset).Load()
	require.NoError(t, err)
	assert.Equal(t, 2, state.Commits)
	assert.Equal(t, 2, state.Written)
	assert.Equal(t, state.Queued-2, state.NotFound)
	assert.False(t, state.Interrupted)
	assert.Empty(t, state.Error)
}

func TestCollect_SecondRunAddsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)

	_, err := execute(t, "collect", "--config", f.config)
	require.NoError(t, err)

	out, err := execute(t, "collect", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "0 rows written")

	resume, err := dataset.Load(f.dataset)
	require.NoError(t, err)
	assert.Equal(t, 2, resume.Rows())
}

func TestCollect_DatasetFlagOverridesConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)
	other := filepath.Join(f.dir, "other.csv")

	_, err := execute(t, "collect", "--config", f.config, "--dataset", other, "--max-inflight", "2")
	require.NoError(t, err)

	assert.FileExists(t, other)
	assert.NoFileExists(t, f.dataset)
}

func TestCollect_CorruptDataset(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)
	require.NoError(t, os.WriteFile(f.dataset, []byte("c1,t,\"oops\n"), 0o600))

	_, err := execute(t, "collect", "--config", f.config)
	require.ErrorIs(t, err, dataset.ErrCorrupt)

	_, err = execute(t, "collect", "--config", f.config, "--reset-corrupt")
	require.NoError(t, err)

	rows, err := dataset.ReadSummaries(f.dataset, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCollect_CommitListUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f := newFixture(t, srv.URL)

	_, err := execute(t, "collect", "--config", f.config)
	require.ErrorIs(t, err, commits.ErrSourceUnavailable)
	assert.NoFileExists(t, f.dataset)
	assert.NoFileExists(t, checkpoint.StatePath(f.dataset))
}

func TestCollect_InvalidOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "http://127.0.0.1:1")

	_, err := execute(t, "collect", "--config", f.config, "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestReport_JSON(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)

	_, err := execute(t, "collect", "--config", f.config)
	require.NoError(t, err)

	out, err := execute(t, "report", "--config", f.config, "--format", "json", "--top", "1")
	require.NoError(t, err)

	var decoded struct {
		Rows     int `json:"rows"`
		Selected []struct {
			Name        string  `json:"name"`
			MedianHours float64 `json:"median_hours"`
		} `json:"selected"`
	}

	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 2, decoded.Rows)
	require.Len(t, decoded.Selected, 1)
	assert.Equal(t, "aarch64-gnu", decoded.Selected[0].Name)
	assert.InDelta(t, 1.0, decoded.Selected[0].MedianHours, 1e-9)
}

func TestReport_OutputFile(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)
	target := filepath.Join(f.dir, "walltime.html")

	_, err := execute(t, "collect", "--config", f.config)
	require.NoError(t, err)

	out, err := execute(t, "report", "--config", f.config, "-f", "html", "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	html, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(html), "CPU usage")
}

func TestReport_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "http://127.0.0.1:1")

	_, err := execute(t, "report", "--config", f.config, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)

	out, err := execute(t, "status", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "none recorded")

	_, err = execute(t, "collect", "--config", f.config)
	require.NoError(t, err)

	out, err = execute(t, "status", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "Written")
	assert.Contains(t, out, f.dataset)
}

func TestStatus_ForeignRunState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newUpstream(t).URL)

	require.NoError(t, checkpoint.NewManager(filepath.Join(f.dir, "other.csv")).Save(checkpoint.RunState{Written: 3}))
	require.NoError(t, os.Rename(checkpoint.StatePath(filepath.Join(f.dir, "other.csv")), checkpoint.StatePath(f.dataset)))

	out, err := execute(t, "status", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Warning")
	assert.Contains(t, out, checkpoint.ErrDatasetMismatch.Error())
	assert.Contains(t, out, "other.csv")
}

func TestWriteStatus_NoWarningForOwnState(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	writeStatus(&out, "data.csv", dataset.NewResumeSet(), &checkpoint.RunState{Dataset: "data.csv"}, nil)
	assert.NotContains(t, out.String(), "Warning")
	assert.Contains(t, out.String(), "Outcome")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "buildload "))
}

func TestRoot_RejectsArguments(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "stray")
	require.Error(t, err)
}
