package commits_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/buildload/pkg/commits"
)

func TestClient_List(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"sha":"c3","time":"2021-06-03T00:00:00Z"},{"sha":"c2","time":"2021-06-02T00:00:00Z"}]`))
	}))
	defer srv.Close()

	client := commits.NewClient(srv.URL, time.Second)

	list, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "c3", list[0].SHA)
	assert.Equal(t, "2021-06-02T00:00:00Z", list[1].Time)
	assert.Equal(t, srv.URL, client.URL())
}

func TestClient_List_BadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := commits.NewClient(srv.URL, time.Second).List(context.Background())
	require.ErrorIs(t, err, commits.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_List_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := commits.NewClient(url, time.Second).List(context.Background())
	require.ErrorIs(t, err, commits.ErrSourceUnavailable)
}

func TestNewClient_DefaultURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, commits.DefaultURL, commits.NewClient("", 0).URL())
}

func TestDecode_SchemaViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "not_json", payload: `<html>`},
		{name: "object", payload: `{"sha":"abc"}`},
		{name: "missing_time", payload: `[{"sha":"abc"}]`},
		{name: "empty_sha", payload: `[{"sha":"","time":"t"}]`},
		{name: "numeric_sha", payload: `[{"sha":1,"time":"t"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := commits.Decode([]byte(tt.payload))
			require.ErrorIs(t, err, commits.ErrSourceUnavailable)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	t.Parallel()

	list, err := commits.Decode([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "rfc3339", raw: "2021-06-01T12:30:00Z"},
		{name: "offset", raw: "2021-06-01T14:30:00+02:00"},
		{name: "zone_less", raw: "2021-06-01T12:30:00"},
		{name: "space_separator", raw: "2021-06-01 12:30:00"},
		{name: "fraction", raw: "2021-06-01T12:30:00.250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts, err := commits.ParseTime(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, 12, ts.Hour())
			assert.Equal(t, 30, ts.Minute())
		})
	}
}

func TestParseTime_Invalid(t *testing.T) {
	t.Parallel()

	_, err := commits.ParseTime("last tuesday")
	require.Error(t, err)
}
