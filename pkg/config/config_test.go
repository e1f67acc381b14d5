package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/buildload/pkg/config"
	"github.com/Sumatoshi-tech/buildload/pkg/observability"
)

func TestObservabilityConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, `logging:
  level: debug
  json: true
telemetry:
  environment: ci
  otlp_endpoint: "collector:4317"
  otlp_headers: "x-team=infra"
  prometheus_textfile: "/tmp/buildload.prom"
`))
	require.NoError(t, err)

	obs := cfg.ObservabilityConfig(observability.ModeCollect, "1.2.3")

	assert.Equal(t, "buildload", obs.ServiceName)
	assert.Equal(t, "1.2.3", obs.ServiceVersion)
	assert.Equal(t, "ci", obs.Environment)
	assert.Equal(t, observability.ModeCollect, obs.Mode)
	assert.Equal(t, slog.LevelDebug, obs.LogLevel)
	assert.True(t, obs.LogJSON)
	assert.Equal(t, "collector:4317", obs.OTLPEndpoint)
	assert.Equal(t, map[string]string{"x-team": "infra"}, obs.OTLPHeaders)
	assert.Equal(t, "/tmp/buildload.prom", obs.PrometheusTextfile)

	report := cfg.ObservabilityConfig(observability.ModeReport, "")
	assert.Empty(t, report.PrometheusTextfile, "only collect runs write the textfile")
}

func TestFetchConfig_MaxBodyBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "32MB", want: 32_000_000},
		{raw: "1KiB", want: 1024},
		{raw: "512", want: 512},
		{raw: "0", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "big", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			got, err := config.FetchConfig{MaxBodySize: tt.raw}.MaxBodyBytes()
			if tt.wantErr {
				require.ErrorIs(t, err, config.ErrInvalidBodySize)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
