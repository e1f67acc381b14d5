package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".buildload"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for buildload settings.
const envPrefix = "BUILDLOAD"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// A missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("commits.url", DefaultCommitsURL)
	viperCfg.SetDefault("commits.timeout", DefaultCommitsTimeout)

	viperCfg.SetDefault("artifacts.base_url", DefaultArtifactsBaseURL)
	viperCfg.SetDefault("artifacts.alt_suffix", DefaultArtifactsAltSuffix)

	viperCfg.SetDefault("fetch.max_inflight", DefaultFetchMaxInflight)
	viperCfg.SetDefault("fetch.request_timeout", DefaultFetchRequestTimeout)
	viperCfg.SetDefault("fetch.max_body_size", DefaultFetchMaxBodySize)

	viperCfg.SetDefault("dataset.path", DefaultDatasetPath)
	viperCfg.SetDefault("dataset.reset_corrupt", DefaultDatasetResetCorrupt)

	viperCfg.SetDefault("resume.early_stop", DefaultResumeEarlyStop)

	viperCfg.SetDefault("pipeline.progress_every", DefaultPipelineProgressEvery)

	viperCfg.SetDefault("logging.level", DefaultLoggingLevel)
	viperCfg.SetDefault("logging.json", DefaultLoggingJSON)

	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", DefaultTelemetryOTLPInsecure)
	viperCfg.SetDefault("telemetry.prometheus_textfile", "")

	viperCfg.SetDefault("report.top", DefaultReportTop)
	viperCfg.SetDefault("report.window", DefaultReportWindow)
	viperCfg.SetDefault("report.smooth", DefaultReportSmooth)
	viperCfg.SetDefault("report.format", DefaultReportFormat)
}
