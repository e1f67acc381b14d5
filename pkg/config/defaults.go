package config

import (
	"github.com/Sumatoshi-tech/buildload/pkg/builders"
	"github.com/Sumatoshi-tech/buildload/pkg/commits"
	"github.com/Sumatoshi-tech/buildload/pkg/fetch"
	"github.com/Sumatoshi-tech/buildload/pkg/pipeline"
)

// Commit list defaults.
const (
	DefaultCommitsURL     = commits.DefaultURL
	DefaultCommitsTimeout = commits.DefaultTimeout
)

// Artifact defaults.
const (
	DefaultArtifactsBaseURL   = fetch.DefaultBaseURL
	DefaultArtifactsAltSuffix = builders.AltSuffix
)

// Fetch defaults.
const (
	DefaultFetchMaxInflight    = fetch.DefaultMaxInflight
	DefaultFetchRequestTimeout = fetch.DefaultRequestTimeout
	DefaultFetchMaxBodySize    = "32MB"
)

// Dataset defaults.
const (
	DefaultDatasetPath         = "data.csv"
	DefaultDatasetResetCorrupt = false
)

// Resume, pipeline and logging defaults.
const (
	DefaultResumeEarlyStop       = true
	DefaultPipelineProgressEvery = pipeline.DefaultProgressEvery
	DefaultLoggingLevel          = "info"
	DefaultLoggingJSON           = false
	DefaultTelemetryOTLPInsecure = false
)

// Report defaults, matching the walltime analysis: top five builders by
// median over the last 32 commits, smoothed over 16 points.
const (
	DefaultReportTop    = 5
	DefaultReportWindow = 32
	DefaultReportSmooth = 16
	DefaultReportFormat = "table"
)
