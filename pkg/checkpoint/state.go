// Package checkpoint records the outcome of each collect run in a JSON
// sidecar next to the dataset.
package checkpoint

import "time"

// RunState is the sidecar content.
type RunState struct {
	Version     int       `json:"version"`
	Binary      string    `json:"binary,omitempty"`
	Dataset     string    `json:"dataset"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Commits     int       `json:"commits"`
	Queued      int       `json:"queued"`
	Written     int       `json:"written"`
	NotFound    int       `json:"not_found"`
	FetchFailed int       `json:"fetch_failed"`
	ParseFailed int       `json:"parse_failed"`
	Interrupted bool      `json:"interrupted"`
	Error       string    `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (s RunState) Duration() time.Duration {
	if s.FinishedAt.Before(s.StartedAt) {
		return 0
	}

	return s.FinishedAt.Sub(s.StartedAt)
}

// Outstanding is the number of queued keys left for the next run.
func (s RunState) Outstanding() int {
	return s.Queued - s.Written - s.NotFound
}
