// Package work enumerates the outstanding (commit, builder) units of work.
package work

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/buildload/pkg/builders"
	"github.com/Sumatoshi-tech/buildload/pkg/commits"
)

// Key identifies one unit of work and one dataset row.
type Key struct {
	Commit  commits.Commit
	Builder builders.Name
}

// SHA returns the commit hash of the key.
func (k Key) SHA() string { return k.Commit.SHA }

// String implements fmt.Stringer.
func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.Builder, k.Commit.SHA)
}

// Resume answers which work is already complete.
type Resume interface {
	// Has reports whether the exact (commit, builder) pair is complete.
	Has(sha string, builder builders.Name) bool
	// HasCommit reports whether any row exists for the commit.
	HasCommit(sha string) bool
}

// Strategy turns a commit list into outstanding keys.
type Strategy interface {
	Enumerate(list []commits.Commit, catalog []builders.Name, resume Resume) []Key
}

// PerBuilder is the fine-grained strategy: every (commit, builder) pair not
// yet in the resume set is emitted, commits in input order, builders in
// catalog order.
//
// With EarlyStop set, scanning ends at the first commit that yields no keys.
// This relies on the commit list being newest-first so that fully collected
// commits form a contiguous tail. The assumption is checked before use: when
// any commit time fails to parse or a commit is newer than its predecessor,
// the whole list is scanned instead.
type PerBuilder struct {
	EarlyStop bool
	Logger    *slog.Logger
}

// Enumerate implements Strategy.
func (s PerBuilder) Enumerate(list []commits.Commit, catalog []builders.Name, resume Resume) []Key {
	earlyStop := s.EarlyStop
	if earlyStop {
		if err := CheckNewestFirst(list); err != nil {
			s.logger().Warn("commit order not verifiable, scanning every commit", "error", err)

			earlyStop = false
		}
	}

	var keys []Key

	for i, commit := range list {
		added := 0

		for _, builder := range catalog {
			if resume.Has(commit.SHA, builder) {
				continue
			}

			keys = append(keys, Key{Commit: commit, Builder: builder})
			added++
		}

		if added == 0 && earlyStop {
			s.logger().Debug("reached collected commit, stopping scan",
				"commit", commit.SHA, "scanned", i+1, "total", len(list))

			break
		}
	}

	return keys
}

func (s PerBuilder) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}

	return s.Logger
}

// PerCommit is the historical coarse strategy: a commit with any row is
// skipped entirely, every other commit gets every builder. There is no early
// termination. It predates per-builder resume and is kept for comparison.
type PerCommit struct{}

// Enumerate implements Strategy.
func (PerCommit) Enumerate(list []commits.Commit, catalog []builders.Name, resume Resume) []Key {
	var keys []Key

	for _, commit := range list {
		if resume.HasCommit(commit.SHA) {
			continue
		}

		for _, builder := range catalog {
			keys = append(keys, Key{Commit: commit, Builder: builder})
		}
	}

	return keys
}

// CheckNewestFirst returns an error unless every commit time parses and the
// times never increase along the list.
func CheckNewestFirst(list []commits.Commit) error {
	var prev time.Time

	for i, commit := range list {
		ts, err := commit.Timestamp()
		if err != nil {
			return fmt.Errorf("commit %s: %w", commit.SHA, err)
		}

		if i > 0 && ts.After(prev) {
			return fmt.Errorf("commit %s (%s) is newer than its predecessor %s (%s)",
				commit.SHA, commit.Time, list[i-1].SHA, list[i-1].Time)
		}

		prev = ts
	}

	return nil
}
