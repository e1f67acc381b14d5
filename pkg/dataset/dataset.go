// Package dataset owns the append-only CSV of per-builder summaries: loading
// it into a resume set at startup and appending rows during a run.
//
// Row layout, no header:
//
//	commit_sha,commit_time,builder_name,duration_seconds,avg_cpu_usage
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Sumatoshi-tech/buildload/pkg/builders"
	"github.com/Sumatoshi-tech/buildload/pkg/series"
	"github.com/Sumatoshi-tech/buildload/pkg/work"
)

// ErrCorrupt is returned when an existing dataset cannot be read as CSV.
var ErrCorrupt = errors.New("dataset corrupt")

// ErrMalformedRecord is returned by ParseRecord for rows that do not carry
// all five columns in their expected types.
var ErrMalformedRecord = errors.New("malformed dataset record")

const (
	colSHA = iota
	colTime
	colBuilder
	colDuration
	colAvg

	recordWidth
)

// keyColumns is the minimum width of a row that contributes to resume state.
const keyColumns = colBuilder + 1

// filePerm matches what a plain `touch data.csv` would produce.
const filePerm = 0o644

// Summary is one dataset row.
type Summary struct {
	CommitSHA       string
	CommitTime      string
	Builder         string
	DurationSeconds int64
	AvgCPUUsage     float64
}

// NewSummary builds the row for a reduced series.
func NewSummary(key work.Key, res series.Result) Summary {
	return Summary{
		CommitSHA:       key.Commit.SHA,
		CommitTime:      key.Commit.Time,
		Builder:         key.Builder.String(),
		DurationSeconds: res.DurationSeconds(),
		AvgCPUUsage:     res.AvgLoad,
	}
}

// Record renders the row. The average is rounded to four decimals here and
// nowhere else.
func (s Summary) Record() []string {
	return []string{
		s.CommitSHA,
		s.CommitTime,
		s.Builder,
		strconv.FormatInt(s.DurationSeconds, 10),
		series.FormatLoad(s.AvgCPUUsage),
	}
}

// ParseRecord reads a full dataset row back.
func ParseRecord(record []string) (Summary, error) {
	if len(record) < recordWidth {
		return Summary{}, fmt.Errorf("%w: %d fields, want %d", ErrMalformedRecord, len(record), recordWidth)
	}

	duration, err := strconv.ParseInt(record[colDuration], 10, 64)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: duration %q: %w", ErrMalformedRecord, record[colDuration], err)
	}

	avg, err := strconv.ParseFloat(record[colAvg], 64)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: avg %q: %w", ErrMalformedRecord, record[colAvg], err)
	}

	return Summary{
		CommitSHA:       record[colSHA],
		CommitTime:      record[colTime],
		Builder:         record[colBuilder],
		DurationSeconds: duration,
		AvgCPUUsage:     avg,
	}, nil
}

// ResumeSet is the set of (commit, builder) pairs already persisted, plus the
// derived set of commits with at least one row. Read-only once loaded.
type ResumeSet struct {
	pairs map[string]map[builders.Name]struct{}
	keys  int
	rows  int
}

// NewResumeSet returns an empty set.
func NewResumeSet() *ResumeSet {
	return &ResumeSet{pairs: make(map[string]map[builders.Name]struct{})}
}

func (r *ResumeSet) add(sha string, builder builders.Name) {
	r.rows++

	byBuilder, ok := r.pairs[sha]
	if !ok {
		byBuilder = make(map[builders.Name]struct{})
		r.pairs[sha] = byBuilder
	}

	if _, dup := byBuilder[builder]; !dup {
		byBuilder[builder] = struct{}{}
		r.keys++
	}
}

// Has reports whether the exact pair is persisted.
func (r *ResumeSet) Has(sha string, builder builders.Name) bool {
	_, ok := r.pairs[sha][builder]

	return ok
}

// HasCommit reports whether any row exists for sha.
func (r *ResumeSet) HasCommit(sha string) bool {
	_, ok := r.pairs[sha]

	return ok
}

// Len returns the number of distinct pairs.
func (r *ResumeSet) Len() int { return r.keys }

// Rows returns the number of rows read, duplicates included.
func (r *ResumeSet) Rows() int { return r.rows }

// Commits returns the number of distinct commits.
func (r *ResumeSet) Commits() int { return len(r.pairs) }

// Load reads the dataset at path into a resume set. A missing file yields an
// empty set. Every record with at least three fields contributes its
// (col0, col2) pair, the first record included.
func Load(path string) (*ResumeSet, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewResumeSet(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCorrupt, path, err)
	}
	defer file.Close()

	set, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return set, nil
}

// Read builds a resume set from CSV content.
func Read(r io.Reader) (*ResumeSet, error) {
	set := NewResumeSet()

	err := scan(r, func(_ int, record []string) {
		if len(record) >= keyColumns {
			set.add(record[colSHA], builders.Name(record[colBuilder]))
		}
	})
	if err != nil {
		return nil, err
	}

	return set, nil
}

// ReadSummaries parses every row of the dataset at path. Rows that fail
// ParseRecord are passed to skip with their 1-based line and are otherwise
// ignored; skip may be nil. A missing file yields no rows.
func ReadSummaries(path string, skip func(line int, err error)) ([]Summary, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrCorrupt, path, err)
	}
	defer file.Close()

	var rows []Summary

	err = scan(file, func(line int, record []string) {
		row, parseErr := ParseRecord(record)
		if parseErr != nil {
			if skip != nil {
				skip(line, parseErr)
			}

			return
		}

		rows = append(rows, row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return rows, nil
}

func scan(r io.Reader, fn func(line int, record []string)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}

		line, _ := reader.FieldPos(0)
		fn(line, record)
	}
}

// Store appends rows to the dataset file. It has a single writer and no
// internal locking.
type Store struct {
	path     string
	file     *os.File
	writer   *csv.Writer
	appended int
}

// Open prepares path for appending. When resume holds no pairs, any existing
// content is discarded first so a corrupt or empty file starts clean. A kept
// file whose last row is unterminated gets a newline before the first append.
func Open(path string, resume *ResumeSet) (*Store, error) {
	flags := os.O_CREATE | os.O_APPEND | os.O_RDWR
	if resume == nil || resume.Len() == 0 {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, filePerm)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}

	err = terminate(file)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open dataset %s: %w", path, err), file.Close())
	}

	return &Store{path: path, file: file, writer: csv.NewWriter(file)}, nil
}

func terminate(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}

	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)

	_, err = file.ReadAt(last, info.Size()-1)
	if err != nil {
		return err
	}

	if last[0] == '\n' {
		return nil
	}

	_, err = file.Write([]byte{'\n'})

	return err
}

// Append writes one row and flushes it to the file immediately, so a
// concurrent reader sees every acknowledged row.
func (s *Store) Append(row Summary) error {
	err := s.writer.Write(row.Record())
	if err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}

	s.writer.Flush()

	err = s.writer.Error()
	if err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}

	s.appended++

	return nil
}

// Appended returns the number of rows written through this store.
func (s *Store) Appended() int { return s.appended }

// Path returns the dataset path.
func (s *Store) Path() string { return s.path }

// Close flushes, syncs and closes the file.
func (s *Store) Close() error {
	s.writer.Flush()

	return errors.Join(s.writer.Error(), s.file.Sync(), s.file.Close())
}
