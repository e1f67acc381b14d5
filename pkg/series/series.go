// Package series parses CPU-utilization series published by CI builders and
// reduces them to a duration and an average load.
//
// A series is a comma-separated table of (timestamp, busy-percent) rows in
// chronological order. Timestamps carry no zone and are interpreted as UTC.
// The load of a sample is 100 minus its busy-percent column; the summary is
// the mean load over all samples and the whole-second span between the first
// and the last sample.
package series

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sentinel parse errors.
var (
	// ErrEmptySeries means the series had no parsable rows.
	ErrEmptySeries = errors.New("empty series")
	// ErrMalformedRow means a row could not be parsed.
	ErrMalformedRow = errors.New("malformed row")
	// ErrNonFinite means a busy-percent column held NaN or an infinity.
	ErrNonFinite = errors.New("not a finite number")
)

// Column layout of a series row.
const (
	colTimestamp = 0
	colPercent   = 1
	minColumns   = 2
)

// fullScale is the percentage that a fully loaded sample reaches.
const fullScale = 100.0

// utcMarker is appended to zone-less timestamps before RFC3339 parsing.
const utcMarker = "Z"

// MalformedRowError describes a row that could not be parsed.
type MalformedRowError struct {
	Line  int
	Field string
	Value string
	Err   error
}

// Error implements error.
func (e *MalformedRowError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: line %d: %s: %v", ErrMalformedRow, e.Line, e.Field, e.Err)
	}

	return fmt.Sprintf("%s: line %d: %s %q: %v", ErrMalformedRow, e.Line, e.Field, e.Value, e.Err)
}

// Is makes errors.Is(err, ErrMalformedRow) match.
func (e *MalformedRowError) Is(target error) bool {
	return target == ErrMalformedRow
}

// Unwrap returns the underlying cause.
func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// Sample is one row of a series.
type Sample struct {
	At          time.Time
	BusyPercent float64
}

// Load returns the non-idle share of the sample.
func (s Sample) Load() float64 {
	return fullScale - s.BusyPercent
}

// Result is the reduced form of a series.
type Result struct {
	// Duration is the span between the first and last sample, truncated to whole seconds.
	Duration time.Duration
	// AvgLoad is the mean load at full precision.
	AvgLoad float64
	// Samples is the number of rows that contributed.
	Samples int
}

// DurationSeconds returns the duration as an integer count of seconds.
func (r Result) DurationSeconds() int64 {
	return int64(r.Duration / time.Second)
}

// ParseTimestamp parses a zone-less series timestamp as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw)+utcMarker)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}

	return ts, nil
}

// Parse reads every sample from r.
//
// The first record is skipped when neither of its columns parses, which
// tolerates a header line. Every other unparsable row fails the parse.
func Parse(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	var samples []Sample

	for index := 0; ; index++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, &MalformedRowError{Line: errorLine(err), Field: "record", Err: err}
		}

		line, _ := reader.FieldPos(colTimestamp)

		sample, rowErr := parseRecord(line, record)
		if rowErr != nil {
			if index == 0 && isHeader(record) {
				continue
			}

			return nil, rowErr
		}

		samples = append(samples, sample)
	}

	return samples, nil
}

func errorLine(err error) int {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Line
	}

	return 0
}

func parseRecord(line int, record []string) (Sample, error) {
	if len(record) < minColumns {
		return Sample{}, &MalformedRowError{
			Line:  line,
			Field: "record",
			Err:   fmt.Errorf("want %d columns, got %d", minColumns, len(record)),
		}
	}

	at, err := ParseTimestamp(record[colTimestamp])
	if err != nil {
		return Sample{}, &MalformedRowError{Line: line, Field: "timestamp", Value: record[colTimestamp], Err: err}
	}

	percent, err := strconv.ParseFloat(strings.TrimSpace(record[colPercent]), 64)
	if err != nil {
		return Sample{}, &MalformedRowError{Line: line, Field: "percent", Value: record[colPercent], Err: err}
	}

	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return Sample{}, &MalformedRowError{Line: line, Field: "percent", Value: record[colPercent], Err: ErrNonFinite}
	}

	return Sample{At: at, BusyPercent: percent}, nil
}

func isHeader(record []string) bool {
	if len(record) < minColumns {
		return false
	}

	_, tsErr := ParseTimestamp(record[colTimestamp])
	_, numErr := strconv.ParseFloat(strings.TrimSpace(record[colPercent]), 64)

	return tsErr != nil && numErr != nil
}

// Reduce folds samples into a Result. Samples are taken in the given order.
func Reduce(samples []Sample) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrEmptySeries
	}

	first, last := samples[0].At, samples[len(samples)-1].At
	if last.Before(first) {
		return Result{}, &MalformedRowError{
			Line:  len(samples),
			Field: "timestamp",
			Value: last.Format(time.RFC3339),
			Err:   fmt.Errorf("series ends before it starts at %s", first.Format(time.RFC3339)),
		}
	}

	var total float64

	for _, s := range samples {
		total += s.Load()
	}

	return Result{
		Duration: last.Sub(first).Truncate(time.Second),
		AvgLoad:  total / float64(len(samples)),
		Samples:  len(samples),
	}, nil
}

// Summarize parses and reduces the series read from r.
func Summarize(r io.Reader) (Result, error) {
	samples, err := Parse(r)
	if err != nil {
		return Result{}, err
	}

	return Reduce(samples)
}

// SummarizeBytes is Summarize over an in-memory payload.
func SummarizeBytes(payload []byte) (Result, error) {
	return Summarize(bytes.NewReader(payload))
}

// FormatLoad renders an average load with four decimal digits.
func FormatLoad(avg float64) string {
	if math.IsNaN(avg) || math.IsInf(avg, 0) {
		return strconv.FormatFloat(avg, 'f', -1, 64)
	}

	return strconv.FormatFloat(avg, 'f', 4, 64)
}
