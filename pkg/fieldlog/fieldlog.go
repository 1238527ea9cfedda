// Package fieldlog parses the per-collection field notes log that
// records each deployment's expected activity window.
package fieldlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

// dateTimeLayout is the combined date+time format used by the log
const dateTimeLayout = "2006:01:02 15:04:05"

// requiredColumns must each appear exactly once in the header
var requiredColumns = []string{"Deployment", "StartDate", "StartTime", "EndDate", "EndTime"}

// Entry is one deployment's expected time window from the field notes
type Entry struct {
	Deployment    string
	ExpectedStart time.Time
	ExpectedEnd   time.Time
}

// LogName returns the conventional log filename for a collection
func LogName(collection string) string {
	return collection + "_FileTimestampLog.csv"
}

// ParseFile reads and validates a field notes log file. Any structural
// problem rejects the entire log: validation must not proceed on a
// partially trusted window table.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open field notes log: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("invalid field notes log %s: %w", path, err)
	}
	return entries, nil
}

// Parse reads and validates field notes log records from a reader
func Parse(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("log file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	seen := make(map[string]bool)
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		name := record[index["Deployment"]]
		if name == "" {
			return nil, fmt.Errorf("line %d: missing deployment name", line)
		}
		if seen[name] {
			return nil, fmt.Errorf("line %d: duplicate deployment name %q", line, name)
		}
		seen[name] = true

		start, err := parseDateTime(record[index["StartDate"]], record[index["StartTime"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: deployment %q: invalid start: %w", line, name, err)
		}
		end, err := parseDateTime(record[index["EndDate"]], record[index["EndTime"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: deployment %q: invalid end: %w", line, name, err)
		}

		if !start.Before(end) {
			return nil, fmt.Errorf("line %d: deployment %q: expected start %s is not before expected end %s",
				line, name, start.Format(dateTimeLayout), end.Format(dateTimeLayout))
		}

		entries = append(entries, Entry{
			Deployment:    name,
			ExpectedStart: start,
			ExpectedEnd:   end,
		})
	}

	return entries, nil
}

// columnIndex maps required columns to their positions, rejecting
// headers with missing or duplicated columns.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(requiredColumns))
	for i, col := range header {
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("duplicate column %q in header", col)
		}
		index[col] = i
	}

	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing required column %q in header", col)
		}
	}
	return index, nil
}

func parseDateTime(date, clock string) (time.Time, error) {
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("missing date or time value")
	}
	t, err := time.Parse(dateTimeLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable value %q: %w", date+" "+clock, err)
	}
	return t, nil
}
