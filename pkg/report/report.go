package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status represents the overall outcome of a processing run
type Status string

const (
	// StatusSuccess indicates only successes were recorded
	StatusSuccess Status = "success"
	// StatusFailed indicates only errors were recorded
	StatusFailed Status = "failed"
	// StatusPartial indicates both successes and errors were recorded
	StatusPartial Status = "partial"
	// StatusEmpty indicates nothing was recorded
	StatusEmpty Status = "empty"
)

// ExitCode returns the appropriate process exit code for the status
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess, StatusEmpty:
		return 0
	case StatusPartial:
		return 1
	case StatusFailed:
		return 2
	default:
		return 2
	}
}

// Entry is one recorded success or error for an identifier.
// Extra carries arbitrary additional fields that round-trip through YAML.
type Entry struct {
	Action  string
	Message string
	Extra   map[string]interface{}
}

// Report is an append-only ledger of per-identifier successes and errors
// for one validation, preparation or upload run.
//
// Report is not safe for concurrent use; callers running workers must
// serialize writes with their own mutex.
type Report struct {
	Title     string
	RunID     string
	StartTime time.Time
	EndTime   *time.Time

	Errors    map[string][]Entry
	Successes map[string][]Entry
}

// New creates an empty report started now
func New(title string) *Report {
	return &Report{
		Title:     title,
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
		Errors:    make(map[string][]Entry),
		Successes: make(map[string][]Entry),
	}
}

// AddError appends an error entry for the identifier
func (r *Report) AddError(identifier, action, message string, extra map[string]interface{}) {
	r.Errors[identifier] = append(r.Errors[identifier], Entry{
		Action:  action,
		Message: message,
		Extra:   extra,
	})
}

// AddSuccess appends a success entry for the identifier
func (r *Report) AddSuccess(identifier, action, message string, extra map[string]interface{}) {
	r.Successes[identifier] = append(r.Successes[identifier], Entry{
		Action:  action,
		Message: message,
		Extra:   extra,
	})
}

// Finish stamps the end time. Calling it again overwrites the timestamp.
func (r *Report) Finish() {
	now := time.Now()
	r.EndTime = &now
}

// Status derives the overall outcome from the recorded entries
func (r *Report) Status() Status {
	hasErrors := countEntries(r.Errors) > 0
	hasSuccesses := countEntries(r.Successes) > 0

	switch {
	case hasSuccesses && !hasErrors:
		return StatusSuccess
	case hasErrors && !hasSuccesses:
		return StatusFailed
	case hasErrors && hasSuccesses:
		return StatusPartial
	default:
		return StatusEmpty
	}
}

// IsSuccess reports whether the run recorded successes and no errors
func (r *Report) IsSuccess() bool { return r.Status() == StatusSuccess }

// IsFailed reports whether the run recorded errors and no successes
func (r *Report) IsFailed() bool { return r.Status() == StatusFailed }

// IsPartial reports whether the run recorded both successes and errors
func (r *Report) IsPartial() bool { return r.Status() == StatusPartial }

// IsEmpty reports whether the run recorded nothing
func (r *Report) IsEmpty() bool { return r.Status() == StatusEmpty }

// ByAction holds the subset of a report's entries matching one action
type ByAction struct {
	Errors    map[string][]Entry
	Successes map[string][]Entry
}

// GetByAction returns all entries recorded under the given action,
// grouped by identifier, without mutating the report.
func (r *Report) GetByAction(action string) ByAction {
	return ByAction{
		Errors:    filterByAction(r.Errors, action),
		Successes: filterByAction(r.Successes, action),
	}
}

// Actions returns the sorted set of distinct action names recorded
func (r *Report) Actions() []string {
	seen := make(map[string]struct{})
	for _, entries := range r.Errors {
		for _, e := range entries {
			if e.Action != "" {
				seen[e.Action] = struct{}{}
			}
		}
	}
	for _, entries := range r.Successes {
		for _, e := range entries {
			if e.Action != "" {
				seen[e.Action] = struct{}{}
			}
		}
	}

	actions := make([]string, 0, len(seen))
	for a := range seen {
		actions = append(actions, a)
	}
	sort.Strings(actions)
	return actions
}

// Extend merges another report's entries into this one and widens the
// time window to cover both runs. Used to fold per-collection reports
// into an aggregate.
func (r *Report) Extend(other *Report) {
	for identifier, entries := range other.Errors {
		r.Errors[identifier] = append(r.Errors[identifier], entries...)
	}
	for identifier, entries := range other.Successes {
		r.Successes[identifier] = append(r.Successes[identifier], entries...)
	}

	if !other.StartTime.IsZero() && other.StartTime.Before(r.StartTime) {
		r.StartTime = other.StartTime
	}
	if other.EndTime != nil && (r.EndTime == nil || other.EndTime.After(*r.EndTime)) {
		end := *other.EndTime
		r.EndTime = &end
	}
}

// Summary returns a human-readable multiline summary of the report
func (r *Report) Summary() string {
	end := "in progress"
	if r.EndTime != nil {
		end = r.EndTime.Format(time.RFC3339)
	}

	out := fmt.Sprintf("Report %q\n  Start: %s\n  End: %s\n  Status: %s\n",
		r.Title, r.StartTime.Format(time.RFC3339), end, r.Status())

	if r.EndTime != nil {
		out += fmt.Sprintf("  Duration: %.2fs\n", r.EndTime.Sub(r.StartTime).Seconds())
	}
	out += fmt.Sprintf("  Successes: %d\n  Errors: %d",
		countEntries(r.Successes), countEntries(r.Errors))

	return out
}

func countEntries(m map[string][]Entry) int {
	total := 0
	for _, entries := range m {
		total += len(entries)
	}
	return total
}

func filterByAction(m map[string][]Entry, action string) map[string][]Entry {
	filtered := make(map[string][]Entry)
	for identifier, entries := range m {
		for _, e := range entries {
			if e.Action == action {
				filtered[identifier] = append(filtered[identifier], e)
			}
		}
	}
	return filtered
}
