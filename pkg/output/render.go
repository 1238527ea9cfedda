package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
)

// WriteReport renders a finished report to w in the requested format
func WriteReport(r *report.Report, w io.Writer, format string) error {
	switch format {
	case "json":
		return writeReportJSON(r, w)
	case "", "human":
		return writeReportHuman(r, w)
	default:
		return fmt.Errorf("unsupported report format: %s (use: human, json)", format)
	}
}

func writeReportHuman(r *report.Report, w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.Summary()); err != nil {
		return err
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, identifier := range sortedKeys(r.Errors) {
			for _, entry := range r.Errors[identifier] {
				fmt.Fprintf(w, "  %s [%s] %s\n", identifier, entry.Action, entry.Message)
			}
		}
	}
	return nil
}

// jsonEntry mirrors report.Entry with stable JSON field names
type jsonEntry struct {
	Action  string                 `json:"action"`
	Message string                 `json:"message,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

type jsonReport struct {
	Title     string                 `json:"title"`
	RunID     string                 `json:"run_id"`
	Status    string                 `json:"status"`
	StartTime time.Time              `json:"start_time"`
	EndTime   *time.Time             `json:"end_time"`
	Errors    map[string][]jsonEntry `json:"errors"`
	Successes map[string][]jsonEntry `json:"successes"`
}

func writeReportJSON(r *report.Report, w io.Writer) error {
	doc := jsonReport{
		Title:     r.Title,
		RunID:     r.RunID,
		Status:    string(r.Status()),
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Errors:    convertEntries(r.Errors),
		Successes: convertEntries(r.Successes),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func convertEntries(entries map[string][]report.Entry) map[string][]jsonEntry {
	out := make(map[string][]jsonEntry, len(entries))
	for identifier, list := range entries {
		converted := make([]jsonEntry, len(list))
		for i, e := range list {
			converted[i] = jsonEntry{Action: e.Action, Message: e.Message, Extra: e.Extra}
		}
		out[identifier] = converted
	}
	return out
}

func sortedKeys(m map[string][]report.Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
