package report

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// reportDoc is the on-disk shape of a report
type reportDoc struct {
	Title     string             `yaml:"title"`
	RunID     string             `yaml:"run_id,omitempty"`
	StartTime time.Time          `yaml:"start_time"`
	EndTime   *time.Time         `yaml:"end_time"`
	Errors    map[string][]Entry `yaml:"errors"`
	Successes map[string][]Entry `yaml:"successes"`
}

// MarshalYAML flattens the entry's extra fields into the entry mapping
func (e Entry) MarshalYAML() (interface{}, error) {
	m := make(map[string]interface{}, len(e.Extra)+2)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["action"] = e.Action
	if e.Message != "" {
		m["message"] = e.Message
	}
	return m, nil
}

// UnmarshalYAML splits the entry mapping back into action, message and extras
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]interface{}
	if err := value.Decode(&m); err != nil {
		return err
	}

	if action, ok := m["action"].(string); ok {
		e.Action = action
	}
	if message, ok := m["message"].(string); ok {
		e.Message = message
	}
	delete(m, "action")
	delete(m, "message")
	if len(m) > 0 {
		e.Extra = m
	}
	return nil
}

// ToYAML serializes the report. When path is non-empty the YAML is also
// written to that file.
func (r *Report) ToYAML(path string) (string, error) {
	doc := reportDoc{
		Title:     r.Title,
		RunID:     r.RunID,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Errors:    r.Errors,
		Successes: r.Successes,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("failed to write report file: %w", err)
		}
	}

	return string(data), nil
}

// Parse reconstructs a report from its YAML representation
func Parse(data []byte) (*Report, error) {
	var doc reportDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	r := &Report{
		Title:     doc.Title,
		RunID:     doc.RunID,
		StartTime: doc.StartTime,
		EndTime:   doc.EndTime,
		Errors:    doc.Errors,
		Successes: doc.Successes,
	}
	if r.Errors == nil {
		r.Errors = make(map[string][]Entry)
	}
	if r.Successes == nil {
		r.Successes = make(map[string][]Entry)
	}
	return r, nil
}

// Load reads a report from a YAML file
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}
	return Parse(data)
}
