package resource

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ExifTool invokes the external exiftool binary to write metadata
// tags into media files in place. The pipeline only depends on tag
// writing being synchronous and all-or-nothing per invocation.
type ExifTool struct {
	// Path to the exiftool executable
	Path string
}

// NewExifTool creates a wrapper around the given executable path,
// defaulting to "exiftool" on PATH.
func NewExifTool(path string) *ExifTool {
	if path == "" {
		path = "exiftool"
	}
	return &ExifTool{Path: path}
}

// Check verifies the executable is available, returning its version
func (t *ExifTool) Check(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, t.Path, "-ver").Output()
	if err != nil {
		return "", fmt.Errorf("exiftool not available at %q: %w", t.Path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// SetTags writes the given tag map into each file, overwriting the
// originals. Callers must have copied the files first if the source
// needs to be preserved.
func (t *ExifTool) SetTags(ctx context.Context, paths []string, tags map[string]string) error {
	if len(paths) == 0 {
		return nil
	}

	args := make([]string, 0, len(tags)+len(paths)+1)
	args = append(args, "-overwrite_original")

	// Deterministic argument order keeps invocations reproducible
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, fmt.Sprintf("-%s=%s", name, tags[name]))
	}
	args = append(args, paths...)

	cmd := exec.CommandContext(ctx, t.Path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("exiftool failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
