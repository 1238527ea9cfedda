package validate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maruel/natural"

	"github.com/ijfvianauhu/wildintel-tools/pkg/fieldlog"
	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/output"
	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
	"github.com/ijfvianauhu/wildintel-tools/pkg/resource"
)

// Report actions recorded by the deployment validator
const (
	ActionFieldLog        = "parse_field_log"
	ActionExtractMetadata = "extract_metadata"
	ActionDeploymentDates = "validate_deployment_dates"
)

// DeploymentValidatorOptions configures a timestamp-integrity run
type DeploymentValidatorOptions struct {
	// DataPath is the root directory holding collection directories
	DataPath string
	// Collections restricts the run; empty means every subdirectory
	Collections []string
	// Deployments filters the field-log entries to the named
	// deployments; empty means every entry
	Deployments []string
	// Extensions is the media allow-list (default resource.DefaultExtensions)
	Extensions []string
	// ToleranceHours is the allowed deviation between logged and
	// observed boundary timestamps
	ToleranceHours int
	// Location is the zone the camera clocks were set in (default UTC)
	Location *time.Location
	// IgnoreDST interprets timestamps with the zone's standard offset
	IgnoreDST bool
	// Fallback enables using the file modification time when no EXIF
	// capture date is present
	Fallback bool
	// MaxWorkers bounds concurrent per-file extraction (default 4)
	MaxWorkers int
	// VerifyMarkers recomputes the chained content hash before
	// trusting a .validated marker; a stale marker is removed and the
	// deployment fully re-validated
	VerifyMarkers bool
	Logger        logging.Logger
	Events        *output.Hub
}

// DeploymentValidator checks each deployment's media timestamps
// against the expected window recorded in the field notes log
type DeploymentValidator struct {
	opts   DeploymentValidatorOptions
	logger logging.Logger
}

// NewDeploymentValidator creates a validator with defaults applied
func NewDeploymentValidator(opts DeploymentValidatorOptions) *DeploymentValidator {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 4
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = resource.DefaultExtensions
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &DeploymentValidator{opts: opts, logger: logger}
}

// fileCheck is the extraction result for one media file, kept in
// natural-sort index order
type fileCheck struct {
	path      string
	hash      string
	timestamp time.Time
	err       error
}

// Run validates every selected collection's deployments and returns
// the finished report
func (v *DeploymentValidator) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New("Deployment validation")
	defer rep.Finish()

	collections, err := selectCollections(v.opts.DataPath, v.opts.Collections)
	if err != nil {
		return nil, err
	}

	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		v.validateCollection(ctx, collection, rep)
	}

	return rep, nil
}

// validateCollection parses the collection's field log and validates
// each logged deployment. A broken log aborts the whole collection.
func (v *DeploymentValidator) validateCollection(ctx context.Context, collection string, rep *report.Report) {
	output.Emit(v.opts.Events, output.Event{Kind: output.EventCollectionStart, Collection: collection})

	logPath := filepath.Join(v.opts.DataPath, collection, fieldlog.LogName(collection))
	entries, err := fieldlog.ParseFile(logPath)
	if err != nil {
		rep.AddError(collection, ActionFieldLog, err.Error(), nil)
		v.logger.Error(ctx, "field log rejected", err, logging.Fields{"collection": collection})
		return
	}

	wanted := make(map[string]bool, len(v.opts.Deployments))
	for _, d := range v.opts.Deployments {
		wanted[d] = true
	}

	for _, entry := range entries {
		if len(wanted) > 0 && !wanted[entry.Deployment] {
			continue
		}

		output.Emit(v.opts.Events, output.Event{Kind: output.EventDeploymentStart, Collection: collection, Deployment: entry.Deployment})
		v.validateDeployment(ctx, collection, entry, rep)
		output.Emit(v.opts.Events, output.Event{Kind: output.EventDeploymentComplete, Collection: collection, Deployment: entry.Deployment})
	}
}

// validateDeployment runs the full timestamp-integrity procedure for
// one deployment directory
func (v *DeploymentValidator) validateDeployment(ctx context.Context, collection string, entry fieldlog.Entry, rep *report.Report) {
	identifier := collection + ":" + entry.Deployment
	dir := filepath.Join(v.opts.DataPath, collection, entry.Deployment)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		rep.AddError(identifier, ActionDeploymentDates,
			fmt.Sprintf("deployment directory %q not found", entry.Deployment), nil)
		return
	}

	if HasMarker(dir) && !v.opts.VerifyMarkers {
		rep.AddSuccess(identifier, ActionDeploymentDates, "previously validated", nil)
		return
	}

	files, err := v.collectMediaFiles(dir)
	if err != nil {
		rep.AddError(identifier, ActionDeploymentDates, err.Error(), nil)
		return
	}
	if len(files) == 0 {
		rep.AddError(identifier, ActionDeploymentDates, "no media files matching the allowed extensions", nil)
		return
	}

	checks := v.extractAll(ctx, collection, entry.Deployment, dir, files)

	if HasMarker(dir) {
		// VerifyMarkers mode: trust the marker only if the chained
		// hash still matches the directory contents
		if v.markerStillValid(dir, checks) {
			rep.AddSuccess(identifier, ActionDeploymentDates, "previously validated", nil)
			return
		}
		v.logger.Warn(ctx, "stale validation marker removed", logging.Fields{"collection": collection, "deployment": entry.Deployment})
		if err := RemoveMarker(dir); err != nil {
			rep.AddError(identifier, ActionDeploymentDates, err.Error(), nil)
			return
		}
	}

	failed := false
	for _, c := range checks {
		if c.err != nil {
			rep.AddError(identifier, ActionExtractMetadata,
				fmt.Sprintf("file %s: %v", c.path, c.err), nil)
			failed = true
		}
	}

	if v.checkTimestamps(entry, identifier, checks, rep) {
		failed = true
	}

	if failed {
		return
	}

	hashes := make([]string, 0, len(checks))
	for _, c := range checks {
		hashes = append(hashes, c.hash)
	}
	chained := ChainHashes(hashes)

	if err := WriteMarker(dir, NewMarker(collection, entry.Deployment, chained)); err != nil {
		rep.AddError(identifier, ActionDeploymentDates, err.Error(), nil)
		return
	}

	rep.AddSuccess(identifier, ActionDeploymentDates, "deployment validated", map[string]interface{}{
		"files": len(checks),
		"hash":  chained,
	})
}

// collectMediaFiles walks a deployment directory recursively and
// returns the allowed media files in natural-sort order. This order is
// the canonical sequence the chronological check runs against.
func (v *DeploymentValidator) collectMediaFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == MarkerName {
			return nil
		}
		if !resource.HasAllowedExtension(path, v.opts.Extensions) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk deployment directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return natural.Less(files[i], files[j])
	})
	return files, nil
}

// extractAll computes hash and capture timestamp for every file on a
// bounded worker pool. Workers write only their own slot; per-file
// failures are captured in place, never aborting siblings.
func (v *DeploymentValidator) extractAll(ctx context.Context, collection, deployment, dir string, files []string) []fileCheck {
	checks := make([]fileCheck, len(files))
	semaphore := make(chan struct{}, v.opts.MaxWorkers)
	var wg sync.WaitGroup

	for i, file := range files {
		semaphore <- struct{}{}
		wg.Add(1)

		go func(i int, file string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			checks[i] = v.extractOne(dir, file)
			output.Emit(v.opts.Events, output.Event{
				Kind:       output.EventFileProgress,
				Collection: collection,
				Deployment: deployment,
				File:       file,
				Count:      1,
			})
		}(i, file)
	}

	wg.Wait()
	return checks
}

// extractOne reads a file, computing its content hash and canonical
// capture timestamp
func (v *DeploymentValidator) extractOne(dir, file string) fileCheck {
	check := fileCheck{path: file}
	full := filepath.Join(dir, file)

	content, err := os.ReadFile(full)
	if err != nil {
		check.err = fmt.Errorf("failed to read file: %w", err)
		return check
	}

	check.hash, _ = resource.CalculateHash(content)

	meta, err := resource.ExtractExif(content)
	if err != nil {
		check.err = fmt.Errorf("failed to extract metadata: %w", err)
		return check
	}

	if v.opts.Fallback {
		if _, ok := meta[resource.TagFileModifyDate]; !ok {
			if info, statErr := os.Stat(full); statErr == nil {
				meta[resource.TagFileModifyDate] = info.ModTime().In(v.opts.Location).Format("2006:01:02 15:04:05")
			}
		}
	}

	check.timestamp, err = resource.ParseDateRecorded(meta, v.opts.Location, resource.DateOptions{
		Fallback:  v.opts.Fallback,
		IgnoreDST: v.opts.IgnoreDST,
	})
	if err != nil {
		check.err = err
	}
	return check
}

// checkTimestamps walks the extraction results in canonical order,
// verifying chronological monotonicity and the expected time window.
// Returns true when any check failed.
func (v *DeploymentValidator) checkTimestamps(entry fieldlog.Entry, identifier string, checks []fileCheck, rep *report.Report) bool {
	// Boundary timestamps are held to the logged window tightly; the
	// interior only needs to stay inside the widened band.
	tolerance := time.Duration(v.opts.ToleranceHours) * time.Hour
	start := resource.Localize(entry.ExpectedStart, v.opts.Location, v.opts.IgnoreDST)
	end := resource.Localize(entry.ExpectedEnd, v.opts.Location, v.opts.IgnoreDST)

	var usable []fileCheck
	for _, c := range checks {
		if c.err == nil {
			usable = append(usable, c)
		}
	}

	failed := false
	for i, c := range usable {
		if i > 0 && c.timestamp.Before(usable[i-1].timestamp) {
			rep.AddError(identifier, ActionDeploymentDates,
				fmt.Sprintf("file %s breaks chronological order: captured %s, before preceding file %s",
					c.path, c.timestamp.Format(time.RFC3339), usable[i-1].path), nil)
			failed = true
		}

		first := i == 0
		last := i == len(usable)-1

		if first && !within(c.timestamp, start.Add(-tolerance), start.Add(tolerance)) {
			rep.AddError(identifier, ActionDeploymentDates,
				fmt.Sprintf("first file %s captured %s, outside the expected start %s (tolerance %dh)",
					c.path, c.timestamp.Format(time.RFC3339), start.Format(time.RFC3339), v.opts.ToleranceHours), nil)
			failed = true
		}
		if last && !within(c.timestamp, end.Add(-tolerance), end.Add(tolerance)) {
			rep.AddError(identifier, ActionDeploymentDates,
				fmt.Sprintf("last file %s captured %s, outside the expected end %s (tolerance %dh)",
					c.path, c.timestamp.Format(time.RFC3339), end.Format(time.RFC3339), v.opts.ToleranceHours), nil)
			failed = true
		}
		if !first && !last && !within(c.timestamp, start.Add(-tolerance), end.Add(tolerance)) {
			rep.AddError(identifier, ActionDeploymentDates,
				fmt.Sprintf("file %s captured %s, outside the deployment window %s to %s",
					c.path, c.timestamp.Format(time.RFC3339), start.Format(time.RFC3339), end.Format(time.RFC3339)), nil)
			failed = true
		}
	}

	return failed
}

// within reports whether t falls inside [lo, hi], bounds included
func within(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}

// markerStillValid recomputes the chained hash from fresh extraction
// results and compares it to the marker's recorded one
func (v *DeploymentValidator) markerStillValid(dir string, checks []fileCheck) bool {
	m, err := LoadMarker(dir)
	if err != nil {
		return false
	}

	hashes := make([]string, 0, len(checks))
	for _, c := range checks {
		if c.hash == "" {
			return false
		}
		hashes = append(hashes, c.hash)
	}
	return ChainHashes(hashes) == m.Hash
}
