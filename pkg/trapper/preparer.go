package trapper

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maruel/natural"

	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/output"
	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
	"github.com/ijfvianauhu/wildintel-tools/pkg/resource"
)

// Report actions recorded by the preparer
const (
	ActionCopyError          = "copy error"
	ActionDeploymentExported = "deployment exported"
	ActionDeploymentsTable   = "deployments_table"
)

// Provenance identifies the project stamped into every prepared file's
// embedded rights metadata
type Provenance struct {
	ProjectName string
	Publisher   string
	Owner       string
	Coverage    string
}

// PreparerOptions configures a preparation run
type PreparerOptions struct {
	// DataPath is the root directory holding validated collections
	DataPath string
	// OutputDir receives the upload-ready tree
	OutputDir string
	// Collections restricts the run; empty means every subdirectory
	Collections []string
	// Deployments filters processed deployments by name
	Deployments []string
	// Extensions is the media allow-list (default resource.DefaultExtensions)
	Extensions []string
	// MaxWorkers bounds concurrent per-file work (default 4)
	MaxWorkers int
	// Resize downscales images to ResizeWidth before hashing the
	// distribution copy
	Resize      bool
	ResizeWidth int
	// Overwrite destructively replaces existing deployment output
	// directories instead of rejecting them
	Overwrite bool
	// DeploymentsTable emits a <collection>_deployments.csv summary
	DeploymentsTable bool
	// Location is the zone the camera clocks were set in (default UTC)
	Location  *time.Location
	IgnoreDST bool
	// ExifTool embeds the provenance tags; nil skips the embed step
	ExifTool   *resource.ExifTool
	Provenance Provenance
	Logger     logging.Logger
	Events     *output.Hub
}

// Preparer transforms validated deployments into upload-ready
// artifacts: canonical names, optional downscale, embedded provenance
type Preparer struct {
	opts   PreparerOptions
	logger logging.Logger
}

// NewPreparer creates a preparer with defaults applied
func NewPreparer(opts PreparerOptions) *Preparer {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 4
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = resource.DefaultExtensions
	}
	if opts.ResizeWidth < 1 {
		opts.ResizeWidth = resource.DefaultResizeWidth
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Provenance.ProjectName == "" {
		opts.Provenance.ProjectName = "WildINTEL"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Preparer{opts: opts, logger: logger}
}

// prepResult is the outcome of preparing one file
type prepResult struct {
	file     string
	captured time.Time
	camera   string
	err      error
}

// Run prepares every selected collection and returns the finished report
func (p *Preparer) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New("Preparing collections for Trapper")
	defer rep.Finish()

	collections, err := listCollections(p.opts.DataPath, p.opts.Collections)
	if err != nil {
		return nil, err
	}

	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := p.prepareCollection(ctx, collection, rep); err != nil {
			return rep, err
		}
	}

	return rep, nil
}

// prepareCollection processes every selected deployment of one collection
func (p *Preparer) prepareCollection(ctx context.Context, collection string, rep *report.Report) error {
	colPath := filepath.Join(p.opts.DataPath, collection)
	outColPath := filepath.Join(p.opts.OutputDir, collection)
	if err := os.MkdirAll(outColPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	deployments, err := listDeployments(colPath, p.opts.Deployments)
	if err != nil {
		return err
	}

	output.Emit(p.opts.Events, output.Event{Kind: output.EventCollectionStart, Collection: collection, Count: len(deployments)})

	var rows []DeploymentRow
	for _, deployment := range deployments {
		row, ok := p.prepareDeployment(ctx, collection, deployment, outColPath, rep)
		if ok && p.opts.DeploymentsTable {
			rows = append(rows, row)
		}
		output.Emit(p.opts.Events, output.Event{Kind: output.EventDeploymentComplete, Collection: collection, Deployment: deployment})
	}

	if p.opts.DeploymentsTable && len(rows) > 0 {
		tablePath := filepath.Join(outColPath, collection+"_deployments.csv")
		if err := WriteDeploymentsCSV(tablePath, rows); err != nil {
			rep.AddError(collection, ActionDeploymentsTable, err.Error(), nil)
		} else {
			rep.AddSuccess(collection, ActionDeploymentsTable, "", map[string]interface{}{"rows": len(rows)})
		}
	}

	return nil
}

// prepareDeployment copies and re-tags one deployment's media. Returns
// the deployments-table row and whether any file was exported.
func (p *Preparer) prepareDeployment(ctx context.Context, collection, deployment, outColPath string, rep *report.Report) (DeploymentRow, bool) {
	identifier := collection + ":" + deployment
	srcDir := filepath.Join(p.opts.DataPath, collection, deployment)
	destDir := filepath.Join(outColPath, deployment)

	if _, err := os.Stat(destDir); err == nil {
		if !p.opts.Overwrite {
			rep.AddError(identifier, ActionDeploymentExported,
				fmt.Sprintf("output directory %q already exists", destDir), nil)
			return DeploymentRow{}, false
		}
		if err := os.RemoveAll(destDir); err != nil {
			rep.AddError(identifier, ActionDeploymentExported, err.Error(), nil)
			return DeploymentRow{}, false
		}
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		rep.AddError(identifier, ActionDeploymentExported, err.Error(), nil)
		return DeploymentRow{}, false
	}

	files, err := collectMedia(srcDir, p.opts.Extensions)
	if err != nil {
		rep.AddError(identifier, ActionDeploymentExported, err.Error(), nil)
		return DeploymentRow{}, false
	}

	output.Emit(p.opts.Events, output.Event{Kind: output.EventDeploymentStart, Collection: collection, Deployment: deployment, Count: len(files)})

	results := make([]prepResult, len(files))
	semaphore := make(chan struct{}, p.opts.MaxWorkers)
	var wg sync.WaitGroup

	for i, file := range files {
		semaphore <- struct{}{}
		wg.Add(1)

		go func(i int, file string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results[i] = p.processFile(ctx, collection, deployment, i+1, filepath.Join(srcDir, file), destDir)
			results[i].file = file
			output.Emit(p.opts.Events, output.Event{
				Kind:       output.EventFileProgress,
				Collection: collection,
				Deployment: deployment,
				File:       file,
				Count:      1,
			})
		}(i, file)
	}
	wg.Wait()

	row := DeploymentRow{DeploymentID: Slugify(deployment)}
	if _, rest, found := strings.Cut(row.DeploymentID, "-"); found {
		row.LocationID = rest
	}

	copied := 0
	for _, r := range results {
		if r.err != nil {
			rep.AddError(identifier, ActionCopyError, fmt.Sprintf("%s: %v", r.file, r.err), nil)
			continue
		}
		copied++
		if row.Start.IsZero() || r.captured.Before(row.Start) {
			row.Start = r.captured
		}
		if row.End.IsZero() || r.captured.After(row.End) {
			row.End = r.captured
		}
		if row.CameraModel == "" {
			row.CameraModel = r.camera
		}
	}

	if copied > 0 {
		rep.AddSuccess(identifier, ActionDeploymentExported, "", map[string]interface{}{"files": copied})
	}
	return row, copied > 0
}

// processFile prepares a single media file: hash, canonical timestamp,
// optional downscale hash, canonical rename, copy, provenance embed
func (p *Preparer) processFile(ctx context.Context, collection, deployment string, idx int, srcPath, destDir string) prepResult {
	content, err := os.ReadFile(srcPath)
	if err != nil {
		return prepResult{err: fmt.Errorf("failed to read file: %w", err)}
	}

	srcHash, _ := resource.CalculateHash(content)
	mime := resource.DetectMime(content)

	meta, err := resource.ExtractExif(content)
	if err != nil {
		return prepResult{err: fmt.Errorf("failed to extract metadata: %w", err)}
	}
	if _, ok := meta[resource.TagFileModifyDate]; !ok {
		if info, statErr := os.Stat(srcPath); statErr == nil {
			meta[resource.TagFileModifyDate] = info.ModTime().In(p.opts.Location).Format("2006:01:02 15:04:05")
		}
	}

	captured, err := resource.ParseDateRecorded(meta, p.opts.Location, resource.DateOptions{
		Fallback:  true,
		IgnoreDST: p.opts.IgnoreDST,
	})
	if err != nil {
		// A file without a usable capture date cannot carry valid
		// provenance; it is excluded rather than silently copied
		return prepResult{err: err}
	}

	// The distribution hash identifies the file as distributed, which
	// may differ from the captured bytes when downscaling applies
	distHash := srcHash
	if p.opts.Resize {
		if resized, resizeErr := p.resizedHash(content); resizeErr == nil {
			distHash = resized
		} else {
			p.logger.Debug(ctx, "resize failed, keeping source hash", logging.Fields{"file": srcPath, "error": resizeErr.Error()})
		}
	}

	newName := fmt.Sprintf("%s-%s__%s_%04d%s",
		collection, Slugify(deployment), captured.Format("20060102"), idx, strings.ToLower(filepath.Ext(srcPath)))
	destPath := filepath.Join(destDir, newName)

	if err := copyFile(srcPath, destPath, content); err != nil {
		return prepResult{err: err}
	}

	if p.opts.ExifTool != nil {
		tags := p.provenanceTags(meta, mime, captured, srcHash, distHash)
		if err := p.opts.ExifTool.SetTags(ctx, []string{destPath}, tags); err != nil {
			return prepResult{err: fmt.Errorf("failed to embed metadata: %w", err)}
		}
	}

	return prepResult{captured: captured, camera: resource.CameraModel(meta)}
}

// resizedHash downscales the image and hashes the re-encoded bytes
func (p *Preparer) resizedHash(content []byte) (string, error) {
	img, err := resource.DecodeImage(content)
	if err != nil {
		return "", err
	}
	resized, err := resource.Resize(img, p.opts.ResizeWidth)
	if err != nil {
		return "", err
	}
	encoded, err := resource.EncodeJPEG(resized)
	if err != nil {
		return "", err
	}
	hash, _ := resource.CalculateHash(encoded)
	return hash, nil
}

// provenanceTags builds the Dublin-Core/rights tag set embedded into
// every prepared file
func (p *Preparer) provenanceTags(meta map[string]string, mime string, captured time.Time, srcHash, distHash string) map[string]string {
	cameraMake := meta[resource.TagMake]
	if cameraMake == "" {
		cameraMake = "Unknown"
	}
	cameraModel := meta[resource.TagModel]
	if cameraModel == "" {
		cameraModel = "Unknown"
	}

	prov := p.opts.Provenance
	return map[string]string{
		"XMP-dc:Creator":             fmt.Sprintf("CT (%s %s %s)", cameraMake, cameraModel, prov.ProjectName),
		"XMP-dc:Date":                captured.Format(time.RFC3339),
		"XMP-dc:Format":              mime,
		"XMP-dc:Identifier":          fmt.Sprintf("%s:%s", prov.ProjectName, distHash),
		"XMP-dc:Source":              fmt.Sprintf("%s:%s", prov.ProjectName, srcHash),
		"XMP-dc:Publisher":           prov.Publisher,
		"XMP-dc:Rights":              fmt.Sprintf("© %s, %d. All rights reserved.", prov.Owner, time.Now().Year()),
		"XMP-dc:Coverage":            fmt.Sprintf("This image was taken at %s, as part of the %s project.", prov.Coverage, prov.ProjectName),
		"XMP-xmpRights:Marked":       "true",
		"XMP-xmpRights:Owner":        prov.Owner,
		"XMP-xmpRights:WebStatement": "https://creativecommons.org/licenses/by-nc/4.0/",
	}
}

// copyFile writes the already-read content to the destination,
// preserving the source modification time
func copyFile(srcPath, destPath string, content []byte) error {
	if err := os.WriteFile(destPath, content, 0644); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if info, err := os.Stat(srcPath); err == nil {
		_ = os.Chtimes(destPath, info.ModTime(), info.ModTime())
	}
	return nil
}

// listCollections resolves the collections to process, intersecting an
// explicit list with the directories actually present
func listCollections(dataPath string, explicit []string) ([]string, error) {
	entries, err := os.ReadDir(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read data path: %w", err)
	}

	wanted := make(map[string]bool, len(explicit))
	for _, c := range explicit {
		wanted[c] = true
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if len(wanted) > 0 && !wanted[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// listDeployments returns a collection's deployment directories,
// optionally filtered by name
func listDeployments(colPath string, explicit []string) ([]string, error) {
	entries, err := os.ReadDir(colPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection directory: %w", err)
	}

	wanted := make(map[string]bool, len(explicit))
	for _, d := range explicit {
		wanted[d] = true
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if len(wanted) > 0 && !wanted[e.Name()] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// collectMedia walks a deployment directory and returns its allowed
// media files in natural-sort order
func collectMedia(dir string, extensions []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !resource.HasAllowedExtension(path, extensions) {
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
