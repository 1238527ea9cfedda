package trapper

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/output"
	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
	"github.com/ijfvianauhu/wildintel-tools/pkg/resource"
)

// Definition is the platform's package description: collections down
// to individual resources. Field order matters on the consuming side,
// which struct marshalling preserves.
type Definition struct {
	Collections []CollectionDef `yaml:"collections"`
}

type CollectionDef struct {
	Name              string          `yaml:"name"`
	ProjectID         int             `yaml:"project_id"`
	Timezone          string          `yaml:"timezone"`
	TimezoneIgnoreDST bool            `yaml:"timezone_ignore_dst"`
	ResourcesDir      string          `yaml:"resources_dir"`
	Deployments       []DeploymentDef `yaml:"deployments"`
}

type DeploymentDef struct {
	DeploymentID string        `yaml:"deployment_id"`
	Resources    []ResourceDef `yaml:"resources"`
}

type ResourceDef struct {
	Name         string `yaml:"name"`
	File         string `yaml:"file"`
	DateRecorded string `yaml:"date_recorded"`
	MimeType     string `yaml:"mime_type,omitempty"`
	FileWidth    int    `yaml:"file_width,omitempty"`
	FileHeight   int    `yaml:"file_height,omitempty"`
	FileSize     int64  `yaml:"file_size"`
}

// PackageGeneratorOptions configures a packaging run
type PackageGeneratorOptions struct {
	// DataPath is the root directory holding prepared collections
	DataPath string
	// OutputPath receives the .yaml/.zip part pairs (default DataPath)
	OutputPath string
	// ProjectID is the platform research project identifier
	ProjectID int
	// PackageName prefixes every part filename (default "package")
	PackageName string
	// Collections restricts the run; empty means every subdirectory
	Collections []string
	// Extensions is the media allow-list (default resource.DefaultExtensions)
	Extensions []string
	// Location is the zone resource timestamps are expressed in
	Location  *time.Location
	IgnoreDST bool
	// MaxZipSize splits a deployment's files into parts no larger
	// than this many bytes; zero means a single part
	MaxZipSize int64
	// MaxWorkers bounds concurrent resource metadata extraction
	MaxWorkers int
	Logger     logging.Logger
	Events     *output.Hub
}

// PackageGenerator builds upload packages: per deployment, one or more
// YAML definition parts with matching zip archives
type PackageGenerator struct {
	opts      PackageGeneratorOptions
	logger    logging.Logger
	timestamp string
}

// NewPackageGenerator creates a generator with defaults applied
func NewPackageGenerator(opts PackageGeneratorOptions) *PackageGenerator {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 4
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = resource.DefaultExtensions
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.OutputPath == "" {
		opts.OutputPath = opts.DataPath
	}
	if opts.PackageName == "" {
		opts.PackageName = "package"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &PackageGenerator{
		opts:      opts,
		logger:    logger,
		timestamp: time.Now().Format("20060102150405"),
	}
}

// Run builds the full definition, then writes one YAML+zip pair per
// size-bounded part of each deployment
func (g *PackageGenerator) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New("Preparing packages for Trapper")
	defer rep.Finish()

	definition, err := g.BuildDefinition(ctx)
	if err != nil {
		return nil, err
	}

	for _, col := range definition.Collections {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		outDir := filepath.Join(g.opts.OutputPath, col.Name)
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return rep, fmt.Errorf("failed to create output directory: %w", err)
		}

		output.Emit(g.opts.Events, output.Event{Kind: output.EventCollectionStart, Collection: col.Name, Count: len(col.Deployments)})

		for _, dep := range col.Deployments {
			output.Emit(g.opts.Events, output.Event{Kind: output.EventDeploymentStart, Collection: col.Name, Deployment: dep.DeploymentID, Count: len(dep.Resources)})

			if err := g.packageDeployment(col, dep, outDir); err != nil {
				rep.AddError(dep.DeploymentID, ActionDeploymentExported, err.Error(), nil)
			} else {
				rep.AddSuccess(dep.DeploymentID, ActionDeploymentExported, "", nil)
			}

			output.Emit(g.opts.Events, output.Event{Kind: output.EventDeploymentComplete, Collection: col.Name, Deployment: dep.DeploymentID})
		}
	}

	return rep, nil
}

// BuildDefinition walks the prepared tree and assembles the complete
// package definition, extracting resource metadata in parallel while
// keeping the natural file order in the result
func (g *PackageGenerator) BuildDefinition(ctx context.Context) (*Definition, error) {
	collections, err := listCollections(g.opts.DataPath, g.opts.Collections)
	if err != nil {
		return nil, err
	}

	def := &Definition{}
	total := 0

	for _, collection := range collections {
		colPath := filepath.Join(g.opts.DataPath, collection)
		col := CollectionDef{
			Name:              collection,
			ProjectID:         g.opts.ProjectID,
			Timezone:          g.opts.Location.String(),
			TimezoneIgnoreDST: g.opts.IgnoreDST,
			ResourcesDir:      collection,
		}

		deployments, err := listDeployments(colPath, nil)
		if err != nil {
			return nil, err
		}

		for _, deployment := range deployments {
			depPath := filepath.Join(colPath, deployment)
			files, err := collectMedia(depPath, g.opts.Extensions)
			if err != nil {
				return nil, err
			}

			dep := DeploymentDef{
				DeploymentID: deployment,
				Resources:    make([]ResourceDef, len(files)),
			}

			semaphore := make(chan struct{}, g.opts.MaxWorkers)
			var wg sync.WaitGroup
			for i, file := range files {
				semaphore <- struct{}{}
				wg.Add(1)
				go func(i int, file string) {
					defer wg.Done()
					defer func() { <-semaphore }()
					dep.Resources[i] = g.buildResource(depPath, file)
				}(i, file)
			}
			wg.Wait()

			total += len(files)
			col.Deployments = append(col.Deployments, dep)
		}

		def.Collections = append(def.Collections, col)
	}

	if total == 0 {
		return nil, fmt.Errorf("no valid files found to package under %s", g.opts.DataPath)
	}
	return def, nil
}

// buildResource extracts one resource's definition entry. Metadata
// that cannot be derived is left empty rather than failing the build.
func (g *PackageGenerator) buildResource(depPath, file string) ResourceDef {
	res := ResourceDef{Name: file, File: file}
	path := filepath.Join(depPath, file)

	if info, err := os.Stat(path); err == nil {
		res.FileSize = info.Size()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return res
	}

	res.MimeType = resource.DetectMime(content)
	if w, h, err := resource.Dimensions(content); err == nil {
		res.FileWidth = w
		res.FileHeight = h
	}

	meta, err := resource.ExtractExif(content)
	if err != nil {
		meta = map[string]string{}
	}
	if _, ok := meta[resource.TagFileModifyDate]; !ok {
		if info, statErr := os.Stat(path); statErr == nil {
			meta[resource.TagFileModifyDate] = info.ModTime().In(g.opts.Location).Format("2006:01:02 15:04:05")
		}
	}
	if captured, err := resource.ParseDateRecorded(meta, g.opts.Location, resource.DateOptions{
		Fallback:  true,
		IgnoreDST: g.opts.IgnoreDST,
	}); err == nil {
		res.DateRecorded = captured.Format(deploymentsCSVTimeLayout)
	}

	return res
}

// packageDeployment splits one deployment's files into size-bounded
// parts and writes a YAML definition and zip archive per part
func (g *PackageGenerator) packageDeployment(col CollectionDef, dep DeploymentDef, outDir string) error {
	parts := g.splitBySize(col, dep)

	for i, part := range parts {
		base := fmt.Sprintf("%s_%d_%s_%s_%s_part%03d",
			g.opts.PackageName, g.opts.ProjectID, g.timestamp, col.Name, dep.DeploymentID, i+1)
		yamlPath := filepath.Join(outDir, base+".yaml")
		zipPath := filepath.Join(outDir, base+".zip")

		filtered := filterDefinition(col, dep, part)
		if err := writeDefinition(yamlPath, filtered); err != nil {
			return err
		}
		if err := g.writeZip(zipPath, col, dep, part); err != nil {
			return err
		}
	}
	return nil
}

// splitBySize groups a deployment's resources into consecutive runs
// whose total size stays under MaxZipSize
func (g *PackageGenerator) splitBySize(col CollectionDef, dep DeploymentDef) [][]ResourceDef {
	if g.opts.MaxZipSize <= 0 {
		return [][]ResourceDef{dep.Resources}
	}

	var parts [][]ResourceDef
	var current []ResourceDef
	var size int64
	for _, res := range dep.Resources {
		if len(current) > 0 && size+res.FileSize > g.opts.MaxZipSize {
			parts = append(parts, current)
			current, size = nil, 0
		}
		current = append(current, res)
		size += res.FileSize
	}
	if len(current) > 0 {
		parts = append(parts, current)
	}
	return parts
}

// filterDefinition narrows the definition to one part's resources
func filterDefinition(col CollectionDef, dep DeploymentDef, part []ResourceDef) *Definition {
	colCopy := col
	colCopy.Deployments = []DeploymentDef{{DeploymentID: dep.DeploymentID, Resources: part}}
	return &Definition{Collections: []CollectionDef{colCopy}}
}

// writeDefinition marshals a definition part to YAML
func writeDefinition(path string, def *Definition) error {
	data, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal package definition: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write package definition: %w", err)
	}
	return nil
}

// writeZip archives one part's files, paths relative to the data root
func (g *PackageGenerator) writeZip(path string, col CollectionDef, dep DeploymentDef, part []ResourceDef) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, res := range part {
		src := filepath.Join(g.opts.DataPath, col.Name, dep.DeploymentID, res.File)
		rel := filepath.ToSlash(filepath.Join(col.Name, dep.DeploymentID, res.File))

		entry, err := w.Create(rel)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", rel, err)
		}
		in, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", src, err)
		}
		if _, err := io.Copy(entry, in); err != nil {
			in.Close()
			return fmt.Errorf("failed to archive %s: %w", rel, err)
		}
		in.Close()
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}
