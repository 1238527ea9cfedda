package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/trapper"
)

// PackageFlags holds package command flags
type PackageFlags struct {
	DataPath    string
	OutputDir   string
	Name        string
	ProjectID   int
	Collections []string
	MaxZipSize  string
	ReportFile  string
	Output      string
}

var packageFlags PackageFlags

// NewPackageCommand creates the package command
func NewPackageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Bundle prepared media into upload packages",
		Long: `Build package definition files and matching zip archives from a
prepared tree. Each deployment is split into parts no larger than the
given size; every part gets a YAML definition describing its resources
and a zip holding the files.`,
		RunE: runPackage,
	}

	cmd.Flags().StringVarP(&packageFlags.DataPath, "data", "d", "", "root directory holding prepared collections (required)")
	cmd.MarkFlagRequired("data")

	cmd.Flags().StringVarP(&packageFlags.OutputDir, "output-dir", "O", "", "directory receiving the packages (default: data directory)")
	cmd.Flags().StringVarP(&packageFlags.Name, "name", "n", "package", "package name prefixed to every part filename")
	cmd.Flags().IntVar(&packageFlags.ProjectID, "project-id", 0, "platform project identifier (default from config)")
	cmd.Flags().StringSliceVarP(&packageFlags.Collections, "collections", "c", nil, "restrict to the named collections")
	cmd.Flags().StringVar(&packageFlags.MaxZipSize, "max-zip-size", "", "split parts above this size (e.g. \"2G\", \"500M\")")
	cmd.Flags().StringVar(&packageFlags.ReportFile, "report", "", "write the run report to a YAML file")
	cmd.Flags().StringVarP(&packageFlags.Output, "output", "o", "human", "report format: human, json")

	return cmd
}

func runPackage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var maxZipSize int64
	if packageFlags.MaxZipSize != "" {
		size, err := humanize.ParseBytes(packageFlags.MaxZipSize)
		if err != nil {
			return fmt.Errorf("invalid --max-zip-size: %w", err)
		}
		maxZipSize = int64(size)
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}

	projectID := packageFlags.ProjectID
	if projectID == 0 {
		projectID = p.cfg.Project.ID
	}

	generator := trapper.NewPackageGenerator(trapper.PackageGeneratorOptions{
		DataPath:    packageFlags.DataPath,
		OutputPath:  packageFlags.OutputDir,
		ProjectID:   projectID,
		PackageName: packageFlags.Name,
		Collections: packageFlags.Collections,
		Extensions:  p.cfg.Validation.Extensions,
		Location:    p.location,
		IgnoreDST:   p.cfg.Project.IgnoreDST,
		MaxZipSize:  maxZipSize,
		MaxWorkers:  p.cfg.Performance.MaxWorkers,
		Logger:      p.logger,
		Events:      p.hub,
	})

	rep, err := generator.Run(ctx)
	if err != nil {
		p.close()
		return fmt.Errorf("packaging failed: %w", err)
	}

	return p.finish(rep, packageFlags.ReportFile, packageFlags.Output)
}
