package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/resource"
	"github.com/ijfvianauhu/wildintel-tools/pkg/trapper"
)

// PrepareFlags holds prepare command flags
type PrepareFlags struct {
	DataPath         string
	OutputDir        string
	Collections      []string
	Deployments      []string
	Overwrite        bool
	NoResize         bool
	ResizeWidth      int
	DeploymentsTable bool
	SkipTags         bool
	ReportFile       string
	Output           string
}

var prepareFlags PrepareFlags

// NewPrepareCommand creates the prepare command
func NewPrepareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Prepare validated media for platform upload",
		Long: `Copy validated media into an upload-ready tree: files are renamed to
canonical content-addressed names, provenance metadata is embedded, and
an optional per-collection deployments table is generated.`,
		RunE: runPrepare,
	}

	cmd.Flags().StringVarP(&prepareFlags.DataPath, "data", "d", "", "root directory holding validated collections (required)")
	cmd.Flags().StringVarP(&prepareFlags.OutputDir, "output-dir", "O", "", "directory receiving the prepared tree (required)")
	cmd.MarkFlagRequired("data")
	cmd.MarkFlagRequired("output-dir")

	cmd.Flags().StringSliceVarP(&prepareFlags.Collections, "collections", "c", nil, "restrict to the named collections")
	cmd.Flags().StringSliceVar(&prepareFlags.Deployments, "deployments", nil, "restrict to the named deployments")
	cmd.Flags().BoolVar(&prepareFlags.Overwrite, "overwrite", false, "replace existing deployment output directories")
	cmd.Flags().BoolVar(&prepareFlags.NoResize, "no-resize", false, "hash distribution copies at original resolution")
	cmd.Flags().IntVar(&prepareFlags.ResizeWidth, "resize-width", 0, "distribution image width in pixels (default from config)")
	cmd.Flags().BoolVar(&prepareFlags.DeploymentsTable, "deployments-table", false, "write a per-collection deployments CSV")
	cmd.Flags().BoolVar(&prepareFlags.SkipTags, "skip-tags", false, "skip embedding provenance tags (no exiftool required)")
	cmd.Flags().StringVar(&prepareFlags.ReportFile, "report", "", "write the run report to a YAML file")
	cmd.Flags().StringVarP(&prepareFlags.Output, "output", "o", "human", "report format: human, json")

	return cmd
}

func runPrepare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}

	var exifTool *resource.ExifTool
	if !prepareFlags.SkipTags {
		exifTool = resource.NewExifTool(p.cfg.Prepare.ExifToolPath)
		version, err := exifTool.Check(ctx)
		if err != nil {
			p.close()
			return fmt.Errorf("exiftool is not available (install it or pass --skip-tags): %w", err)
		}
		p.logger.Debug(ctx, "exiftool available", logging.Fields{"version": version})
	}

	resizeWidth := prepareFlags.ResizeWidth
	if resizeWidth < 1 {
		resizeWidth = p.cfg.Prepare.ResizeWidth
	}

	preparer := trapper.NewPreparer(trapper.PreparerOptions{
		DataPath:         prepareFlags.DataPath,
		OutputDir:        prepareFlags.OutputDir,
		Collections:      prepareFlags.Collections,
		Deployments:      prepareFlags.Deployments,
		Extensions:       p.cfg.Validation.Extensions,
		MaxWorkers:       p.cfg.Performance.MaxWorkers,
		Resize:           p.cfg.Prepare.Resize && !prepareFlags.NoResize,
		ResizeWidth:      resizeWidth,
		Overwrite:        prepareFlags.Overwrite || p.cfg.Prepare.Overwrite,
		DeploymentsTable: prepareFlags.DeploymentsTable || p.cfg.Prepare.DeploymentsTable,
		Location:         p.location,
		IgnoreDST:        p.cfg.Project.IgnoreDST,
		ExifTool:         exifTool,
		Provenance: trapper.Provenance{
			ProjectName: p.cfg.Project.Name,
			Publisher:   p.cfg.Project.Publisher,
			Owner:       p.cfg.Project.Owner,
			Coverage:    p.cfg.Project.Coverage,
		},
		Logger: p.logger,
		Events: p.hub,
	})

	rep, err := preparer.Run(ctx)
	if err != nil {
		p.close()
		return fmt.Errorf("preparation failed: %w", err)
	}

	return p.finish(rep, prepareFlags.ReportFile, prepareFlags.Output)
}
