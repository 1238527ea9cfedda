package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/trapper"
)

// TemplateFlags holds template command flags
type TemplateFlags struct {
	DataPath    string
	OutputDir   string
	Collections []string
}

var templateFlags TemplateFlags

// NewTemplateCommand creates the template command
func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Generate a deployments CSV template from raw media",
		Long: `Walk the raw collections and derive a deployments.csv template with
one row per deployment: identifier, location, observed capture window
and camera model. The template is a starting point for the deployments
table imported into the platform.`,
		RunE: runTemplate,
	}

	cmd.Flags().StringVarP(&templateFlags.DataPath, "data", "d", "", "root directory holding collections (required)")
	cmd.MarkFlagRequired("data")

	cmd.Flags().StringVarP(&templateFlags.OutputDir, "output-dir", "O", "", "directory receiving deployments.csv (default: data directory)")
	cmd.Flags().StringSliceVarP(&templateFlags.Collections, "collections", "c", nil, "restrict to the named collections")

	return cmd
}

func runTemplate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.close()

	path, err := trapper.GenerateCSVTemplate(ctx, trapper.CSVTemplateOptions{
		DataPath:    templateFlags.DataPath,
		OutputPath:  templateFlags.OutputDir,
		Collections: templateFlags.Collections,
		Location:    p.location,
		IgnoreDST:   p.cfg.Project.IgnoreDST,
		Extensions:  p.cfg.Validation.Extensions,
		Logger:      p.logger,
	})
	if err != nil {
		return fmt.Errorf("template generation failed: %w", err)
	}

	if !p.cfg.Output.Quiet {
		fmt.Printf("Deployments template written to: %s\n", path)
	}
	return nil
}
