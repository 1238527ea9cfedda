package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/trapper"
	"github.com/ijfvianauhu/wildintel-tools/pkg/validate"
)

// CheckCollectionsFlags holds check-collections command flags
type CheckCollectionsFlags struct {
	DataPath     string
	Collections  []string
	SkipRegistry bool
	ReportFile   string
	Output       string
}

var checkCollectionsFlags CheckCollectionsFlags

// NewCheckCollectionsCommand creates the check-collections command
func NewCheckCollectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-collections",
		Short: "Validate collection and deployment directory names",
		Long: `Validate that collection and deployment directory names follow the
expected naming scheme and that every deployment references a location
registered on the remote platform.`,
		RunE: runCheckCollections,
	}

	cmd.Flags().StringVarP(&checkCollectionsFlags.DataPath, "data", "d", "", "root directory holding collections (required)")
	cmd.MarkFlagRequired("data")

	cmd.Flags().StringSliceVarP(&checkCollectionsFlags.Collections, "collections", "c", nil, "restrict to the named collections")
	cmd.Flags().BoolVar(&checkCollectionsFlags.SkipRegistry, "skip-registry", false, "skip the remote location registry check")
	cmd.Flags().StringVar(&checkCollectionsFlags.ReportFile, "report", "", "write the run report to a YAML file")
	cmd.Flags().StringVarP(&checkCollectionsFlags.Output, "output", "o", "human", "report format: human, json")

	return cmd
}

func runCheckCollections(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}

	var locations validate.LocationDirectory
	if p.cfg.Trapper.ValidateLocations && !checkCollectionsFlags.SkipRegistry {
		if p.cfg.Trapper.URL == "" {
			p.close()
			return fmt.Errorf("no platform URL configured; set trapper.url or pass --skip-registry")
		}
		locations = trapper.NewClient(
			p.cfg.Trapper.URL,
			p.cfg.Trapper.Username,
			p.cfg.Trapper.Password,
			p.cfg.Trapper.Token,
		)
	}

	validator := validate.NewCollectionValidator(validate.CollectionValidatorOptions{
		DataPath:    checkCollectionsFlags.DataPath,
		Collections: checkCollectionsFlags.Collections,
		Locations:   locations,
		MaxWorkers:  p.cfg.Performance.MaxWorkers,
		Logger:      p.logger,
		Events:      p.hub,
	})

	rep, err := validator.Run(ctx)
	if err != nil {
		p.close()
		return fmt.Errorf("collection check failed: %w", err)
	}

	return p.finish(rep, checkCollectionsFlags.ReportFile, checkCollectionsFlags.Output)
}

// CheckDeploymentsFlags holds check-deployments command flags
type CheckDeploymentsFlags struct {
	DataPath      string
	Collections   []string
	Deployments   []string
	Tolerance     int
	Fallback      bool
	VerifyMarkers bool
	ReportFile    string
	Output        string
}

var checkDeploymentsFlags CheckDeploymentsFlags

// NewCheckDeploymentsCommand creates the check-deployments command
func NewCheckDeploymentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-deployments",
		Short: "Validate media timestamps against the field log",
		Long: `Check every deployment's media files against the field log: capture
timestamps must fall inside the logged deployment window (within the
configured tolerance) and be chronologically ordered. Deployments that
pass receive a marker file so later runs skip them.`,
		RunE: runCheckDeployments,
	}

	cmd.Flags().StringVarP(&checkDeploymentsFlags.DataPath, "data", "d", "", "root directory holding collections (required)")
	cmd.MarkFlagRequired("data")

	cmd.Flags().StringSliceVarP(&checkDeploymentsFlags.Collections, "collections", "c", nil, "restrict to the named collections")
	cmd.Flags().StringSliceVar(&checkDeploymentsFlags.Deployments, "deployments", nil, "restrict to the named deployments")
	cmd.Flags().IntVarP(&checkDeploymentsFlags.Tolerance, "tolerance", "t", -1, "boundary tolerance in hours (default from config)")
	cmd.Flags().BoolVar(&checkDeploymentsFlags.Fallback, "fallback", false, "use file modification time when no capture date is present")
	cmd.Flags().BoolVar(&checkDeploymentsFlags.VerifyMarkers, "verify-markers", false, "recompute content hashes before trusting validation markers")
	cmd.Flags().StringVar(&checkDeploymentsFlags.ReportFile, "report", "", "write the run report to a YAML file")
	cmd.Flags().StringVarP(&checkDeploymentsFlags.Output, "output", "o", "human", "report format: human, json")

	return cmd
}

func runCheckDeployments(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}

	tolerance := checkDeploymentsFlags.Tolerance
	if tolerance < 0 {
		tolerance = p.cfg.Validation.ToleranceHours
	}
	verifyMarkers := checkDeploymentsFlags.VerifyMarkers || p.cfg.Validation.VerifyMarkers

	validator := validate.NewDeploymentValidator(validate.DeploymentValidatorOptions{
		DataPath:       checkDeploymentsFlags.DataPath,
		Collections:    checkDeploymentsFlags.Collections,
		Deployments:    checkDeploymentsFlags.Deployments,
		Extensions:     p.cfg.Validation.Extensions,
		ToleranceHours: tolerance,
		Location:       p.location,
		IgnoreDST:      p.cfg.Project.IgnoreDST,
		Fallback:       checkDeploymentsFlags.Fallback,
		MaxWorkers:     p.cfg.Performance.MaxWorkers,
		VerifyMarkers:  verifyMarkers,
		Logger:         p.logger,
		Events:         p.hub,
	})

	rep, err := validator.Run(ctx)
	if err != nil {
		p.close()
		return fmt.Errorf("deployment check failed: %w", err)
	}

	return p.finish(rep, checkDeploymentsFlags.ReportFile, checkDeploymentsFlags.Output)
}
