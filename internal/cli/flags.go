package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/config"
	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/output"
	"github.com/ijfvianauhu/wildintel-tools/pkg/report"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Quiet      bool
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"config file (default is $HOME/.config/wildintel/config.yaml)",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Quiet,
		"quiet",
		"q",
		false,
		"suppress non-error output",
	)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() *GlobalFlags {
	return &globalFlags
}

// loadConfig loads the configuration honoring the --config flag
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if globalFlags.ConfigFile != "" {
		cfg, err = config.LoadFromFile(globalFlags.ConfigFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if globalFlags.Quiet {
		cfg.Output.Quiet = true
		cfg.Output.Progress = false
	}
	return cfg, nil
}

// pipeline bundles the runtime pieces every stage command needs
type pipeline struct {
	cfg      *config.Config
	logger   logging.Logger
	console  *output.Console
	hub      *output.Hub
	location *time.Location
}

// newPipeline loads configuration and wires logging and progress
// rendering for one command invocation
func newPipeline() (*pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	location, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project timezone: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Enabled, cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	p := &pipeline{
		cfg:      cfg,
		logger:   logger,
		location: location,
	}
	if cfg.Output.Progress && !cfg.Output.Quiet {
		p.console = output.NewConsole(os.Stdout, cfg.Output.Quiet)
		p.hub = output.NewHub(p.console.Consume, 256)
	}
	return p, nil
}

// finish renders and optionally saves the report, releases resources
// and exits with the status-derived code
func (p *pipeline) finish(rep *report.Report, reportFile, format string) error {
	rep.Finish()

	if p.hub != nil {
		p.hub.Close()
	}
	if p.console != nil {
		p.console.Close()
	}
	p.logger.Close()

	if reportFile != "" {
		if _, err := rep.ToYAML(reportFile); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if !p.cfg.Output.Quiet || !rep.IsSuccess() {
		if err := output.WriteReport(rep, os.Stdout, format); err != nil {
			return err
		}
	}

	os.Exit(rep.Status().ExitCode())
	return nil
}

// close releases pipeline resources on error paths
func (p *pipeline) close() {
	if p.hub != nil {
		p.hub.Close()
	}
	if p.console != nil {
		p.console.Close()
	}
	p.logger.Close()
}
