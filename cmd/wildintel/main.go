package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "wildintel",
		Short: "Camera-trap media pipeline tools",
		Long: `wildintel manages the camera-trap media pipeline: it validates
collection naming and deployment timestamp integrity against the field
log, prepares validated media for the data-management platform, bundles
packages and uploads them in resumable chunks.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cli.AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(cli.NewCheckCollectionsCommand())
	rootCmd.AddCommand(cli.NewCheckDeploymentsCommand())
	rootCmd.AddCommand(cli.NewPrepareCommand())
	rootCmd.AddCommand(cli.NewTemplateCommand())
	rootCmd.AddCommand(cli.NewPackageCommand())
	rootCmd.AddCommand(cli.NewUploadCommand())
	rootCmd.AddCommand(cli.NewConfigCommand())
	rootCmd.AddCommand(cli.NewVersionCommand())

	return rootCmd.Execute()
}
