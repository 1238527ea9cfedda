package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ijfvianauhu/wildintel-tools/pkg/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View or modify wildintel configuration.`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Project: %s (id %d)\n", cfg.Project.Name, cfg.Project.ID)
			fmt.Printf("Timezone: %s (ignore DST: %t)\n", cfg.Project.Timezone, cfg.Project.IgnoreDST)
			fmt.Printf("Platform URL: %s\n", cfg.Trapper.URL)
			fmt.Printf("Upload Server: %s\n", cfg.Uploader.ServerURL)
			fmt.Printf("Tolerance: %dh\n", cfg.Validation.ToleranceHours)
			fmt.Printf("Resize: %t (width %d)\n", cfg.Prepare.Resize, cfg.Prepare.ResizeWidth)
			fmt.Printf("Max Workers: %d\n", cfg.Performance.MaxWorkers)
			fmt.Printf("Log Format: %s\n", cfg.Logging.Format)
			fmt.Printf("Log Level: %s\n", cfg.Logging.Level)

			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}

			cfg := config.Default()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			fmt.Printf("Configuration file created at: %s\n", path)
			return nil
		},
	}
}
