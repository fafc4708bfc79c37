package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"catlux/pkg/auth"
	"catlux/pkg/config"
	"catlux/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage catlux configuration files.

Configuration is resolved from, highest priority first:
  - Command line flags
  - Environment variables (CATLUX_*), also read from .env and ~/.catlux.env
  - Configuration file (YAML or TOML)
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write the default configuration to a file. The format follows the
extension, .toml for TOML and YAML otherwise.

Without --config the file is created as ~/.config/catlux/config.yaml.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var forceInit bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		dir, err := auth.ConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file %s already exists, use --force to overwrite", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Success("Configuration file created: " + path)
	printer.Dim("Set catlux.default_url to your category and store credentials with 'catlux auth login'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// the password is tagged out of every encoding
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Highlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if configFile != "" {
		printer.Dim("Configuration file: " + configFile)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())

	var warnings []string
	if cfg.Catlux.DefaultURL == "" {
		warnings = append(warnings, "no default category URL, pass one to 'catlux download'")
	}
	if err := cfg.RequireCredentials(); err != nil {
		if _, lookupErr := resolveAccount(cfg); lookupErr != nil {
			warnings = append(warnings, errors.Join(err, lookupErr).Error())
		}
	}
	for _, w := range warnings {
		printer.Warning(w)
	}

	printer.Success("Configuration is valid")
	printer.Info("Save path", cfg.Output.SaveRoot)
	printer.Info("Download ledger", cfg.Quota.TrackerFile)
	printer.Info("Monthly limit", fmt.Sprintf("%d", cfg.Quota.MonthlyLimit))
	printer.Info("Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimit.RequestsPerMinute))
	return nil
}
