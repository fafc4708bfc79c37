package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"catlux/pkg/config"
	"catlux/pkg/logger"
	"catlux/pkg/ui"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catlux [category-url]",
	Short: "Download CatLux practice exams and solutions within the monthly quota",
	Long: `catlux downloads practice exams and their solutions from a CatLux
category listing into a local folder.

Every document fetched counts against the account's monthly download quota.
A local ledger keeps track of what was spent, documents already on disk are
never fetched again, and a solution is only fetched together with (or after)
its exam.

Running catlux with a category URL is a shortcut for 'catlux download <url>'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("Error", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file, YAML or TOML (default is ./.catlux.yaml or ~/.config/catlux/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")

	rootCmd.SetVersionTemplate(`catlux {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// a first argument that is not a subcommand is a category URL
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && !isKnownCommand(args[0]) {
			return runDownload(cmd, args)
		}
		return cmd.Help()
	}
}

// loadConfig resolves the configuration for cmd and initializes the global
// logger from it. extra holds command specific flag values already filtered
// to the ones the user set.
func loadConfig(cmd *cobra.Command, extra map[string]interface{}) (*config.Config, error) {
	flags := make(map[string]interface{}, len(extra)+2)
	for k, v := range extra {
		flags[k] = v
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if logFormat != "" {
		flags["log-format"] = logFormat
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"version": version,
		"command": cmd.Name(),
	}).Debug("catlux starting")

	return cfg, nil
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}
