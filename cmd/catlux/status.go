package main

import (
	"fmt"

	"catlux/pkg/logger"
	"catlux/pkg/quota"
	"catlux/pkg/ui"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show this month's download quota",
	Long: `Show how many downloads this month's quota has left, read from the
local download ledger. The site is not contacted.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the download ledger",
	Long: `Clear every entry of the download ledger. A backup of the previous
ledger is kept next to it.

Resetting does not change what the site counts. Use it only when the ledger
no longer matches the account, for example after switching accounts.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var resetConfirmed bool

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)

	for _, cmd := range []*cobra.Command{statusCmd, resetCmd} {
		cmd.Flags().StringVar(&trackerFile, "tracker-file", "", "path of the download ledger")
		cmd.Flags().IntVar(&monthlyLimit, "monthly-limit", 0, "downloads allowed per calendar month")
	}
	resetCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "reset without asking")
}

func openLedger(cmd *cobra.Command) (*quota.Ledger, int, error) {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("tracker-file") {
		flags["tracker-file"] = trackerFile
	}
	if cmd.Flags().Changed("monthly-limit") {
		flags["monthly-limit"] = monthlyLimit
	}

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load configuration: %w", err)
	}

	ledger, err := quota.Open(cfg.Quota.TrackerFile, cfg.Quota.MonthlyLimit, quota.WithLogger(logger.GetLogger()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open download ledger: %w", err)
	}
	return ledger, cfg.Quota.WarnThreshold, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ledger, warnAt, err := openLedger(cmd)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.Status(ledger.Status(), warnAt)
	printer.Dim("Ledger: " + ledger.Path())
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ledger, _, err := openLedger(cmd)
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	status := ledger.Status()
	if !resetConfirmed {
		question := fmt.Sprintf("Remove all %d ledger entries (%d this month)?", status.TotalAllTime, status.Used)
		if !printer.Confirm(cmd.InOrStdin(), question) {
			printer.Dim("Nothing changed")
			return nil
		}
	}

	if err := ledger.Reset(); err != nil {
		return fmt.Errorf("failed to reset ledger: %w", err)
	}
	logger.GetLogger().WithField("path", ledger.Path()).Info("Download ledger reset")
	printer.Success("Download ledger reset")
	return nil
}
