package main

import (
	"errors"
	"fmt"

	"catlux/pkg/auth"
	"catlux/pkg/config"
	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
	"catlux/pkg/scraper"
	"catlux/pkg/ui"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Download command flags
	categoryURL  string
	maxPages     int
	selection    string
	dryRun       bool
	savePath     string
	flat         bool
	timeout      int
	trackerFile  string
	monthlyLimit int
	certPath     string
	accountName  string
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [category-url]",
	Short: "Download exams and solutions from a category listing",
	Long: `Log in, read the category listing page by page and download the
selected documents into the save path.

Credentials are resolved in this order:
  - CATLUX_USERNAME and CATLUX_PASSWORD
  - the stored account named by --account
  - the default stored account (use 'catlux auth login' to store one)

Documents already present in the destination folder are skipped and cost no
quota. When the quota runs out mid-run the remaining documents are left for
next month.`,
	Example: `  # Pick documents from a numbered listing
  catlux download https://www.catlux.de/probearbeiten/klasse-5/mathe

  # Fetch everything not yet on disk without asking
  catlux download https://www.catlux.de/probearbeiten/klasse-5/mathe --select new

  # Fetch the first three listed documents into a flat folder
  catlux download <url> --select 1-3 --save-path ~/Probearbeiten --flat

  # Show what would be fetched
  catlux download <url> --select all --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	for _, fs := range []*pflag.FlagSet{downloadCmd.Flags(), rootCmd.Flags()} {
		fs.StringVarP(&categoryURL, "url", "u", "", "category listing URL (default from config)")
		fs.IntVar(&maxPages, "pages", 0, "maximum number of listing pages to read")
		fs.StringVarP(&selection, "select", "s", "", "documents to fetch: ask, all, new, none or a list like 1,3,5-7")
		fs.BoolVar(&dryRun, "dry-run", false, "print the plan without downloading")
		fs.StringVarP(&savePath, "save-path", "o", "", "root folder for downloads")
		fs.BoolVar(&flat, "flat", false, "store directly in the save path instead of <class>/<subject> subfolders")
		fs.IntVar(&timeout, "timeout", 0, "per-document download timeout in seconds")
		fs.StringVar(&trackerFile, "tracker-file", "", "path of the download ledger")
		fs.IntVar(&monthlyLimit, "monthly-limit", 0, "downloads allowed per calendar month")
		fs.StringVar(&certPath, "cert-path", "", "extra PEM certificate bundle to trust")
		fs.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	}
}

// downloadFlags collects the download flags the user set on cmd
func downloadFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed

	if set("url") {
		flags["url"] = categoryURL
	}
	if set("pages") {
		flags["pages"] = maxPages
	}
	if set("select") {
		flags["select"] = selection
	}
	if set("save-path") {
		flags["save-path"] = savePath
	}
	if set("flat") {
		flags["flat"] = flat
	}
	if set("timeout") {
		flags["timeout"] = timeout
	}
	if set("tracker-file") {
		flags["tracker-file"] = trackerFile
	}
	if set("monthly-limit") {
		flags["monthly-limit"] = monthlyLimit
	}
	if set("cert-path") {
		flags["cert-path"] = certPath
	}
	return flags
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags := downloadFlags(cmd)
	if len(args) > 0 {
		flags["url"] = args[0]
	}

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.GetLogger()

	account, err := resolveAccount(cfg)
	if err != nil {
		return err
	}
	ui.PrintInfo("Account", account.Username)

	s, err := scraper.NewFromConfig(cfg, *account, log)
	if err != nil {
		return err
	}

	result, err := s.Run(cmd.Context(), scraper.Options{
		CategoryURL: cfg.Catlux.DefaultURL,
		DryRun:      dryRun,
		In:          cmd.InOrStdin(),
		Out:         cmd.OutOrStdout(),
	})
	if errors.Is(err, errs.ErrQuotaExhausted) {
		log.Warn("Monthly quota exhausted, nothing downloaded")
		return nil
	}
	if err != nil {
		log.WithError(err).Error("Download run failed")
		return err
	}

	if result.Report != nil && len(result.Report.Failed) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d documents failed, run again to retry them", len(result.Report.Failed)))
	}
	return nil
}

// resolveAccount picks the credentials for a run. The --account flag names
// a stored account and overrides the configured username.
func resolveAccount(cfg *config.Config) (*auth.Account, error) {
	dir, err := auth.ConfigDir()
	if err != nil {
		return nil, err
	}
	manager, err := auth.NewManager(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	catluxCfg := cfg.Catlux
	if accountName != "" {
		catluxCfg.Username = accountName
		catluxCfg.Password = ""
	}

	account, err := manager.Resolve(&catluxCfg)
	if errors.Is(err, auth.ErrCredentialsNotFound) {
		return nil, fmt.Errorf("no CatLux credentials found, run 'catlux auth login' or set CATLUX_USERNAME and CATLUX_PASSWORD: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
