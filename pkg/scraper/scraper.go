package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"catlux/internal/downloader"
	"catlux/pkg/auth"
	"catlux/pkg/catalog"
	"catlux/pkg/catlux"
	"catlux/pkg/config"
	errs "catlux/pkg/errors"
	"catlux/pkg/inventory"
	"catlux/pkg/logger"
	"catlux/pkg/metadata"
	"catlux/pkg/planner"
	"catlux/pkg/quota"
	"catlux/pkg/storage"
	"catlux/pkg/ui"

	"github.com/google/uuid"
)

// SelectAsk lists the catalog and asks which documents to fetch
const SelectAsk = "ask"

// Options describes one run
type Options struct {
	CategoryURL string
	// MaxPages overrides the configured page limit when positive
	MaxPages int
	// Selection is "ask", "all", "new", "none" or a one-based list like "1,3,5-7"
	Selection string
	// DryRun stops after printing the plan
	DryRun bool
	// In answers the selection prompt, defaults to stdin
	In io.Reader
	// Out receives the terminal output, defaults to stdout
	Out io.Writer
}

// Result is what a run did
type Result struct {
	RunID       string
	Destination string
	Catalog     *catalog.Catalog
	Policy      planner.Policy
	// Plan is set for dry runs; executed runs report it in Report.Planned
	Plan   planner.FetchPlan
	Report *downloader.Report
	// ListingErr is set when the listing broke off and the run continued
	// with the pages read so far
	ListingErr error
}

// Scraper wires the site client, the quota ledger and a destination into
// download runs
type Scraper struct {
	config  *config.Config
	client  SiteClient
	ledger  *quota.Ledger
	account auth.Account
	logger  logger.Logger
}

// New creates a scraper from its collaborators
func New(cfg *config.Config, client SiteClient, ledger *quota.Ledger, account auth.Account, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Scraper{
		config:  cfg,
		client:  client,
		ledger:  ledger,
		account: account,
		logger:  log,
	}
}

// NewFromConfig builds the site client and opens the ledger described by cfg
func NewFromConfig(cfg *config.Config, account auth.Account, log logger.Logger) (*Scraper, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	client, err := catlux.NewClientFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create site client: %w", err)
	}

	ledger, err := quota.Open(cfg.Quota.TrackerFile, cfg.Quota.MonthlyLimit, quota.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open download ledger: %w", err)
	}

	return New(cfg, client, ledger, account, log), nil
}

// Ledger returns the quota ledger the scraper spends
func (s *Scraper) Ledger() *quota.Ledger {
	return s.ledger
}

// Run performs one download session
func (s *Scraper) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.CategoryURL == "" {
		opts.CategoryURL = s.config.Catlux.DefaultURL
	}
	if opts.CategoryURL == "" {
		return nil, errors.New("no category URL given")
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = s.config.Download.MaxPages
	}
	selection := opts.Selection
	if selection == "" {
		selection = s.config.Download.Selection
	}

	result := &Result{RunID: uuid.NewString()}
	log := s.logger.WithField("run_id", result.RunID)
	printer := ui.NewPrinter(opts.Out)

	status := s.ledger.Status()
	logger.LogQuota(log, status.Used, status.Limit, status.Remaining, s.config.Quota.WarnThreshold)
	if status.Remaining == 0 {
		printer.Status(status, s.config.Quota.WarnThreshold)
		return result, errs.ErrQuotaExhausted
	}

	destination, err := storage.DestinationFor(s.config.Output.SaveRoot, opts.CategoryURL, s.config.Output.DeriveFolders)
	if err != nil {
		return result, err
	}
	result.Destination = destination

	log.InfoWithFields("Starting download run", map[string]interface{}{
		"category":    opts.CategoryURL,
		"destination": destination,
		"max_pages":   maxPages,
		"selection":   selection,
		"dry_run":     opts.DryRun,
	})

	if err := s.client.Login(ctx, s.account.Username, s.account.Password); err != nil {
		return result, fmt.Errorf("login failed: %w", err)
	}

	cat, err := catalog.Build(ctx, s.client, opts.CategoryURL, maxPages, log)
	result.Catalog = cat
	if err != nil {
		var partial *errs.PartialListingError
		if !errors.As(err, &partial) || ctx.Err() != nil {
			return result, err
		}
		result.ListingErr = err
		printer.Warning(fmt.Sprintf("Listing stopped at page %d, continuing with %d pages", partial.FailedPage, partial.PagesProcessed), partial.Err)
	}
	printer.Info("Documents listed", fmt.Sprintf("%d (%d pages)", cat.Len(), cat.PagesProcessed()))

	store, err := storage.Open(ctx, destination, log)
	if err != nil {
		return result, err
	}
	defer store.Close()

	inv, err := inventory.Scan(ctx, store, destination, cat.Records())
	if err != nil {
		return result, err
	}
	printer.Info("Already downloaded", fmt.Sprintf("%d of %d", inv.Count(), cat.Len()))

	policy, err := s.selectPolicy(printer, opts.In, selection, cat, inv)
	if err != nil {
		return result, err
	}
	result.Policy = policy

	if opts.DryRun {
		result.Plan = planner.Plan(cat, inv, s.ledger.Remaining(), policy)
		printer.Plan(result.Plan, s.ledger.Remaining())
		return result, nil
	}

	display := ui.NewProgressDisplay(opts.Out)
	executor := downloader.NewExecutor(s.client, store, s.ledger, downloader.Options{
		Timeout:  s.config.Download.Timeout(),
		Indexer:  metadata.NewIndexer(store),
		Progress: display.Update,
		Logger:   log,
	})

	report, err := executor.PlanAndExecute(ctx, cat, inv, policy)
	result.Report = report
	if report != nil {
		display.Report(report)
	}
	if err != nil {
		return result, err
	}

	if after := s.ledger.Status(); after.Remaining <= s.config.Quota.WarnThreshold {
		printer.Status(after, s.config.Quota.WarnThreshold)
	}
	return result, nil
}

func (s *Scraper) selectPolicy(printer *ui.Printer, in io.Reader, selection string, cat *catalog.Catalog, inv inventory.Inventory) (planner.Policy, error) {
	if !strings.EqualFold(strings.TrimSpace(selection), SelectAsk) {
		policy, err := planner.ParsePolicy(selection, cat.Len())
		if err != nil {
			return planner.Policy{}, fmt.Errorf("invalid selection: %w", err)
		}
		return policy, nil
	}

	if cat.Len() == 0 {
		return planner.None(), nil
	}

	printer.Catalog(cat.SortedByReference(), inv)
	return printer.PromptSelection(in, cat.Len())
}

