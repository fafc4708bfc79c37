package scraper

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"catlux/internal/downloader"
	"catlux/internal/testsite"
	"catlux/pkg/auth"
	"catlux/pkg/catlux"
	"catlux/pkg/config"
	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
	"catlux/pkg/metadata"
	"catlux/pkg/planner"
	"catlux/pkg/quota"
	"catlux/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	site    *testsite.Site
	cfg     *config.Config
	ledger  *quota.Ledger
	scraper *Scraper
	log     *logger.TestLogger
	out     *bytes.Buffer
}

func samplePages() [][]testsite.Doc {
	return [][]testsite.Doc{
		{
			{ID: "Mathe_5_012", Title: "Bruchrechnung", Reference: "#12"},
			{ID: "Mathe_5_003", Title: "Geometrie", Reference: "#3"},
		},
		{
			{ID: "Mathe_5_020", Title: "Gleichungen", Reference: "#20"},
		},
	}
}

func newHarness(t *testing.T, limit int, pages ...[]testsite.Doc) *harness {
	t.Helper()

	site := testsite.New(pages...)
	t.Cleanup(site.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Catlux.BaseURL = site.URL
	cfg.Output.SaveRoot = filepath.Join(dir, "downloads")
	cfg.Quota.TrackerFile = filepath.Join(dir, "download_tracker.json")
	cfg.Quota.MonthlyLimit = limit
	cfg.Download.TimeoutSeconds = 2
	cfg.Download.Selection = "all"

	log := logger.NewTestLogger()
	client, err := catlux.NewClient(catlux.Options{
		BaseURL:  site.URL,
		LoginURL: site.URL + "/login",
		Retry:    &retry.Config{MaxAttempts: 1},
		Logger:   log,
	})
	require.NoError(t, err)

	ledger, err := quota.Open(cfg.Quota.TrackerFile, limit, quota.WithLogger(log))
	require.NoError(t, err)

	account := auth.Account{Username: testsite.Username, Password: testsite.Password}
	return &harness{
		site:    site,
		cfg:     cfg,
		ledger:  ledger,
		scraper: New(cfg, client, ledger, account, log),
		log:     log,
		out:     &bytes.Buffer{},
	}
}

func (h *harness) run(t *testing.T, opts Options) (*Result, error) {
	t.Helper()
	opts.CategoryURL = h.site.CategoryURL()
	opts.Out = h.out
	if opts.In == nil {
		opts.In = strings.NewReader("")
	}
	return h.scraper.Run(context.Background(), opts)
}

func (h *harness) destination() string {
	return filepath.Join(h.cfg.Output.SaveRoot, "klasse-5", "mathe")
}

func (h *harness) stored(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.destination())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestRunDownloadsEverythingNew(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)

	result, err := h.run(t, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, h.destination(), result.Destination)
	require.NotNil(t, result.Report)
	assert.Equal(t, downloader.StateCompleted, result.Report.State)
	assert.Equal(t, []string{
		"Mathe_5_003", "Mathe_5_003_solution",
		"Mathe_5_012", "Mathe_5_012_solution",
		"Mathe_5_020", "Mathe_5_020_solution",
	}, result.Report.Completed)

	assert.Len(t, h.stored(t), 6)
	assert.Equal(t, 6, h.ledger.CurrentMonthCount())
	assert.Equal(t, 94, result.Report.QuotaRemainingAfter)

	index, err := os.ReadFile(filepath.Join(h.destination(), metadata.IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "Bruchrechnung")

	// every log line of the run carries the run id
	for _, msg := range h.log.GetMessagesByLevel("INFO") {
		if msg.Message == "Starting download run" {
			assert.Equal(t, result.RunID, msg.Fields["run_id"])
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)

	_, err := h.run(t, Options{})
	require.NoError(t, err)
	served := len(h.site.Downloads())

	result, err := h.run(t, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Report.Planned)
	assert.Empty(t, result.Report.Completed)
	assert.Equal(t, served, len(h.site.Downloads()))
	assert.Equal(t, 6, h.ledger.CurrentMonthCount())
}

func TestRunRespectsQuota(t *testing.T) {
	h := newHarness(t, 3, samplePages()...)

	result, err := h.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mathe_5_003", "Mathe_5_003_solution", "Mathe_5_012"}, result.Report.Completed)
	assert.Equal(t, 0, h.ledger.Remaining())

	// the next run is refused before the site is contacted
	posts := h.site.LoginPosts()
	result, err = h.run(t, Options{})
	assert.ErrorIs(t, err, errs.ErrQuotaExhausted)
	assert.Nil(t, result.Report)
	assert.Equal(t, posts, h.site.LoginPosts())
	assert.Contains(t, h.out.String(), "Monthly quota exhausted")
}

func TestRunResumesSolutionNextMonth(t *testing.T) {
	h := newHarness(t, 1, [][]testsite.Doc{{{ID: "E1", Title: "Probe", Reference: "#10"}}}...)

	result, err := h.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"E1"}, result.Report.Completed)

	// a new month brings new quota; only the solution is left to fetch
	next := time.Now().AddDate(0, 1, 0)
	ledger, err := quota.Open(h.cfg.Quota.TrackerFile, 1, quota.WithClock(func() time.Time { return next }))
	require.NoError(t, err)
	h.scraper.ledger = ledger

	result, err = h.run(t, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"E1_solution"}, result.Report.Completed)
	assert.Equal(t, []string{"E1.pdf", "E1_solution.pdf"}, h.stored(t))
}

func TestRunDryRun(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)

	result, err := h.run(t, Options{DryRun: true, Selection: "new"})
	require.NoError(t, err)
	assert.Nil(t, result.Report)
	assert.Equal(t, planner.OnlyNew(), result.Policy)
	assert.Len(t, result.Plan, 6)
	assert.Empty(t, h.site.Downloads())
	assert.Zero(t, h.ledger.CurrentMonthCount())
	assert.Contains(t, h.out.String(), "Mathe_5_003.pdf")
}

func TestRunAskSelection(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)

	result, err := h.run(t, Options{Selection: SelectAsk, In: strings.NewReader("3\n")})
	require.NoError(t, err)
	assert.Equal(t, planner.Explicit(2), result.Policy)
	assert.Equal(t, []string{"Mathe_5_012"}, result.Report.Completed)
	assert.Contains(t, h.out.String(), "Select documents")
}

func TestRunInvalidSelection(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)

	_, err := h.run(t, Options{Selection: "99"})
	assert.ErrorContains(t, err, "invalid selection")
	assert.Empty(t, h.site.Downloads())
}

func TestRunFetchFailureDoesNotStopBatch(t *testing.T) {
	pages := samplePages()
	pages[0][1].NoSolution = true
	h := newHarness(t, 100, pages...)

	result, err := h.run(t, Options{})
	require.NoError(t, err)
	require.Len(t, result.Report.Failed, 1)
	assert.Equal(t, "Mathe_5_003_solution", result.Report.Failed[0].ID)
	assert.Equal(t, errs.ErrorTypeNotFound, result.Report.Failed[0].Kind)
	assert.Len(t, result.Report.Completed, 5)
	assert.Equal(t, 5, h.ledger.CurrentMonthCount())
}

func TestRunContinuesWithPartialListing(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)
	h.site.FailPage(2)

	result, err := h.run(t, Options{})
	require.NoError(t, err)
	require.Error(t, result.ListingErr)

	var partial *errs.PartialListingError
	require.ErrorAs(t, result.ListingErr, &partial)
	assert.Equal(t, 1, partial.PagesProcessed)
	assert.Len(t, result.Report.Completed, 4)
	assert.Contains(t, h.out.String(), "Listing stopped at page 2")
}

func TestRunLoginFailure(t *testing.T) {
	h := newHarness(t, 100, samplePages()...)
	h.scraper.account.Password = "wrong"

	_, err := h.run(t, Options{})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.Zero(t, h.ledger.CurrentMonthCount())
}

func TestRunRequiresCategory(t *testing.T) {
	h := newHarness(t, 100)
	h.cfg.Catlux.DefaultURL = ""

	_, err := h.scraper.Run(context.Background(), Options{Out: h.out})
	assert.Error(t, err)
}
