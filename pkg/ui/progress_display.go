package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"catlux/internal/downloader"
	"catlux/pkg/models"
)

// ProgressDisplay prints one line per processed plan item
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	startTime time.Time
	completed int
	skipped   int
	failed    int
}

// NewProgressDisplay creates a display writing to w
func NewProgressDisplay(w io.Writer) *ProgressDisplay {
	return &ProgressDisplay{out: w, startTime: time.Now()}
}

// Update matches downloader.Options.Progress
func (p *ProgressDisplay) Update(done, total int, r models.Record, outcome downloader.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var mark string
	switch outcome {
	case downloader.OutcomeCompleted:
		p.completed++
		mark = successStyle.Render("⬇")
	case downloader.OutcomeSkipped:
		p.skipped++
		mark = dimStyle.Render("✓")
	default:
		p.failed++
		mark = errorStyle.Render("✗")
	}

	width := len(fmt.Sprint(total))
	fmt.Fprintf(p.out, "%s [%*d/%d] %s %s\n",
		mark, width, done, total, r.FileName(), dimStyle.Render(string(outcome)))
}

// Report prints the batch summary
func (p *ProgressDisplay) Report(report *downloader.Report) {
	pr := NewPrinter(p.out)
	fmt.Fprintln(p.out)

	switch report.State {
	case downloader.StateCompleted:
		pr.Success(fmt.Sprintf("Downloaded %d new documents", len(report.Completed)))
	case downloader.StateQuotaExhausted:
		pr.Warning(fmt.Sprintf("Quota exhausted after %d downloads", len(report.Completed)))
	default:
		pr.Error(fmt.Sprintf("Batch aborted after %d downloads", len(report.Completed)))
	}

	fmt.Fprintf(p.out, "  %s %d planned, %d skipped, %d failed in %s\n",
		dimStyle.Render("•"),
		len(report.Planned),
		len(report.Skipped),
		len(report.Failed),
		formatDuration(report.Duration),
	)
	for _, f := range report.Failed {
		fmt.Fprintf(p.out, "  %s %s %s\n", errorStyle.Render("✗"), f.ID, dimStyle.Render(string(f.Kind)))
	}
	for _, id := range report.Unrecorded {
		pr.Warning(fmt.Sprintf("%s is stored but missing from the download ledger", id))
	}
	if report.StoppedEarly {
		notAttempted := len(report.Planned) - len(report.Completed) - len(report.Skipped) - len(report.Failed)
		fmt.Fprintf(p.out, "  %s %d documents not attempted\n", dimStyle.Render("•"), notAttempted)
	}
	fmt.Fprintf(p.out, "  %s %d downloads left this month\n", dimStyle.Render("•"), report.QuotaRemainingAfter)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Counts returns how many items completed, were skipped and failed so far
func (p *ProgressDisplay) Counts() (completed, skipped, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed, p.skipped, p.failed
}

