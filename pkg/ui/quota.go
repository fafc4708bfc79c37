package ui

import (
	"fmt"
	"strconv"

	"catlux/pkg/quota"

	"github.com/charmbracelet/bubbles/progress"
)

const quotaBarWidth = 30

// QuotaBar renders used/limit as a bar
func QuotaBar(used, limit int) string {
	percent := 0.0
	if limit > 0 {
		percent = float64(used) / float64(limit)
	}
	if percent > 1 {
		percent = 1
	}

	bar := progress.New(
		progress.WithSolidFill(string(accent)),
		progress.WithWidth(quotaBarWidth),
		progress.WithoutPercentage(),
	)
	return fmt.Sprintf("%s %d/%d", bar.ViewAs(percent), used, limit)
}

// Status prints the ledger status. warnAt is the remaining count at or
// below which a warning is shown.
func (p *Printer) Status(s quota.Status, warnAt int) {
	lines := []string{
		titleStyle.Render("Download quota " + s.Month),
		QuotaBar(s.Used, s.Limit),
		fmt.Sprintf("%s %s", labelStyle.Render("Remaining:"), valueStyle.Render(strconv.Itoa(s.Remaining))),
		fmt.Sprintf("%s %s", labelStyle.Render("All time: "), valueStyle.Render(strconv.Itoa(s.TotalAllTime))),
	}

	body := lines[0]
	for _, l := range lines[1:] {
		body += "\n" + l
	}
	fmt.Fprintln(p.out, panelStyle.Render(body))

	switch {
	case s.Remaining == 0:
		p.Error("Monthly quota exhausted, downloads resume next month")
	case s.Remaining <= warnAt:
		p.Warning(fmt.Sprintf("Only %d downloads left this month", s.Remaining))
	}
}
