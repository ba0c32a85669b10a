package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/xkilldash9x/flowcheck/internal/runner"
)

const (
	succMark = "✓"
	failMark = "✗"
)

var (
	succColor  = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed)
	grayColor  = color.New(color.Faint)
	valueColor = color.New(color.FgCyan)
)

// printSummary writes one line per scenario, the devices it read and a
// closing tally.
func printSummary(w io.Writer, report *runner.Report) {
	nameWidth := 0
	for _, o := range report.Outcomes {
		nameWidth = max(nameWidth, len(o.Scenario))
	}

	for _, o := range report.Outcomes {
		mark, c := succMark, succColor
		if !o.Passed {
			mark, c = failMark, failColor
		}
		pad := strings.Repeat(".", nameWidth-len(o.Scenario)+3)
		_, _ = c.Fprintf(w, "%s %s", mark, o.Scenario)
		fmt.Fprintf(w, " %s %s %s\n",
			grayColor.Sprint(pad),
			valueColor.Sprint(o.State),
			grayColor.Sprintf("(%s)", o.Duration.Round(time.Millisecond)))

		if o.Modal != nil {
			fmt.Fprintf(w, "    modal: %s\n", valueColor.Sprint(o.Modal))
		}
		for _, d := range o.Devices {
			fmt.Fprintf(w, "    device: %s\n", valueColor.Sprint(d))
		}
		if o.Error != "" {
			_, _ = failColor.Fprintf(w, "    %s\n", o.Error)
		}
	}

	fmt.Fprintln(w)
	tally := fmt.Sprintf("%d passed, %d failed", report.Passed, report.Failed)
	if report.OK() {
		_, _ = succColor.Fprintln(w, tally)
	} else {
		_, _ = failColor.Fprintln(w, tally)
	}
}
