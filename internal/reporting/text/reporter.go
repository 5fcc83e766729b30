package text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const ReporterTypeText = "text"

type Config struct {
	NoColor bool `mapstructure:"no_color" yaml:"no_color"`
}

type Reporter struct {
	config Config
	writer io.Writer
	logger ports.Logger
}

func NewReporter(cfg Config, logger ports.Logger) (*Reporter, error) {
	if cfg.NoColor || !isTerminal(os.Stdout) {
		color.NoColor = true
	}
	return NewReporterTo(cfg, logger, os.Stdout), nil
}

// NewReporterTo writes the report to w and leaves the global color setting
// untouched.
func NewReporterTo(cfg Config, logger ports.Logger, w io.Writer) *Reporter {
	return &Reporter{
		config: cfg,
		writer: w,
		logger: logger,
	}
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func (r *Reporter) Report(ctx context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		fmt.Fprintln(r.writer, "No reconciliation requests processed.")
		return nil
	}

	sorted := make([]domain.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Request.Key.String() < sorted[j].Request.Key.String()
	})

	tw := tabwriter.NewWriter(r.writer, 0, 8, 2, ' ', 0)
	defer tw.Flush()

	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	magenta := color.New(color.FgMagenta).SprintFunc()

	fmt.Fprintln(tw, "Reconciliation Report")
	fmt.Fprintln(tw, "=====================")
	fmt.Fprintln(tw, "Status\tResource\tAction\tState\tPolls\tElapsed\tDetails")
	fmt.Fprintln(tw, "------\t--------\t------\t-----\t-----\t-------\t-------")

	var okCount, failedCount, timeoutCount, errorCount int

	for _, o := range sorted {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var statusStr, details string
		var rerr *domain.ReconcileError

		switch {
		case o.Succeeded():
			okCount++
			statusStr = green("[OK]")
			details = fmt.Sprintf("Reached %s.", o.Request.Desired)
		case errors.As(o.Err, &rerr) && rerr.Kind == domain.ErrTimeout:
			timeoutCount++
			statusStr = yellow("[TIMEOUT]")
			details = fmt.Sprintf("Still %s after %s.", rerr.LastState, o.Request.Timeout)
		case errors.As(o.Err, &rerr) && rerr.Kind == domain.ErrResourceFailed:
			failedCount++
			statusStr = red("[FAILED]")
			details = o.Err.Error()
		case o.Err == nil:
			// Settled in a terminal state other than the one requested.
			failedCount++
			statusStr = red("[DIVERGED]")
			details = fmt.Sprintf("Settled in %s, wanted %s.", o.State, o.Request.Desired)
		default:
			errorCount++
			statusStr = magenta("[ERROR]")
			details = o.Err.Error()
			if _, suggestion, ok := apperrors.GetUserFacingMessage(o.Err); ok && suggestion != "" {
				details += " " + suggestion
			}
		}
		if o.Observed {
			details += " " + cyan("(observed in-flight operation)")
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			statusStr, o.Request.Key, o.Request.Action.Verb, o.State, o.Attempts, o.Elapsed.Round(1e6), details)
	}

	fmt.Fprintln(tw, "\nSummary:")
	fmt.Fprintln(tw, "-------")
	fmt.Fprintf(tw, "Total Requests:\t%d\n", len(sorted))
	fmt.Fprintf(tw, "Reached Desired State:\t%s\n", green(okCount))
	fmt.Fprintf(tw, "Failed:\t%s\n", red(failedCount))
	fmt.Fprintf(tw, "Timed Out:\t%s\n", yellow(timeoutCount))
	fmt.Fprintf(tw, "Errors:\t%s\n", magenta(errorCount))

	return nil
}
