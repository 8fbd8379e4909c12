package report

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/JakeFAU/event-ingestor/internal/ingest"
)

// RenderText produces the human readable run report.
func RenderText(run ingest.OperationRun) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Run %s (%s)\n", run.ID, run.Kind)
	fmt.Fprintf(&buf, "Scope:    %s\n", run.Scope)
	fmt.Fprintf(&buf, "Status:   %s\n", run.Status)
	fmt.Fprintf(&buf, "Started:  %s\n", run.StartedAt.UTC().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(&buf, "Finished: %s\n", run.FinishedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&buf, "Duration: %s\n", run.Duration.Round(time.Millisecond))
	if run.Error != "" {
		fmt.Fprintf(&buf, "Error:    %s\n", run.Error)
	}

	c := run.Counts
	fmt.Fprintf(&buf, "\nFound %d: inserted %d, duplicated %d, rejected %d, errored %d\n",
		c.Found, c.Inserted, c.Duplicated, c.Rejected, c.Errored)

	if len(run.RejectReasons) > 0 {
		buf.WriteString("\nRejections\n")
		tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		for _, reason := range slices.Sorted(maps.Keys(run.RejectReasons)) {
			fmt.Fprintf(tw, "  %s\t%d\n", reason, run.RejectReasons[reason])
		}
		_ = tw.Flush()
	}

	if len(run.Sources) > 0 {
		buf.WriteString("\nSources\n")
		tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  source\tfound\tattempts\thealth\tstatus")
		for _, s := range run.Sources {
			status := "ok"
			switch {
			case s.Error != "":
				status = "error: " + s.Error
			case s.Degraded:
				status = "degraded"
			}
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%s\n", s.SourceID, s.Found, s.Attempts, s.HealthScore, status)
		}
		_ = tw.Flush()
	}
	return buf.Bytes()
}
